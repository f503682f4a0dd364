package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/avolkov/afisha/internal/audit"
	"github.com/avolkov/afisha/internal/domain"
	"github.com/avolkov/afisha/internal/security"
	"github.com/avolkov/afisha/internal/service"
	"github.com/avolkov/afisha/internal/transport/rest/response"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeVerifier struct {
	claims security.TokenClaims
	err    error
}

func (f fakeVerifier) VerifyAccessToken(token string) (security.TokenClaims, error) {
	return f.claims, f.err
}

type fakeCache struct {
	allow bool
	full  map[int64]bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{allow: true, full: map[int64]bool{}}
}

func (c *fakeCache) GetEventFull(ctx context.Context, eventID int64) (bool, error) {
	v, ok := c.full[eventID]
	if !ok {
		return false, domain.ErrCacheMiss
	}
	return v, nil
}

func (c *fakeCache) SetEventFull(ctx context.Context, eventID int64, full bool) error {
	if !full {
		delete(c.full, eventID)
		return nil
	}
	c.full[eventID] = true
	return nil
}

func (c *fakeCache) MarkSeen(ctx context.Context, uri, clientIP string, ttl time.Duration) (bool, error) {
	return true, nil
}

func (c *fakeCache) AllowRequest(ctx context.Context, ip string, limit int, window time.Duration) (bool, error) {
	return c.allow, nil
}

// fakeRepo backs all three repository interfaces; unset hooks fail loudly.
type fakeRepo struct {
	submitFn        func(ctx context.Context, traceID string, requesterID, eventID int64) (domain.ParticipationRequest, error)
	cancelFn        func(ctx context.Context, traceID string, requesterID, requestID int64) (domain.ParticipationRequest, error)
	moderateFn      func(ctx context.Context, traceID string, eventID int64, requestIDs []int64, decision domain.ModerationDecision) (domain.ModerationResult, error)
	listByRequester func(ctx context.Context, requesterID int64) ([]domain.ParticipationRequest, error)
	listByEvent     func(ctx context.Context, eventID int64) ([]domain.ParticipationRequest, error)

	createFn       func(ctx context.Context, e *domain.Event) error
	getByIDFn      func(ctx context.Context, id int64) (*domain.Event, error)
	getPublishedFn func(ctx context.Context, id int64) (*domain.Event, error)
	getByInitFn    func(ctx context.Context, id, initiatorID int64) (*domain.Event, error)
	ownerFn        func(ctx context.Context, id int64) (int64, error)
	updateFn       func(ctx context.Context, e *domain.Event) error
	setStateFn     func(ctx context.Context, traceID string, id int64, action domain.StateAction) (*domain.Event, error)
	listByInitFn   func(ctx context.Context, initiatorID int64, from, size int) ([]domain.Event, error)
	listAdminFn    func(ctx context.Context, f domain.EventFilter) ([]domain.Event, error)

	getUserFn     func(ctx context.Context, id int64) (domain.User, error)
	getCategoryFn func(ctx context.Context, id int64) (domain.Category, error)
}

var errNotWired = errors.New("not wired in this test")

// --- domain.RequestRepository ---

func (r *fakeRepo) Submit(ctx context.Context, traceID string, requesterID, eventID int64) (domain.ParticipationRequest, error) {
	if r.submitFn == nil {
		return domain.ParticipationRequest{}, errNotWired
	}
	return r.submitFn(ctx, traceID, requesterID, eventID)
}

func (r *fakeRepo) Cancel(ctx context.Context, traceID string, requesterID, requestID int64) (domain.ParticipationRequest, error) {
	if r.cancelFn == nil {
		return domain.ParticipationRequest{}, errNotWired
	}
	return r.cancelFn(ctx, traceID, requesterID, requestID)
}

func (r *fakeRepo) ModerateBatch(ctx context.Context, traceID string, eventID int64, requestIDs []int64, decision domain.ModerationDecision) (domain.ModerationResult, error) {
	if r.moderateFn == nil {
		return domain.ModerationResult{}, errNotWired
	}
	return r.moderateFn(ctx, traceID, eventID, requestIDs, decision)
}

func (r *fakeRepo) ListByRequester(ctx context.Context, requesterID int64) ([]domain.ParticipationRequest, error) {
	if r.listByRequester == nil {
		return nil, errNotWired
	}
	return r.listByRequester(ctx, requesterID)
}

func (r *fakeRepo) ListByEvent(ctx context.Context, eventID int64) ([]domain.ParticipationRequest, error) {
	if r.listByEvent == nil {
		return nil, errNotWired
	}
	return r.listByEvent(ctx, eventID)
}

// --- domain.EventRepository ---

func (r *fakeRepo) Create(ctx context.Context, e *domain.Event) error {
	if r.createFn == nil {
		return errNotWired
	}
	return r.createFn(ctx, e)
}

func (r *fakeRepo) GetByID(ctx context.Context, id int64) (*domain.Event, error) {
	if r.getByIDFn == nil {
		return nil, errNotWired
	}
	return r.getByIDFn(ctx, id)
}

func (r *fakeRepo) GetPublished(ctx context.Context, id int64) (*domain.Event, error) {
	if r.getPublishedFn == nil {
		return nil, errNotWired
	}
	return r.getPublishedFn(ctx, id)
}

func (r *fakeRepo) GetByIDAndInitiator(ctx context.Context, id, initiatorID int64) (*domain.Event, error) {
	if r.getByInitFn == nil {
		return nil, errNotWired
	}
	return r.getByInitFn(ctx, id, initiatorID)
}

func (r *fakeRepo) GetOwnerID(ctx context.Context, id int64) (int64, error) {
	if r.ownerFn == nil {
		return 0, errNotWired
	}
	return r.ownerFn(ctx, id)
}

func (r *fakeRepo) Update(ctx context.Context, e *domain.Event) error {
	if r.updateFn == nil {
		return errNotWired
	}
	return r.updateFn(ctx, e)
}

func (r *fakeRepo) SetState(ctx context.Context, traceID string, id int64, action domain.StateAction) (*domain.Event, error) {
	if r.setStateFn == nil {
		return nil, errNotWired
	}
	return r.setStateFn(ctx, traceID, id, action)
}

func (r *fakeRepo) AddViews(ctx context.Context, ids []int64) error { return nil }

func (r *fakeRepo) ListByInitiator(ctx context.Context, initiatorID int64, from, size int) ([]domain.Event, error) {
	if r.listByInitFn == nil {
		return nil, errNotWired
	}
	return r.listByInitFn(ctx, initiatorID, from, size)
}

func (r *fakeRepo) ListAdmin(ctx context.Context, f domain.EventFilter) ([]domain.Event, error) {
	if r.listAdminFn == nil {
		return nil, errNotWired
	}
	return r.listAdminFn(ctx, f)
}

// --- domain.DirectoryRepository ---

func (r *fakeRepo) GetUser(ctx context.Context, id int64) (domain.User, error) {
	if r.getUserFn == nil {
		return domain.User{ID: id, Name: "user"}, nil
	}
	return r.getUserFn(ctx, id)
}

func (r *fakeRepo) GetCategory(ctx context.Context, id int64) (domain.Category, error) {
	if r.getCategoryFn == nil {
		return domain.Category{ID: id, Name: "concerts"}, nil
	}
	return r.getCategoryFn(ctx, id)
}

func newTestRouter(repo *fakeRepo, cache *fakeCache, claims security.TokenClaims) http.Handler {
	aud := audit.New(zerolog.Nop())
	eventSvc := service.NewEventService(repo, repo, nil, cache, aud)
	requestSvc := service.NewRequestService(repo, repo, repo, cache, aud)
	h := NewHandler(eventSvc, requestSvc)
	return NewRouter(RouterDeps{
		Cache:     cache,
		Handler:   h,
		Verifier:  fakeVerifier{claims: claims},
		JWTIssuer: claims.Issuer,
	})
}

func userClaims(uid int64) security.TokenClaims {
	return security.TokenClaims{UserID: uid, Role: "user", Issuer: "auth-service"}
}

func adminClaims(uid int64) security.TokenClaims {
	return security.TokenClaims{UserID: uid, Role: "admin", Issuer: "auth-service"}
}

func decodeData(t *testing.T, rr *httptest.ResponseRecorder) response.Envelope {
	t.Helper()
	var env response.Envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	return env
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) response.ErrorBody {
	t.Helper()
	var errBody response.ErrorBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &errBody))
	return errBody
}

func authedRequest(method, target string, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, bytes.NewBufferString(body))
	}
	req.Header.Set("Authorization", "Bearer ok")
	return req
}

func TestNewRouter_PanicsOnNilDeps(t *testing.T) {
	cache := newFakeCache()
	repo := &fakeRepo{}
	aud := audit.New(zerolog.Nop())
	h := NewHandler(
		service.NewEventService(repo, repo, nil, cache, aud),
		service.NewRequestService(repo, repo, repo, cache, aud),
	)

	require.Panics(t, func() {
		_ = NewRouter(RouterDeps{Cache: nil, Handler: h, Verifier: fakeVerifier{}, JWTIssuer: "x"})
	})
	require.Panics(t, func() {
		_ = NewRouter(RouterDeps{Cache: cache, Handler: nil, Verifier: fakeVerifier{}, JWTIssuer: "x"})
	})
	require.Panics(t, func() {
		_ = NewRouter(RouterDeps{Cache: cache, Handler: h, Verifier: nil, JWTIssuer: "x"})
	})
}

func TestRouter_NoToken_401(t *testing.T) {
	r := newTestRouter(&fakeRepo{}, newFakeCache(), userClaims(7))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/7/requests", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRouter_PathUserMismatch_403(t *testing.T) {
	r := newTestRouter(&fakeRepo{}, newFakeCache(), userClaims(7))

	req := authedRequest(http.MethodGet, "/api/v1/users/8/requests", "")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusForbidden, rr.Code)
	errBody := decodeError(t, rr)
	require.Equal(t, "auth.forbidden", errBody.Error.Code)
}

func TestRouter_AdminActsOnBehalfOfUser(t *testing.T) {
	repo := &fakeRepo{
		listByRequester: func(ctx context.Context, requesterID int64) ([]domain.ParticipationRequest, error) {
			require.Equal(t, int64(8), requesterID)
			return []domain.ParticipationRequest{}, nil
		},
	}
	r := newTestRouter(repo, newFakeCache(), adminClaims(1))

	req := authedRequest(http.MethodGet, "/api/v1/users/8/requests", "")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
}

func TestRouter_SubmitRequest_Created_201(t *testing.T) {
	now := time.Now()
	repo := &fakeRepo{
		submitFn: func(ctx context.Context, traceID string, requesterID, eventID int64) (domain.ParticipationRequest, error) {
			require.Equal(t, int64(7), requesterID)
			require.Equal(t, int64(33), eventID)
			return domain.ParticipationRequest{
				ID: 101, EventID: eventID, RequesterID: requesterID,
				Status: domain.RequestPending, Created: now,
			}, nil
		},
	}
	r := newTestRouter(repo, newFakeCache(), userClaims(7))

	req := authedRequest(http.MethodPost, "/api/v1/users/7/requests?eventId=33", "")
	req.Header.Set("X-Request-Id", "rid-1")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	env := decodeData(t, rr)
	m := env.Data.(map[string]any)
	require.Equal(t, "PENDING", m["status"])
	require.Equal(t, float64(101), m["id"])
}

func TestRouter_SubmitRequest_MissingEventID_400(t *testing.T) {
	r := newTestRouter(&fakeRepo{}, newFakeCache(), userClaims(7))

	req := authedRequest(http.MethodPost, "/api/v1/users/7/requests", "")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	errBody := decodeError(t, rr)
	require.Equal(t, "request.invalid", errBody.Error.Code)
	require.Contains(t, errBody.Error.Meta, "eventId")
}

func TestRouter_SubmitRequest_CacheFullShortCircuit_409(t *testing.T) {
	cache := newFakeCache()
	cache.full[33] = true

	// repo must never be hit when the cache already says the event is full
	repo := &fakeRepo{
		submitFn: func(ctx context.Context, traceID string, requesterID, eventID int64) (domain.ParticipationRequest, error) {
			t.Fatal("submit must not reach the repository")
			return domain.ParticipationRequest{}, nil
		},
	}
	r := newTestRouter(repo, cache, userClaims(7))

	req := authedRequest(http.MethodPost, "/api/v1/users/7/requests?eventId=33", "")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusConflict, rr.Code)
	errBody := decodeError(t, rr)
	require.Equal(t, "event.limit_reached", errBody.Error.Code)
}

func TestRouter_SubmitRequest_Duplicate_409(t *testing.T) {
	repo := &fakeRepo{
		submitFn: func(ctx context.Context, traceID string, requesterID, eventID int64) (domain.ParticipationRequest, error) {
			return domain.ParticipationRequest{}, domain.ErrDuplicateRequest
		},
	}
	r := newTestRouter(repo, newFakeCache(), userClaims(7))

	req := authedRequest(http.MethodPost, "/api/v1/users/7/requests?eventId=33", "")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusConflict, rr.Code)
	errBody := decodeError(t, rr)
	require.Equal(t, "request.duplicate", errBody.Error.Code)
}

func TestRouter_CancelRequest_ConfirmedSeat_409(t *testing.T) {
	repo := &fakeRepo{
		cancelFn: func(ctx context.Context, traceID string, requesterID, requestID int64) (domain.ParticipationRequest, error) {
			return domain.ParticipationRequest{}, domain.ErrRequestConfirmed
		},
	}
	r := newTestRouter(repo, newFakeCache(), userClaims(7))

	req := authedRequest(http.MethodPatch, "/api/v1/users/7/requests/5/cancel", "")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusConflict, rr.Code)
	errBody := decodeError(t, rr)
	require.Equal(t, "request.confirmed", errBody.Error.Code)
}

func TestRouter_CancelRequest_Unknown_404(t *testing.T) {
	repo := &fakeRepo{
		cancelFn: func(ctx context.Context, traceID string, requesterID, requestID int64) (domain.ParticipationRequest, error) {
			return domain.ParticipationRequest{}, domain.ErrRequestNotFound
		},
	}
	r := newTestRouter(repo, newFakeCache(), userClaims(7))

	req := authedRequest(http.MethodPatch, "/api/v1/users/7/requests/5/cancel", "")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNotFound, rr.Code)
	errBody := decodeError(t, rr)
	require.Equal(t, "request.not_found", errBody.Error.Code)
}

func TestRouter_ModerateRequests_InvalidStatus_400(t *testing.T) {
	repo := &fakeRepo{
		ownerFn: func(ctx context.Context, id int64) (int64, error) { return 7, nil },
	}
	r := newTestRouter(repo, newFakeCache(), userClaims(7))

	body := `{"request_ids":[1,2],"status":"MAYBE"}`
	req := authedRequest(http.MethodPatch, "/api/v1/users/7/events/33/requests", body)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	errBody := decodeError(t, rr)
	require.Equal(t, "request.invalid", errBody.Error.Code)
}

func TestRouter_ModerateRequests_NotOwner_403(t *testing.T) {
	repo := &fakeRepo{
		ownerFn: func(ctx context.Context, id int64) (int64, error) { return 99, nil },
	}
	r := newTestRouter(repo, newFakeCache(), userClaims(7))

	body := `{"request_ids":[1],"status":"CONFIRMED"}`
	req := authedRequest(http.MethodPatch, "/api/v1/users/7/events/33/requests", body)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusForbidden, rr.Code)
	errBody := decodeError(t, rr)
	require.Equal(t, "auth.forbidden", errBody.Error.Code)
}

func TestRouter_ModerateRequests_Success_200(t *testing.T) {
	now := time.Now()
	repo := &fakeRepo{
		ownerFn: func(ctx context.Context, id int64) (int64, error) { return 7, nil },
		moderateFn: func(ctx context.Context, traceID string, eventID int64, requestIDs []int64, decision domain.ModerationDecision) (domain.ModerationResult, error) {
			require.Equal(t, []int64{1, 2, 3}, requestIDs)
			require.Equal(t, domain.DecisionConfirm, decision)
			return domain.ModerationResult{
				Confirmed: []domain.ParticipationRequest{
					{ID: 1, EventID: eventID, RequesterID: 10, Status: domain.RequestConfirmed, Created: now},
					{ID: 2, EventID: eventID, RequesterID: 11, Status: domain.RequestConfirmed, Created: now},
				},
				Rejected: []domain.ParticipationRequest{
					{ID: 3, EventID: eventID, RequesterID: 12, Status: domain.RequestRejected, Created: now},
				},
			}, nil
		},
	}
	r := newTestRouter(repo, newFakeCache(), userClaims(7))

	body := `{"request_ids":[1,2,3],"status":"confirmed"}`
	req := authedRequest(http.MethodPatch, "/api/v1/users/7/events/33/requests", body)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	env := decodeData(t, rr)
	m := env.Data.(map[string]any)
	require.Len(t, m["confirmed_requests"], 2)
	require.Len(t, m["rejected_requests"], 1)
}

func TestRouter_CreateEvent_MissingFields_400(t *testing.T) {
	r := newTestRouter(&fakeRepo{}, newFakeCache(), userClaims(7))

	req := authedRequest(http.MethodPost, "/api/v1/users/7/events", `{"title":"party"}`)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	errBody := decodeError(t, rr)
	require.Equal(t, "request.invalid", errBody.Error.Code)
}

func TestRouter_CreateEvent_Success_201(t *testing.T) {
	date := time.Now().Add(72 * time.Hour).Format(dateTimeLayout)
	repo := &fakeRepo{
		createFn: func(ctx context.Context, e *domain.Event) error {
			e.ID = 55
			return nil
		},
	}
	r := newTestRouter(repo, newFakeCache(), userClaims(7))

	body := `{"title":"party","category_id":3,"event_date":"` + date + `","participant_limit":10}`
	req := authedRequest(http.MethodPost, "/api/v1/users/7/events", body)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	env := decodeData(t, rr)
	m := env.Data.(map[string]any)
	require.Equal(t, float64(55), m["id"])
	require.Equal(t, "PENDING", m["state"])
	require.Equal(t, true, m["request_moderation"], "moderation defaults on")
}

func TestRouter_UpdateEvent_PublishedIsFrozen_409(t *testing.T) {
	published := time.Now()
	repo := &fakeRepo{
		getByInitFn: func(ctx context.Context, id, initiatorID int64) (*domain.Event, error) {
			return &domain.Event{
				ID: 33, InitiatorID: initiatorID, State: domain.EventPublished,
				PublishedOn: &published, CreatedOn: time.Now(), EventDate: time.Now().Add(time.Hour),
			}, nil
		},
	}
	r := newTestRouter(repo, newFakeCache(), userClaims(7))

	req := authedRequest(http.MethodPatch, "/api/v1/users/7/events/33", `{"title":"renamed"}`)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusConflict, rr.Code)
	errBody := decodeError(t, rr)
	require.Equal(t, "event.published", errBody.Error.Code)
}

func TestRouter_AdminModerateEvent_NonAdmin_403(t *testing.T) {
	r := newTestRouter(&fakeRepo{}, newFakeCache(), userClaims(7))

	req := authedRequest(http.MethodPatch, "/api/v1/admin/events/33", `{"state_action":"PUBLISH_EVENT"}`)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestRouter_AdminModerateEvent_Publish_200(t *testing.T) {
	published := time.Now()
	repo := &fakeRepo{
		setStateFn: func(ctx context.Context, traceID string, id int64, action domain.StateAction) (*domain.Event, error) {
			require.Equal(t, domain.ActionPublish, action)
			return &domain.Event{
				ID: id, InitiatorID: 7, State: domain.EventPublished,
				PublishedOn: &published, CreatedOn: time.Now(), EventDate: time.Now().Add(time.Hour),
			}, nil
		},
	}
	r := newTestRouter(repo, newFakeCache(), adminClaims(1))

	req := authedRequest(http.MethodPatch, "/api/v1/admin/events/33", `{"state_action":"PUBLISH_EVENT"}`)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	env := decodeData(t, rr)
	m := env.Data.(map[string]any)
	require.Equal(t, "PUBLISHED", m["state"])
	require.NotEmpty(t, m["published_on"])
}

func TestRouter_AdminEvents_BadStateFilter_400(t *testing.T) {
	r := newTestRouter(&fakeRepo{}, newFakeCache(), adminClaims(1))

	req := authedRequest(http.MethodGet, "/api/v1/admin/events?states=SHINY", "")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRouter_AdminEvents_FiltersReachRepo(t *testing.T) {
	var got domain.EventFilter
	repo := &fakeRepo{
		listAdminFn: func(ctx context.Context, f domain.EventFilter) ([]domain.Event, error) {
			got = f
			return []domain.Event{}, nil
		},
	}
	r := newTestRouter(repo, newFakeCache(), adminClaims(1))

	req := authedRequest(http.MethodGet, "/api/v1/admin/events?users=7&users=8&states=PENDING&from=20&size=5", "")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, []int64{7, 8}, got.InitiatorIDs)
	require.Equal(t, []domain.EventState{domain.EventPending}, got.States)
	require.Equal(t, 20, got.From)
	require.Equal(t, 5, got.Size)
}

func TestRouter_PublicEvent_NoAuthNeeded(t *testing.T) {
	repo := &fakeRepo{
		getPublishedFn: func(ctx context.Context, id int64) (*domain.Event, error) {
			return &domain.Event{
				ID: id, InitiatorID: 7, State: domain.EventPublished,
				CreatedOn: time.Now(), EventDate: time.Now().Add(time.Hour),
				Views: 4,
			}, nil
		},
	}
	r := newTestRouter(repo, newFakeCache(), userClaims(7))

	req := httptest.NewRequest(http.MethodGet, "/events/33", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	env := decodeData(t, rr)
	m := env.Data.(map[string]any)
	// first sighting bumps the served counter
	require.Equal(t, float64(5), m["views"])
}

func TestRouter_PublicEvent_Unpublished_404(t *testing.T) {
	repo := &fakeRepo{
		getPublishedFn: func(ctx context.Context, id int64) (*domain.Event, error) {
			return nil, domain.ErrEventNotFound
		},
	}
	r := newTestRouter(repo, newFakeCache(), userClaims(7))

	req := httptest.NewRequest(http.MethodGet, "/events/33", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNotFound, rr.Code)
	errBody := decodeError(t, rr)
	require.Equal(t, "event.not_found", errBody.Error.Code)
}

func TestRouter_RateLimit_429(t *testing.T) {
	cache := newFakeCache()
	cache.allow = false
	r := newTestRouter(&fakeRepo{}, cache, userClaims(7))

	req := authedRequest(http.MethodGet, "/api/v1/users/7/requests", "")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestRouter_SecurityHeaders_PresentOnOK(t *testing.T) {
	repo := &fakeRepo{
		listByRequester: func(ctx context.Context, requesterID int64) ([]domain.ParticipationRequest, error) {
			return []domain.ParticipationRequest{}, nil
		},
	}
	r := newTestRouter(repo, newFakeCache(), userClaims(7))

	req := authedRequest(http.MethodGet, "/api/v1/users/7/requests", "")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	require.Contains(t, rr.Header().Get("Content-Security-Policy"), "default-src")
}

func TestRouter_Healthz(t *testing.T) {
	r := newTestRouter(&fakeRepo{}, newFakeCache(), userClaims(7))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
}
