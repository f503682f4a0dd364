package rest

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/avolkov/afisha/internal/domain"
	appCtx "github.com/avolkov/afisha/internal/pkg/context"
	"github.com/avolkov/afisha/internal/service"
	"github.com/avolkov/afisha/internal/transport/rest/response"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// dateTimeLayout is the wire format for event dates, shared with the
// statistics service.
const dateTimeLayout = "2006-01-02 15:04:05"

type Handler struct {
	events   *service.EventService
	requests *service.RequestService
}

func NewHandler(events *service.EventService, requests *service.RequestService) *Handler {
	return &Handler{events: events, requests: requests}
}

type eventView struct {
	ID                int64  `json:"id"`
	InitiatorID       int64  `json:"initiator_id"`
	Title             string `json:"title"`
	Annotation        string `json:"annotation"`
	Description       string `json:"description,omitempty"`
	CategoryID        int64  `json:"category_id"`
	EventDate         string `json:"event_date"`
	Paid              bool   `json:"paid"`
	ParticipantLimit  int    `json:"participant_limit"`
	ConfirmedRequests int    `json:"confirmed_requests"`
	RequestModeration bool   `json:"request_moderation"`
	State             string `json:"state"`
	CreatedOn         string `json:"created_on"`
	PublishedOn       string `json:"published_on,omitempty"`
	Views             int64  `json:"views"`
}

func toEventView(e *domain.Event) eventView {
	v := eventView{
		ID:                e.ID,
		InitiatorID:       e.InitiatorID,
		Title:             e.Title,
		Annotation:        e.Annotation,
		Description:       e.Description,
		CategoryID:        e.CategoryID,
		EventDate:         e.EventDate.Format(dateTimeLayout),
		Paid:              e.Paid,
		ParticipantLimit:  e.ParticipantLimit,
		ConfirmedRequests: e.ConfirmedRequests,
		RequestModeration: e.RequestModeration,
		State:             string(e.State),
		CreatedOn:         e.CreatedOn.Format(dateTimeLayout),
		Views:             e.Views,
	}
	if e.PublishedOn != nil {
		v.PublishedOn = e.PublishedOn.Format(dateTimeLayout)
	}
	return v
}

func toEventViews(events []domain.Event) []eventView {
	out := make([]eventView, 0, len(events))
	for i := range events {
		out = append(out, toEventView(&events[i]))
	}
	return out
}

type requestView struct {
	ID          int64  `json:"id"`
	EventID     int64  `json:"event_id"`
	RequesterID int64  `json:"requester_id"`
	Status      string `json:"status"`
	Created     string `json:"created"`
}

func toRequestView(req domain.ParticipationRequest) requestView {
	return requestView{
		ID:          req.ID,
		EventID:     req.EventID,
		RequesterID: req.RequesterID,
		Status:      string(req.Status),
		Created:     req.Created.Format(dateTimeLayout),
	}
}

func toRequestViews(reqs []domain.ParticipationRequest) []requestView {
	out := make([]requestView, 0, len(reqs))
	for _, req := range reqs {
		out = append(out, toRequestView(req))
	}
	return out
}

// pathUser resolves the {userID} path segment and checks it against the
// authenticated principal. Admins may act on behalf of any user.
func pathUser(w http.ResponseWriter, r *http.Request) (int64, AuthContext, bool) {
	auth, ok := GetAuth(r.Context())
	if !ok {
		fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
		return 0, AuthContext{}, false
	}
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid userID", map[string]string{
			"user_id": "must be a positive integer",
		})
		return 0, AuthContext{}, false
	}
	if userID != auth.UserID && !auth.IsAdmin() {
		fail(w, r, http.StatusForbidden, "auth.forbidden", "forbidden", nil)
		return 0, AuthContext{}, false
	}
	return userID, auth, true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid "+name, map[string]string{
			name: "must be a positive integer",
		})
		return 0, false
	}
	return id, true
}

func traceID(r *http.Request) string {
	tid := appCtx.GetRequestID(r.Context())
	if tid == "" {
		tid = "no-request-id"
	}
	return tid
}

// ---- participation requests ----

func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := pathUser(w, r)
	if !ok {
		return
	}
	eventID, err := strconv.ParseInt(r.URL.Query().Get("eventId"), 10, 64)
	if err != nil || eventID <= 0 {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid eventId", map[string]string{
			"eventId": "must be a positive integer",
		})
		return
	}

	req, err := h.requests.Submit(r.Context(), traceID(r), userID, eventID)
	if err != nil {
		if errors.Is(err, domain.ErrLimitReached) {
			AdmissionsTotal.WithLabelValues("limit_reached").Inc()
		}
		handleErr(w, r, err)
		return
	}
	AdmissionsTotal.WithLabelValues(strings.ToLower(string(req.Status))).Inc()
	response.Data(w, http.StatusCreated, toRequestView(req))
}

func (h *Handler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := pathUser(w, r)
	if !ok {
		return
	}
	requestID, ok := pathID(w, r, "requestID")
	if !ok {
		return
	}

	req, err := h.requests.Cancel(r.Context(), traceID(r), userID, requestID)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, toRequestView(req))
}

func (h *Handler) MyRequests(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := pathUser(w, r)
	if !ok {
		return
	}

	reqs, err := h.requests.ListForRequester(r.Context(), userID)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, toRequestViews(reqs))
}

func (h *Handler) EventRequests(w http.ResponseWriter, r *http.Request) {
	userID, auth, ok := pathUser(w, r)
	if !ok {
		return
	}
	eventID, ok := pathID(w, r, "eventID")
	if !ok {
		return
	}

	reqs, err := h.requests.ListForEvent(r.Context(), userID, auth.Role, eventID)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, toRequestViews(reqs))
}

func (h *Handler) ModerateRequests(w http.ResponseWriter, r *http.Request) {
	userID, auth, ok := pathUser(w, r)
	if !ok {
		return
	}
	eventID, ok := pathID(w, r, "eventID")
	if !ok {
		return
	}

	var body struct {
		RequestIDs []int64 `json:"request_ids"`
		Status     string  `json:"status"`
	}
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", nil)
		return
	}

	decision := domain.ModerationDecision(strings.ToUpper(strings.TrimSpace(body.Status)))
	if decision != domain.DecisionConfirm && decision != domain.DecisionReject {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid status", map[string]string{
			"status": "must be CONFIRMED or REJECTED",
		})
		return
	}

	ModerationBatchSize.Observe(float64(len(body.RequestIDs)))

	res, err := h.requests.ModerateBatch(r.Context(), traceID(r), userID, auth.Role, eventID, body.RequestIDs, decision)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, map[string]any{
		"confirmed_requests": toRequestViews(res.Confirmed),
		"rejected_requests":  toRequestViews(res.Rejected),
	})
}

// ---- initiator events ----

type eventBody struct {
	Title             *string `json:"title"`
	Annotation        *string `json:"annotation"`
	Description       *string `json:"description"`
	CategoryID        *int64  `json:"category_id"`
	EventDate         *string `json:"event_date"`
	Paid              *bool   `json:"paid"`
	ParticipantLimit  *int    `json:"participant_limit"`
	RequestModeration *bool   `json:"request_moderation"`
	StateAction       *string `json:"state_action"`
}

func parseEventDate(s string) (time.Time, error) {
	return time.ParseInLocation(dateTimeLayout, strings.TrimSpace(s), time.Local)
}

func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := pathUser(w, r)
	if !ok {
		return
	}

	var body eventBody
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", nil)
		return
	}
	if body.Title == nil || body.CategoryID == nil || body.EventDate == nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "title, category_id and event_date are required", nil)
		return
	}
	date, err := parseEventDate(*body.EventDate)
	if err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid event_date", map[string]string{
			"event_date": "expected format " + dateTimeLayout,
		})
		return
	}

	in := service.NewEvent{
		Title:      *body.Title,
		CategoryID: *body.CategoryID,
		EventDate:  date,
	}
	if body.Annotation != nil {
		in.Annotation = *body.Annotation
	}
	if body.Description != nil {
		in.Description = *body.Description
	}
	if body.Paid != nil {
		in.Paid = *body.Paid
	}
	if body.ParticipantLimit != nil {
		in.ParticipantLimit = *body.ParticipantLimit
	}
	in.RequestModeration = true
	if body.RequestModeration != nil {
		in.RequestModeration = *body.RequestModeration
	}

	e, err := h.events.Create(r.Context(), userID, in)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, http.StatusCreated, toEventView(e))
}

func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := pathUser(w, r)
	if !ok {
		return
	}
	eventID, ok := pathID(w, r, "eventID")
	if !ok {
		return
	}

	var body eventBody
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", nil)
		return
	}

	patch := service.EventPatch{
		Title:             body.Title,
		Annotation:        body.Annotation,
		Description:       body.Description,
		CategoryID:        body.CategoryID,
		Paid:              body.Paid,
		ParticipantLimit:  body.ParticipantLimit,
		RequestModeration: body.RequestModeration,
	}
	if body.EventDate != nil {
		date, err := parseEventDate(*body.EventDate)
		if err != nil {
			fail(w, r, http.StatusBadRequest, "request.invalid", "invalid event_date", map[string]string{
				"event_date": "expected format " + dateTimeLayout,
			})
			return
		}
		patch.EventDate = &date
	}
	if body.StateAction != nil {
		action := domain.StateAction(strings.ToUpper(strings.TrimSpace(*body.StateAction)))
		if !action.Valid() {
			fail(w, r, http.StatusBadRequest, "request.invalid", "invalid state_action", nil)
			return
		}
		patch.StateAction = action
	}

	e, err := h.events.UpdateByInitiator(r.Context(), traceID(r), userID, eventID, patch)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, toEventView(e))
}

func (h *Handler) MyEvent(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := pathUser(w, r)
	if !ok {
		return
	}
	eventID, ok := pathID(w, r, "eventID")
	if !ok {
		return
	}

	e, err := h.events.GetForInitiator(r.Context(), userID, eventID)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, toEventView(e))
}

func (h *Handler) MyEvents(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := pathUser(w, r)
	if !ok {
		return
	}
	from, size := parsePaging(r)

	events, err := h.events.ListForInitiator(r.Context(), userID, from, size)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, toEventViews(events))
}

// ---- admin ----

func (h *Handler) AdminModerateEvent(w http.ResponseWriter, r *http.Request) {
	auth, ok := GetAuth(r.Context())
	if !ok {
		fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
		return
	}
	if !auth.IsAdmin() {
		fail(w, r, http.StatusForbidden, "auth.forbidden", "forbidden", nil)
		return
	}
	eventID, ok := pathID(w, r, "eventID")
	if !ok {
		return
	}

	var body struct {
		StateAction string `json:"state_action"`
	}
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		fail(w, r, http.StatusBadRequest, "request.invalid", "invalid body", nil)
		return
	}
	action := domain.StateAction(strings.ToUpper(strings.TrimSpace(body.StateAction)))

	e, err := h.events.ModerateByAdmin(r.Context(), traceID(r), auth.UserID, eventID, action)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, toEventView(e))
}

func (h *Handler) AdminEvents(w http.ResponseWriter, r *http.Request) {
	auth, ok := GetAuth(r.Context())
	if !ok {
		fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
		return
	}
	if !auth.IsAdmin() {
		fail(w, r, http.StatusForbidden, "auth.forbidden", "forbidden", nil)
		return
	}

	f := domain.EventFilter{}
	f.From, f.Size = parsePaging(r)

	if users := r.URL.Query()["users"]; len(users) > 0 {
		for _, s := range users {
			id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
			if err != nil {
				fail(w, r, http.StatusBadRequest, "request.invalid", "invalid users filter", nil)
				return
			}
			f.InitiatorIDs = append(f.InitiatorIDs, id)
		}
	}
	if states := r.URL.Query()["states"]; len(states) > 0 {
		for _, s := range states {
			st := domain.EventState(strings.ToUpper(strings.TrimSpace(s)))
			if !st.Valid() {
				fail(w, r, http.StatusBadRequest, "request.invalid", "invalid states filter", nil)
				return
			}
			f.States = append(f.States, st)
		}
	}

	events, err := h.events.ListAdmin(r.Context(), f)
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, toEventViews(events))
}

// ---- public ----

func (h *Handler) PublicEvent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r, "eventID")
	if !ok {
		return
	}

	e, err := h.events.GetPublic(r.Context(), eventID, r.URL.Path, clientIP(r))
	if err != nil {
		handleErr(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, toEventView(e))
}

// ---- shared plumbing ----

func parsePaging(r *http.Request) (from, size int) {
	from, _ = strconv.Atoi(r.URL.Query().Get("from"))
	if from < 0 {
		from = 0
	}
	size, err := strconv.Atoi(r.URL.Query().Get("size"))
	if err != nil || size <= 0 {
		size = 10
	}
	if size > 100 {
		size = 100
	}
	return from, size
}

func handleErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrEventNotFound):
		fail(w, r, http.StatusNotFound, "event.not_found", err.Error(), nil)
	case errors.Is(err, domain.ErrRequestNotFound):
		fail(w, r, http.StatusNotFound, "request.not_found", err.Error(), nil)
	case errors.Is(err, domain.ErrUserNotFound):
		fail(w, r, http.StatusNotFound, "user.not_found", err.Error(), nil)
	case errors.Is(err, domain.ErrCategoryNotFound):
		fail(w, r, http.StatusNotFound, "category.not_found", err.Error(), nil)

	case errors.Is(err, domain.ErrDuplicateRequest):
		fail(w, r, http.StatusConflict, "request.duplicate", err.Error(), nil)
	case errors.Is(err, domain.ErrOwnEvent):
		fail(w, r, http.StatusConflict, "request.own_event", err.Error(), nil)
	case errors.Is(err, domain.ErrNotPublished):
		fail(w, r, http.StatusConflict, "event.not_published", err.Error(), nil)
	case errors.Is(err, domain.ErrLimitReached):
		fail(w, r, http.StatusConflict, "event.limit_reached", err.Error(), nil)
	case errors.Is(err, domain.ErrRequestNotPending):
		fail(w, r, http.StatusConflict, "request.not_pending", err.Error(), nil)
	case errors.Is(err, domain.ErrRequestConfirmed):
		fail(w, r, http.StatusConflict, "request.confirmed", err.Error(), nil)
	case errors.Is(err, domain.ErrEventPublished):
		fail(w, r, http.StatusConflict, "event.published", err.Error(), nil)
	case errors.Is(err, domain.ErrEventNotPending):
		fail(w, r, http.StatusConflict, "event.not_pending", err.Error(), nil)

	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrEmptyBatch):
		fail(w, r, http.StatusBadRequest, "request.invalid", err.Error(), nil)

	case errors.Is(err, domain.ErrForbidden):
		fail(w, r, http.StatusForbidden, "auth.forbidden", err.Error(), nil)

	default:
		// never leak internals
		fail(w, r, http.StatusInternalServerError, "internal", "internal error", nil)
	}
}

func fail(w http.ResponseWriter, r *http.Request, status int, code, message string, meta map[string]string) {
	reqID := appCtx.GetRequestID(r.Context())
	if reqID == "" {
		reqID = "no-request-id"
	}
	response.Fail(w, status, code, message, meta, reqID)
}
