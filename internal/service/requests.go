package service

import (
	"context"
	"errors"

	"github.com/avolkov/afisha/internal/audit"
	"github.com/avolkov/afisha/internal/domain"
)

// RequestService adjudicates participation requests. The transactional
// capacity work happens in the repository; this layer validates collaborator
// references and guards organizer-only paths.
type RequestService struct {
	requests domain.RequestRepository
	events   domain.EventRepository
	dir      domain.DirectoryRepository
	cache    domain.CacheRepository
	audit    *audit.Logger
}

func NewRequestService(requests domain.RequestRepository, events domain.EventRepository, dir domain.DirectoryRepository, cache domain.CacheRepository, aud *audit.Logger) *RequestService {
	return &RequestService{requests: requests, events: events, dir: dir, cache: cache, audit: aud}
}

func (s *RequestService) requireOwnerOrAdmin(ctx context.Context, eventID, actorID int64, role string) error {
	if role == "admin" {
		return nil
	}
	owner, err := s.events.GetOwnerID(ctx, eventID)
	if err != nil {
		return err
	}
	if owner != actorID {
		return domain.ErrForbidden
	}
	return nil
}

func (s *RequestService) Submit(ctx context.Context, traceID string, requesterID, eventID int64) (domain.ParticipationRequest, error) {
	if _, err := s.dir.GetUser(ctx, requesterID); err != nil {
		return domain.ParticipationRequest{}, err
	}

	// cache fast-fail: a known-full event never admits without moderation
	// freeing a seat, so skip the transaction entirely.
	if s.cache != nil {
		if full, err := s.cache.GetEventFull(ctx, eventID); err == nil && full {
			return domain.ParticipationRequest{}, domain.ErrLimitReached
		}
	}

	req, err := s.requests.Submit(ctx, traceID, requesterID, eventID)
	if err != nil {
		if errors.Is(err, domain.ErrLimitReached) && s.cache != nil {
			_ = s.cache.SetEventFull(ctx, eventID, true)
		}
		return domain.ParticipationRequest{}, err
	}

	if s.audit != nil {
		s.audit.RequestSubmitted(ctx, eventID, requesterID, req.Status)
	}
	return req, nil
}

func (s *RequestService) Cancel(ctx context.Context, traceID string, requesterID, requestID int64) (domain.ParticipationRequest, error) {
	req, err := s.requests.Cancel(ctx, traceID, requesterID, requestID)
	if err != nil {
		return domain.ParticipationRequest{}, err
	}

	if s.audit != nil {
		// a confirmed seat cannot be self-canceled, so no capacity frees here
		s.audit.RequestCanceled(ctx, requestID, requesterID, false)
	}
	return req, nil
}

func (s *RequestService) ListForRequester(ctx context.Context, requesterID int64) ([]domain.ParticipationRequest, error) {
	if _, err := s.dir.GetUser(ctx, requesterID); err != nil {
		return nil, err
	}
	return s.requests.ListByRequester(ctx, requesterID)
}

func (s *RequestService) ListForEvent(ctx context.Context, ownerID int64, role string, eventID int64) ([]domain.ParticipationRequest, error) {
	if err := s.requireOwnerOrAdmin(ctx, eventID, ownerID, role); err != nil {
		return nil, err
	}
	return s.requests.ListByEvent(ctx, eventID)
}

func (s *RequestService) ModerateBatch(ctx context.Context, traceID string, ownerID int64, role string, eventID int64, requestIDs []int64, decision domain.ModerationDecision) (domain.ModerationResult, error) {
	if len(requestIDs) == 0 {
		return domain.ModerationResult{}, domain.ErrEmptyBatch
	}
	for _, id := range requestIDs {
		if id <= 0 {
			return domain.ModerationResult{}, domain.ErrRequestNotFound
		}
	}
	if err := s.requireOwnerOrAdmin(ctx, eventID, ownerID, role); err != nil {
		return domain.ModerationResult{}, err
	}

	res, err := s.requests.ModerateBatch(ctx, traceID, eventID, requestIDs, decision)
	if err != nil {
		return domain.ModerationResult{}, err
	}

	// a confirm batch that spilled into rejections means the limit was hit
	if decision == domain.DecisionConfirm && len(res.Rejected) > 0 && s.cache != nil {
		_ = s.cache.SetEventFull(ctx, eventID, true)
	}

	if s.audit != nil {
		s.audit.BatchModerated(ctx, eventID, ownerID, decision, len(res.Confirmed), len(res.Rejected))
	}
	return res, nil
}
