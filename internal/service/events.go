package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/avolkov/afisha/internal/audit"
	"github.com/avolkov/afisha/internal/domain"
	"github.com/avolkov/afisha/internal/stats"
)

// minEventLead is the shortest allowed gap between now and the event date.
const minEventLead = 2 * time.Hour

// seenTTL bounds how long a (uri, ip) pair counts as a single view.
const seenTTL = 24 * time.Hour

// NewEvent carries the initiator-supplied fields for event creation.
type NewEvent struct {
	Title             string
	Annotation        string
	Description       string
	CategoryID        int64
	EventDate         time.Time
	Paid              bool
	ParticipantLimit  int
	RequestModeration bool
}

// EventPatch is a partial update; nil fields are left untouched.
type EventPatch struct {
	Title             *string
	Annotation        *string
	Description       *string
	CategoryID        *int64
	EventDate         *time.Time
	Paid              *bool
	ParticipantLimit  *int
	RequestModeration *bool

	StateAction domain.StateAction
}

type EventService struct {
	events    domain.EventRepository
	dir       domain.DirectoryRepository
	collector stats.Collector
	cache     domain.CacheRepository
	audit     *audit.Logger
}

func NewEventService(events domain.EventRepository, dir domain.DirectoryRepository, collector stats.Collector, cache domain.CacheRepository, aud *audit.Logger) *EventService {
	if collector == nil {
		collector = stats.Noop{}
	}
	return &EventService{events: events, dir: dir, collector: collector, cache: cache, audit: aud}
}

func (s *EventService) Create(ctx context.Context, initiatorID int64, in NewEvent) (*domain.Event, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", domain.ErrValidation)
	}
	if in.ParticipantLimit < 0 {
		return nil, fmt.Errorf("%w: participant limit must be non-negative", domain.ErrValidation)
	}
	if time.Until(in.EventDate) < minEventLead {
		return nil, fmt.Errorf("%w: event date must be at least %s ahead", domain.ErrValidation, minEventLead)
	}
	if _, err := s.dir.GetUser(ctx, initiatorID); err != nil {
		return nil, err
	}
	if _, err := s.dir.GetCategory(ctx, in.CategoryID); err != nil {
		return nil, err
	}

	e := &domain.Event{
		InitiatorID:       initiatorID,
		Title:             in.Title,
		Annotation:        in.Annotation,
		Description:       in.Description,
		CategoryID:        in.CategoryID,
		EventDate:         in.EventDate,
		Paid:              in.Paid,
		ParticipantLimit:  in.ParticipantLimit,
		RequestModeration: in.RequestModeration,
		State:             domain.EventPending,
		CreatedOn:         time.Now().UTC(),
	}
	if err := s.events.Create(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// UpdateByInitiator applies a partial edit, optionally moving the event
// between PENDING and CANCELED. Published events are immutable to the
// initiator.
func (s *EventService) UpdateByInitiator(ctx context.Context, traceID string, initiatorID, eventID int64, patch EventPatch) (*domain.Event, error) {
	e, err := s.events.GetByIDAndInitiator(ctx, eventID, initiatorID)
	if err != nil {
		return nil, err
	}
	if e.State == domain.EventPublished {
		return nil, domain.ErrEventPublished
	}

	if patch.Title != nil {
		if strings.TrimSpace(*patch.Title) == "" {
			return nil, fmt.Errorf("%w: title is required", domain.ErrValidation)
		}
		e.Title = *patch.Title
	}
	if patch.Annotation != nil {
		e.Annotation = *patch.Annotation
	}
	if patch.Description != nil {
		e.Description = *patch.Description
	}
	if patch.CategoryID != nil {
		if _, err := s.dir.GetCategory(ctx, *patch.CategoryID); err != nil {
			return nil, err
		}
		e.CategoryID = *patch.CategoryID
	}
	if patch.EventDate != nil {
		if time.Until(*patch.EventDate) < minEventLead {
			return nil, fmt.Errorf("%w: event date must be at least %s ahead", domain.ErrValidation, minEventLead)
		}
		e.EventDate = *patch.EventDate
	}
	if patch.Paid != nil {
		e.Paid = *patch.Paid
	}
	if patch.ParticipantLimit != nil {
		if *patch.ParticipantLimit < 0 {
			return nil, fmt.Errorf("%w: participant limit must be non-negative", domain.ErrValidation)
		}
		e.ParticipantLimit = *patch.ParticipantLimit
	}
	if patch.RequestModeration != nil {
		e.RequestModeration = *patch.RequestModeration
	}

	if patch.StateAction != "" {
		if patch.StateAction.Admin() {
			return nil, domain.ErrForbidden
		}
		next, err := domain.Transition(e.State, patch.StateAction)
		if err != nil {
			return nil, err
		}
		e.State = next
	}

	if err := s.events.Update(ctx, e); err != nil {
		return nil, err
	}

	if s.audit != nil && patch.StateAction != "" {
		s.audit.EventStateChanged(ctx, e.ID, initiatorID, patch.StateAction, e.State)
	}
	return e, nil
}

// ModerateByAdmin publishes or rejects a submitted event.
func (s *EventService) ModerateByAdmin(ctx context.Context, traceID string, adminID, eventID int64, action domain.StateAction) (*domain.Event, error) {
	if !action.Valid() || !action.Admin() {
		return nil, fmt.Errorf("%w: unknown state action %q", domain.ErrValidation, action)
	}
	e, err := s.events.SetState(ctx, traceID, eventID, action)
	if err != nil {
		return nil, err
	}
	if s.audit != nil {
		s.audit.EventStateChanged(ctx, e.ID, adminID, action, e.State)
	}
	return e, nil
}

func (s *EventService) GetForInitiator(ctx context.Context, initiatorID, eventID int64) (*domain.Event, error) {
	return s.events.GetByIDAndInitiator(ctx, eventID, initiatorID)
}

func (s *EventService) ListForInitiator(ctx context.Context, initiatorID int64, from, size int) ([]domain.Event, error) {
	if _, err := s.dir.GetUser(ctx, initiatorID); err != nil {
		return nil, err
	}
	return s.events.ListByInitiator(ctx, initiatorID, from, size)
}

func (s *EventService) ListAdmin(ctx context.Context, f domain.EventFilter) ([]domain.Event, error) {
	return s.events.ListAdmin(ctx, f)
}

// GetPublic serves the public read path. Every hit is forwarded to the
// statistics collector; the view counter only moves on the first sighting
// of a (uri, ip) pair within the dedup window.
func (s *EventService) GetPublic(ctx context.Context, eventID int64, uri, clientIP string) (*domain.Event, error) {
	e, err := s.events.GetPublished(ctx, eventID)
	if err != nil {
		return nil, err
	}

	// best effort: a down statistics service never fails the read
	_ = s.collector.RecordHit(ctx, stats.Hit{
		URI:       uri,
		ClientIP:  clientIP,
		Timestamp: time.Now().UTC(),
	})

	if s.firstSighting(ctx, uri, clientIP) {
		if err := s.events.AddViews(ctx, []int64{eventID}); err == nil {
			e.Views++
		}
	}
	return e, nil
}

// firstSighting dedupes views per (uri, ip). The cache is the cheap path;
// when it is unavailable the collector's historical counts decide.
func (s *EventService) firstSighting(ctx context.Context, uri, clientIP string) bool {
	if s.cache != nil {
		first, err := s.cache.MarkSeen(ctx, uri, clientIP, seenTTL)
		if err == nil {
			return first
		}
	}
	seen, err := s.collector.DistinctHitsSince(ctx, uri, clientIP, time.Now().Add(-seenTTL))
	if err != nil {
		return false
	}
	return seen <= 1
}
