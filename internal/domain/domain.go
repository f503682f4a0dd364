package domain

import (
	"context"
	"errors"
	"time"
)

type EventState string

const (
	EventPending   EventState = "PENDING"
	EventPublished EventState = "PUBLISHED"
	EventCanceled  EventState = "CANCELED"
)

func (s EventState) Valid() bool {
	return s == EventPending || s == EventPublished || s == EventCanceled
}

type RequestStatus string

const (
	RequestPending   RequestStatus = "PENDING"
	RequestConfirmed RequestStatus = "CONFIRMED"
	RequestRejected  RequestStatus = "REJECTED"
	RequestCanceled  RequestStatus = "CANCELED"
)

var (
	ErrEventNotFound    = errors.New("event not found")
	ErrRequestNotFound  = errors.New("participation request not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrCategoryNotFound = errors.New("category not found")

	ErrNotPublished     = errors.New("event is not published")
	ErrOwnEvent         = errors.New("initiator cannot request own event")
	ErrDuplicateRequest = errors.New("participation request already exists")
	ErrLimitReached     = errors.New("participant limit reached")

	ErrRequestNotPending = errors.New("request is not pending")
	ErrRequestConfirmed  = errors.New("request is already confirmed")
	ErrEventPublished    = errors.New("event is already published")
	ErrEventNotPending   = errors.New("event is not pending")

	ErrForbidden  = errors.New("forbidden")
	ErrEmptyBatch = errors.New("empty request id list")
	ErrValidation = errors.New("validation failed")

	ErrCacheMiss = errors.New("cache miss")
)

// Event is the aggregate the admission engine serializes on. ConfirmedRequests
// is the capacity ledger; ParticipantLimit == 0 means unlimited.
type Event struct {
	ID          int64
	InitiatorID int64

	Title       string
	Annotation  string
	Description string
	CategoryID  int64
	EventDate   time.Time
	Paid        bool

	ParticipantLimit  int
	ConfirmedRequests int
	RequestModeration bool

	State       EventState
	CreatedOn   time.Time
	PublishedOn *time.Time

	Views int64
}

// Unlimited reports whether the event has no capacity limit.
func (e *Event) Unlimited() bool { return e.ParticipantLimit == 0 }

// Full reports whether the ledger has exhausted the limit.
func (e *Event) Full() bool {
	return !e.Unlimited() && e.ConfirmedRequests >= e.ParticipantLimit
}

// ParticipationRequest relates one requester to one event. At most one
// non-canceled request may exist per (requester, event) pair.
type ParticipationRequest struct {
	ID          int64
	EventID     int64
	RequesterID int64
	Status      RequestStatus
	Created     time.Time
}

// ModerationDecision is the single outcome an organizer applies to a batch.
type ModerationDecision string

const (
	DecisionConfirm ModerationDecision = "CONFIRMED"
	DecisionReject  ModerationDecision = "REJECTED"
)

// ModerationResult mirrors admission order within the batch.
type ModerationResult struct {
	Confirmed []ParticipationRequest
	Rejected  []ParticipationRequest
}

type User struct {
	ID   int64
	Name string
}

type Category struct {
	ID   int64
	Name string
}

// EventFilter narrows the admin event listing. Zero values mean "no filter".
type EventFilter struct {
	InitiatorIDs []int64
	States       []EventState
	From         int
	Size         int
}

// RequestRepository owns the transactional admission paths. Every capacity
// decision runs as one unit of work serialized on the event row.
type RequestRepository interface {
	Submit(ctx context.Context, traceID string, requesterID, eventID int64) (ParticipationRequest, error)
	Cancel(ctx context.Context, traceID string, requesterID, requestID int64) (ParticipationRequest, error)
	ModerateBatch(ctx context.Context, traceID string, eventID int64, requestIDs []int64, decision ModerationDecision) (ModerationResult, error)

	ListByRequester(ctx context.Context, requesterID int64) ([]ParticipationRequest, error)
	ListByEvent(ctx context.Context, eventID int64) ([]ParticipationRequest, error)
}

type EventRepository interface {
	Create(ctx context.Context, e *Event) error
	GetByID(ctx context.Context, id int64) (*Event, error)
	GetPublished(ctx context.Context, id int64) (*Event, error)
	GetByIDAndInitiator(ctx context.Context, id, initiatorID int64) (*Event, error)
	GetOwnerID(ctx context.Context, id int64) (int64, error)
	Update(ctx context.Context, e *Event) error

	SetState(ctx context.Context, traceID string, id int64, action StateAction) (*Event, error)
	AddViews(ctx context.Context, ids []int64) error

	ListByInitiator(ctx context.Context, initiatorID int64, from, size int) ([]Event, error)
	ListAdmin(ctx context.Context, f EventFilter) ([]Event, error)
}

// DirectoryRepository validates collaborator references. The full user and
// category CRUD lives outside this service.
type DirectoryRepository interface {
	GetUser(ctx context.Context, id int64) (User, error)
	GetCategory(ctx context.Context, id int64) (Category, error)
}

type CacheRepository interface {
	GetEventFull(ctx context.Context, eventID int64) (bool, error)
	SetEventFull(ctx context.Context, eventID int64, full bool) error
	MarkSeen(ctx context.Context, uri, clientIP string, ttl time.Duration) (first bool, err error)

	AllowRequest(ctx context.Context, ip string, limit int, window time.Duration) (bool, error)
}
