package audit

import (
	"context"

	"github.com/avolkov/afisha/internal/domain"
	appCtx "github.com/avolkov/afisha/internal/pkg/context"
	"github.com/rs/zerolog"
)

// Logger provides structured audit logging for admission decisions.
type Logger struct {
	log zerolog.Logger
}

func New(log zerolog.Logger) *Logger {
	return &Logger{
		log: log.With().Bool("audit", true).Logger(),
	}
}

// RequestSubmitted logs a new participation request and its initial status.
func (l *Logger) RequestSubmitted(ctx context.Context, eventID, requesterID int64, status domain.RequestStatus) {
	l.log.Info().
		Str("action", "request_submitted").
		Int64("event_id", eventID).
		Int64("requester_id", requesterID).
		Str("status", string(status)).
		Str("trace_id", traceID(ctx)).
		Msg("Participation request submitted")
}

// RequestCanceled logs a requester-side cancellation.
func (l *Logger) RequestCanceled(ctx context.Context, requestID, requesterID int64, freedSeat bool) {
	l.log.Info().
		Str("action", "request_canceled").
		Int64("request_id", requestID).
		Int64("requester_id", requesterID).
		Bool("freed_seat", freedSeat).
		Str("trace_id", traceID(ctx)).
		Msg("Participation request canceled")
}

// BatchModerated logs the outcome of an organizer moderation batch.
func (l *Logger) BatchModerated(ctx context.Context, eventID, ownerID int64, decision domain.ModerationDecision, confirmed, rejected int) {
	l.log.Info().
		Str("action", "batch_moderated").
		Int64("event_id", eventID).
		Int64("owner_id", ownerID).
		Str("decision", string(decision)).
		Int("confirmed", confirmed).
		Int("rejected", rejected).
		Str("trace_id", traceID(ctx)).
		Msg("Moderation batch applied")
}

// EventStateChanged logs an admin or initiator lifecycle transition.
func (l *Logger) EventStateChanged(ctx context.Context, eventID, actorID int64, action domain.StateAction, state domain.EventState) {
	l.log.Info().
		Str("action", "event_state_changed").
		Int64("event_id", eventID).
		Int64("actor_id", actorID).
		Str("state_action", string(action)).
		Str("state", string(state)).
		Str("trace_id", traceID(ctx)).
		Msg("Event state changed")
}

func traceID(ctx context.Context) string {
	return appCtx.GetRequestID(ctx)
}
