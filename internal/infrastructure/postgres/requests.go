package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/avolkov/afisha/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Submit creates a participation request and, when the admission policy
// confirms it on the spot, moves the ledger in the same transaction. The
// event row is locked first; the ledger increment is additionally guarded so
// confirmed_requests can never pass participant_limit even if a writer
// slipped past the lock.
func (r *Repository) Submit(ctx context.Context, traceID string, requesterID, eventID int64) (domain.ParticipationRequest, error) {
	traceID = strings.TrimSpace(traceID)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.ParticipationRequest{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// 1) lock the event row: it is the serialization point for this event
	e, err := scanEvent(tx.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, eventID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ParticipationRequest{}, domain.ErrEventNotFound
		}
		return domain.ParticipationRequest{}, err
	}

	// 2) at most one non-canceled request per (requester, event)
	var duplicate bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM requests
			WHERE event_id = $1 AND requester_id = $2 AND status <> 'CANCELED'
		)
	`, eventID, requesterID).Scan(&duplicate)
	if err != nil {
		return domain.ParticipationRequest{}, err
	}
	if duplicate {
		return domain.ParticipationRequest{}, domain.ErrDuplicateRequest
	}

	// 3) admission preconditions and initial status
	if err := domain.CheckJoin(e, requesterID); err != nil {
		return domain.ParticipationRequest{}, err
	}
	status := domain.InitialStatus(e)

	req := domain.ParticipationRequest{
		EventID:     eventID,
		RequesterID: requesterID,
		Status:      status,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO requests (event_id, requester_id, status, created)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, created
	`, eventID, requesterID, string(status)).Scan(&req.ID, &req.Created)
	if err != nil {
		return domain.ParticipationRequest{}, err
	}

	// 4) ledger: conditional increment, never trusting the earlier read alone
	if domain.CountsAgainstLedger(status) {
		tag, err := tx.Exec(ctx, `
			UPDATE events
			SET confirmed_requests = confirmed_requests + 1
			WHERE id = $1
			  AND (participant_limit = 0 OR confirmed_requests < participant_limit)
		`, eventID)
		if err != nil {
			return domain.ParticipationRequest{}, err
		}
		if tag.RowsAffected() == 0 {
			return domain.ParticipationRequest{}, domain.ErrLimitReached
		}
	}

	payload, _ := json.Marshal(map[string]any{
		"request_id":   req.ID,
		"event_id":     eventID,
		"requester_id": requesterID,
		"status":       string(status),
	})
	_, _ = tx.Exec(ctx,
		`INSERT INTO outbox (message_id, trace_id, routing_key, payload, occurred_at, status)
		 VALUES ($1, $2, $3, $4, NOW(), 'pending')`,
		uuid.New(), traceID, "request.submitted", payload,
	)

	if err := tx.Commit(ctx); err != nil {
		return domain.ParticipationRequest{}, err
	}
	return req, nil
}

// Cancel marks the requester's own request CANCELED. Confirmed requests are
// refused: a taken seat is released through moderation, not through this
// path, so the ledger never moves here and a repeated cancel can never
// double-decrement it.
func (r *Repository) Cancel(ctx context.Context, traceID string, requesterID, requestID int64) (domain.ParticipationRequest, error) {
	traceID = strings.TrimSpace(traceID)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.ParticipationRequest{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// find the owning event without locking, then lock in event-first order
	var eventID int64
	err = tx.QueryRow(ctx,
		`SELECT event_id FROM requests WHERE id = $1 AND requester_id = $2`,
		requestID, requesterID).Scan(&eventID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ParticipationRequest{}, domain.ErrRequestNotFound
		}
		return domain.ParticipationRequest{}, err
	}

	if _, err := tx.Exec(ctx, `SELECT 1 FROM events WHERE id = $1 FOR UPDATE`, eventID); err != nil {
		return domain.ParticipationRequest{}, err
	}

	req := domain.ParticipationRequest{ID: requestID, EventID: eventID, RequesterID: requesterID}
	var status string
	err = tx.QueryRow(ctx, `
		SELECT status, created FROM requests
		WHERE id = $1 AND requester_id = $2
		FOR UPDATE
	`, requestID, requesterID).Scan(&status, &req.Created)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ParticipationRequest{}, domain.ErrRequestNotFound
		}
		return domain.ParticipationRequest{}, err
	}

	switch domain.RequestStatus(status) {
	case domain.RequestConfirmed:
		return domain.ParticipationRequest{}, domain.ErrRequestConfirmed
	case domain.RequestCanceled:
		return domain.ParticipationRequest{}, domain.ErrRequestNotFound
	}

	if _, err := tx.Exec(ctx,
		`UPDATE requests SET status = 'CANCELED' WHERE id = $1`, requestID); err != nil {
		return domain.ParticipationRequest{}, err
	}
	req.Status = domain.RequestCanceled

	payload, _ := json.Marshal(map[string]any{
		"request_id":   requestID,
		"event_id":     eventID,
		"requester_id": requesterID,
		"prev_status":  status,
	})
	_, _ = tx.Exec(ctx,
		`INSERT INTO outbox (message_id, trace_id, routing_key, payload, occurred_at, status)
		 VALUES ($1, $2, $3, $4, NOW(), 'pending')`,
		uuid.New(), traceID, "request.canceled", payload,
	)

	if err := tx.Commit(ctx); err != nil {
		return domain.ParticipationRequest{}, err
	}
	return req, nil
}

// requestIDsOf is a small helper for the batch update statements.
func requestIDsOf(reqs []domain.ParticipationRequest) []int64 {
	ids := make([]int64, 0, len(reqs))
	for i := range reqs {
		ids = append(ids, reqs[i].ID)
	}
	return ids
}
