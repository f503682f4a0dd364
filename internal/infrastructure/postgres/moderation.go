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

// ModerateBatch applies one organizer decision to an ordered batch. The whole
// walk runs inside a single transaction with the event row locked, so the
// capacity snapshot the plan is computed from cannot move underneath it. The
// ledger is written once at the end, guarded against overshooting the limit.
func (r *Repository) ModerateBatch(ctx context.Context, traceID string, eventID int64, requestIDs []int64, decision domain.ModerationDecision) (domain.ModerationResult, error) {
	traceID = strings.TrimSpace(traceID)
	if len(requestIDs) == 0 {
		return domain.ModerationResult{}, domain.ErrEmptyBatch
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.ModerationResult{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// 1) lock the event row first
	e, err := scanEvent(tx.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, eventID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ModerationResult{}, domain.ErrEventNotFound
		}
		return domain.ModerationResult{}, err
	}

	// 2) load the batch in caller order; the order is the admission order
	rows, err := tx.Query(ctx, `
		SELECT id, event_id, requester_id, status, created
		FROM requests
		WHERE id = ANY($1) AND event_id = $2
		ORDER BY array_position($1, id)
		FOR UPDATE
	`, requestIDs, eventID)
	if err != nil {
		return domain.ModerationResult{}, err
	}

	var batch []domain.ParticipationRequest
	for rows.Next() {
		var req domain.ParticipationRequest
		var status string
		if err := rows.Scan(&req.ID, &req.EventID, &req.RequesterID, &status, &req.Created); err != nil {
			rows.Close()
			return domain.ModerationResult{}, err
		}
		req.Status = domain.RequestStatus(status)
		batch = append(batch, req)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.ModerationResult{}, err
	}

	// ids that do not exist or belong to another event fail the whole batch
	if len(batch) != len(requestIDs) {
		return domain.ModerationResult{}, domain.ErrRequestNotFound
	}

	res, admitted, err := domain.PlanModeration(e, batch, decision)
	if err != nil {
		return domain.ModerationResult{}, err
	}

	if ids := requestIDsOf(res.Confirmed); len(ids) > 0 {
		if _, err := tx.Exec(ctx,
			`UPDATE requests SET status = 'CONFIRMED' WHERE id = ANY($1)`, ids); err != nil {
			return domain.ModerationResult{}, err
		}
	}
	if ids := requestIDsOf(res.Rejected); len(ids) > 0 {
		if _, err := tx.Exec(ctx,
			`UPDATE requests SET status = 'REJECTED' WHERE id = ANY($1)`, ids); err != nil {
			return domain.ModerationResult{}, err
		}
	}

	// 3) single ledger write for everything the plan admitted
	if admitted > 0 {
		tag, err := tx.Exec(ctx, `
			UPDATE events
			SET confirmed_requests = confirmed_requests + $2
			WHERE id = $1
			  AND (participant_limit = 0 OR confirmed_requests + $2 <= participant_limit)
		`, eventID, admitted)
		if err != nil {
			return domain.ModerationResult{}, err
		}
		if tag.RowsAffected() == 0 {
			return domain.ModerationResult{}, domain.ErrLimitReached
		}
	}

	payload, _ := json.Marshal(map[string]any{
		"event_id":  eventID,
		"decision":  string(decision),
		"confirmed": requestIDsOf(res.Confirmed),
		"rejected":  requestIDsOf(res.Rejected),
	})
	_, _ = tx.Exec(ctx,
		`INSERT INTO outbox (message_id, trace_id, routing_key, payload, occurred_at, status)
		 VALUES ($1, $2, $3, $4, NOW(), 'pending')`,
		uuid.New(), traceID, "request.moderated", payload,
	)

	if err := tx.Commit(ctx); err != nil {
		return domain.ModerationResult{}, err
	}
	return res, nil
}
