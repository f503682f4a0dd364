package postgres

import (
	"context"
	"fmt"

	"github.com/avolkov/afisha/internal/domain"
)

func clampSize(size int) int {
	if size <= 0 {
		return 10
	}
	if size > 100 {
		return 100
	}
	return size
}

func (r *Repository) ListByRequester(ctx context.Context, requesterID int64) ([]domain.ParticipationRequest, error) {
	return r.listRequests(ctx,
		`SELECT id, event_id, requester_id, status, created
		 FROM requests
		 WHERE requester_id = $1
		 ORDER BY created ASC, id ASC`, requesterID)
}

func (r *Repository) ListByEvent(ctx context.Context, eventID int64) ([]domain.ParticipationRequest, error) {
	return r.listRequests(ctx,
		`SELECT id, event_id, requester_id, status, created
		 FROM requests
		 WHERE event_id = $1
		 ORDER BY created ASC, id ASC`, eventID)
}

func (r *Repository) listRequests(ctx context.Context, q string, args ...any) ([]domain.ParticipationRequest, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ParticipationRequest
	for rows.Next() {
		var req domain.ParticipationRequest
		var status string
		if err := rows.Scan(&req.ID, &req.EventID, &req.RequesterID, &status, &req.Created); err != nil {
			return nil, err
		}
		req.Status = domain.RequestStatus(status)
		out = append(out, req)
	}
	return out, rows.Err()
}

func (r *Repository) ListByInitiator(ctx context.Context, initiatorID int64, from, size int) ([]domain.Event, error) {
	if from < 0 {
		from = 0
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+eventColumns+`
		 FROM events
		 WHERE initiator_id = $1
		 ORDER BY id ASC
		 OFFSET $2 LIMIT $3`, initiatorID, from, clampSize(size))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

func (r *Repository) ListAdmin(ctx context.Context, f domain.EventFilter) ([]domain.Event, error) {
	args := []any{}
	where := ""
	argN := 1

	appendCond := func(cond string, val any) {
		if where == "" {
			where = "WHERE " + cond
		} else {
			where += " AND " + cond
		}
		args = append(args, val)
		argN++
	}

	if len(f.InitiatorIDs) > 0 {
		appendCond(fmt.Sprintf("initiator_id = ANY($%d)", argN), f.InitiatorIDs)
	}
	if len(f.States) > 0 {
		states := make([]string, 0, len(f.States))
		for _, s := range f.States {
			states = append(states, string(s))
		}
		appendCond(fmt.Sprintf("state = ANY($%d)", argN), states)
	}

	from := f.From
	if from < 0 {
		from = 0
	}
	q := fmt.Sprintf(`
		SELECT `+eventColumns+`
		FROM events
		%s
		ORDER BY id ASC
		OFFSET %d LIMIT %d
	`, where, from, clampSize(f.Size))

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}
