package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/avolkov/afisha/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// -------------------------
// Deadlock policy:
// Always lock in this order (for the same event id):
//   1) events row (FOR UPDATE) — it carries the capacity ledger
//   2) requests row(s) (FOR UPDATE)
// Submit, Cancel and ModerateBatch all follow it, so capacity decisions on
// one event serialize on that single row and never cycle.
// -------------------------

const eventColumns = `id, initiator_id, title, annotation, description, category_id,
	event_date, paid, participant_limit, confirmed_requests, request_moderation,
	state, created_on, published_on, views`

func scanEvent(row pgx.Row) (*domain.Event, error) {
	var e domain.Event
	var state string
	err := row.Scan(
		&e.ID, &e.InitiatorID, &e.Title, &e.Annotation, &e.Description, &e.CategoryID,
		&e.EventDate, &e.Paid, &e.ParticipantLimit, &e.ConfirmedRequests, &e.RequestModeration,
		&state, &e.CreatedOn, &e.PublishedOn, &e.Views,
	)
	if err != nil {
		return nil, err
	}
	e.State = domain.EventState(state)
	return &e, nil
}

func collectEvents(rows pgx.Rows) ([]domain.Event, error) {
	var out []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (r *Repository) Create(ctx context.Context, e *domain.Event) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO events
			(initiator_id, title, annotation, description, category_id,
			 event_date, paid, participant_limit, request_moderation, state, created_on)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id
	`, e.InitiatorID, e.Title, e.Annotation, e.Description, e.CategoryID,
		e.EventDate, e.Paid, e.ParticipantLimit, e.RequestModeration, string(e.State), e.CreatedOn,
	).Scan(&e.ID)
}

func (r *Repository) GetByID(ctx context.Context, id int64) (*domain.Event, error) {
	e, err := scanEvent(r.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrEventNotFound
	}
	return e, err
}

func (r *Repository) GetPublished(ctx context.Context, id int64) (*domain.Event, error) {
	e, err := scanEvent(r.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1 AND state = 'PUBLISHED'`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		// the public surface does not reveal unpublished events
		return nil, domain.ErrEventNotFound
	}
	return e, err
}

func (r *Repository) GetByIDAndInitiator(ctx context.Context, id, initiatorID int64) (*domain.Event, error) {
	e, err := scanEvent(r.pool.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1 AND initiator_id = $2`, id, initiatorID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrEventNotFound
	}
	return e, err
}

func (r *Repository) GetOwnerID(ctx context.Context, id int64) (int64, error) {
	var owner int64
	err := r.pool.QueryRow(ctx, `SELECT initiator_id FROM events WHERE id = $1`, id).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrEventNotFound
	}
	return owner, err
}

// Update persists initiator-editable fields plus the state. It never touches
// confirmed_requests: the ledger moves only through the admission paths.
func (r *Repository) Update(ctx context.Context, e *domain.Event) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE events
		SET title = $2,
		    annotation = $3,
		    description = $4,
		    category_id = $5,
		    event_date = $6,
		    paid = $7,
		    participant_limit = $8,
		    request_moderation = $9,
		    state = $10
		WHERE id = $1
	`, e.ID, e.Title, e.Annotation, e.Description, e.CategoryID,
		e.EventDate, e.Paid, e.ParticipantLimit, e.RequestModeration, string(e.State))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEventNotFound
	}
	return nil
}

// SetState applies an administrator lifecycle action as one transaction: the
// event row is locked, the transition table decides, publication stamps
// published_on.
func (r *Repository) SetState(ctx context.Context, traceID string, id int64, action domain.StateAction) (*domain.Event, error) {
	traceID = strings.TrimSpace(traceID)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	e, err := scanEvent(tx.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEventNotFound
		}
		return nil, err
	}

	next, err := domain.Transition(e.State, action)
	if err != nil {
		return nil, err
	}
	e.State = next

	if action == domain.ActionPublish {
		err = tx.QueryRow(ctx, `
			UPDATE events SET state = $2, published_on = NOW()
			WHERE id = $1
			RETURNING published_on
		`, id, string(next)).Scan(&e.PublishedOn)
	} else {
		_, err = tx.Exec(ctx,
			`UPDATE events SET state = $2 WHERE id = $1`, id, string(next))
	}
	if err != nil {
		return nil, err
	}

	payload, _ := json.Marshal(map[string]any{
		"event_id": id,
		"action":   string(action),
		"state":    string(next),
	})
	_, _ = tx.Exec(ctx,
		`INSERT INTO outbox (message_id, trace_id, routing_key, payload, occurred_at, status)
		 VALUES ($1, $2, $3, $4, NOW(), 'pending')`,
		uuid.New(), traceID, "event.state_changed", payload,
	)

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

func (r *Repository) AddViews(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE events SET views = views + 1 WHERE id = ANY($1)`, ids)
	return err
}

func (r *Repository) GetUser(ctx context.Context, id int64) (domain.User, error) {
	var u domain.User
	err := r.pool.QueryRow(ctx, `SELECT id, name FROM users WHERE id = $1`, id).Scan(&u.ID, &u.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, err
}

func (r *Repository) GetCategory(ctx context.Context, id int64) (domain.Category, error) {
	var c domain.Category
	err := r.pool.QueryRow(ctx, `SELECT id, name FROM categories WHERE id = $1`, id).Scan(&c.ID, &c.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Category{}, domain.ErrCategoryNotFound
	}
	return c, err
}
