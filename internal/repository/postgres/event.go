package postgres

import (
	"context"
	"time"

	"github.com/lib/pq"

	"campusledger/internal/domain"
	"campusledger/internal/repository"
)

type eventRepository struct {
	q repository.Querier
}

func NewEventRepository(q repository.Querier) repository.EventRepository {
	return &eventRepository{q: q}
}

func (r *eventRepository) Append(ctx context.Context, e *domain.Event) error {
	query := `INSERT INTO events (id, type, owner_id, payload, occurred_at)
	          VALUES ($1, $2, $3, $4, $5)`
	_, err := r.q.ExecContext(ctx, query, e.ID, e.Type, e.OwnerID, []byte(e.Payload), e.OccurredAt)
	return mapError(err)
}

func (r *eventRepository) ListUndelivered(ctx context.Context, limit int32) ([]domain.Event, error) {
	query := `SELECT id, type, owner_id, payload, occurred_at, delivered_at
	          FROM events WHERE delivered_at IS NULL ORDER BY occurred_at LIMIT $1`
	rows, err := r.q.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var e domain.Event
		var payload []byte
		if err := rows.Scan(&e.ID, &e.Type, &e.OwnerID, &payload, &e.OccurredAt, &e.DeliveredAt); err != nil {
			return nil, err
		}
		e.Payload = payload
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *eventRepository) MarkDelivered(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	query := `UPDATE events SET delivered_at = $1 WHERE id = ANY($2) AND delivered_at IS NULL`
	_, err := r.q.ExecContext(ctx, query, at, pq.Array(ids))
	return mapError(err)
}
