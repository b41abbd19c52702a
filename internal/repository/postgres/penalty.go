package postgres

import (
	"context"

	"campusledger/internal/domain"
	"campusledger/internal/repository"
)

type penaltyRepository struct {
	q repository.Querier
}

func NewPenaltyRepository(q repository.Querier) repository.PenaltyRepository {
	return &penaltyRepository{q: q}
}

func (r *penaltyRepository) Create(ctx context.Context, p *domain.Penalty) error {
	query := `INSERT INTO penalties (allocation_id, amount_paise, reason, computed_at, waived)
	          VALUES ($1, $2, $3, $4, $5) RETURNING id`
	err := r.q.QueryRowContext(ctx, query, p.AllocationID, p.AmountPaise, p.Reason, p.ComputedAt, p.Waived).Scan(&p.ID)
	return mapError(err)
}

func (r *penaltyRepository) ListByAllocation(ctx context.Context, allocationID int64) ([]domain.Penalty, error) {
	query := `SELECT id, allocation_id, amount_paise, reason, computed_at, waived
	          FROM penalties WHERE allocation_id = $1 ORDER BY computed_at`
	rows, err := r.q.QueryContext(ctx, query, allocationID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var penalties []domain.Penalty
	for rows.Next() {
		var p domain.Penalty
		if err := rows.Scan(&p.ID, &p.AllocationID, &p.AmountPaise, &p.Reason, &p.ComputedAt, &p.Waived); err != nil {
			return nil, err
		}
		penalties = append(penalties, p)
	}
	return penalties, rows.Err()
}

// ListUnbilled matches penalties against billing records on the canonical
// "penalty:<id>" schedule reference, so the fine-billing sweep is a no-op
// for anything already assessed.
func (r *penaltyRepository) ListUnbilled(ctx context.Context, limit int32) ([]domain.Penalty, error) {
	query := `SELECT p.id, p.allocation_id, p.amount_paise, p.reason, p.computed_at, p.waived
	          FROM penalties p
	          LEFT JOIN billing_records b ON b.schedule_ref = 'penalty:' || p.id
	          WHERE p.amount_paise > 0 AND NOT p.waived AND b.id IS NULL
	          ORDER BY p.computed_at LIMIT $1`
	rows, err := r.q.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var penalties []domain.Penalty
	for rows.Next() {
		var p domain.Penalty
		if err := rows.Scan(&p.ID, &p.AllocationID, &p.AmountPaise, &p.Reason, &p.ComputedAt, &p.Waived); err != nil {
			return nil, err
		}
		penalties = append(penalties, p)
	}
	return penalties, rows.Err()
}

func (r *penaltyRepository) SetWaived(ctx context.Context, id int64, waived bool) error {
	res, err := r.q.ExecContext(ctx, `UPDATE penalties SET waived = $1 WHERE id = $2`, waived, id)
	if err != nil {
		return mapError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
