package postgres

import (
	"context"
	"fmt"
	"time"

	"campusledger/internal/domain"
	"campusledger/internal/repository"
)

type poolRepository struct {
	q repository.Querier
}

func NewPoolRepository(q repository.Querier) repository.PoolRepository {
	return &poolRepository{q: q}
}

const poolColumns = `id, kind, label, total_capacity, reserved_count, COALESCE(academic_year, ''), COALESCE(isbn, ''), window_opens_at, window_closes_at, archived, created_at, updated_at`

func scanPool(row interface{ Scan(...any) error }, p *domain.Pool) error {
	return row.Scan(&p.ID, &p.Kind, &p.Label, &p.TotalCapacity, &p.ReservedCount,
		&p.AcademicYear, &p.ISBN, &p.WindowOpensAt, &p.WindowClosesAt,
		&p.Archived, &p.CreatedAt, &p.UpdatedAt)
}

func (r *poolRepository) Create(ctx context.Context, p *domain.Pool) error {
	query := `INSERT INTO pools (kind, label, total_capacity, reserved_count, academic_year, isbn, window_opens_at, window_closes_at, archived, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id, created_at, updated_at`
	now := time.Now().UTC()
	err := r.q.QueryRowContext(ctx, query, p.Kind, p.Label, p.TotalCapacity, p.ReservedCount,
		p.AcademicYear, p.ISBN, p.WindowOpensAt, p.WindowClosesAt, p.Archived, now, now).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	return mapError(err)
}

func (r *poolRepository) GetByID(ctx context.Context, id int64) (*domain.Pool, error) {
	p := &domain.Pool{}
	query := `SELECT ` + poolColumns + ` FROM pools WHERE id = $1`
	if err := scanPool(r.q.QueryRowContext(ctx, query, id), p); err != nil {
		return nil, mapError(err)
	}
	return p, nil
}

func (r *poolRepository) GetForUpdate(ctx context.Context, id int64) (*domain.Pool, error) {
	p := &domain.Pool{}
	query := `SELECT ` + poolColumns + ` FROM pools WHERE id = $1 FOR UPDATE`
	if err := scanPool(r.q.QueryRowContext(ctx, query, id), p); err != nil {
		return nil, mapError(err)
	}
	return p, nil
}

func (r *poolRepository) SetReservedCount(ctx context.Context, id int64, count int32) error {
	// The schema-level check constraint backstops the invariant in case a
	// caller ever writes without holding the row lock.
	query := `UPDATE pools SET reserved_count = $1, updated_at = $2 WHERE id = $3`
	res, err := r.q.ExecContext(ctx, query, count, time.Now().UTC(), id)
	if err != nil {
		return mapError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *poolRepository) Archive(ctx context.Context, id int64) error {
	query := `UPDATE pools SET archived = TRUE, updated_at = $1 WHERE id = $2`
	res, err := r.q.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return mapError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *poolRepository) ListByKind(ctx context.Context, kind domain.PoolKind, page, pageSize int32) ([]domain.Pool, int32, error) {
	offset := (page - 1) * pageSize

	var count int32
	countQuery := `SELECT count(*) FROM pools WHERE kind = $1 AND NOT archived`
	if err := r.q.QueryRowContext(ctx, countQuery, kind).Scan(&count); err != nil {
		return nil, 0, mapError(err)
	}

	query := fmt.Sprintf(`SELECT %s FROM pools WHERE kind = $1 AND NOT archived ORDER BY id LIMIT $2 OFFSET $3`, poolColumns)
	rows, err := r.q.QueryContext(ctx, query, kind, pageSize, offset)
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer rows.Close()

	var pools []domain.Pool
	for rows.Next() {
		var p domain.Pool
		if err := scanPool(rows, &p); err != nil {
			return nil, 0, err
		}
		pools = append(pools, p)
	}
	return pools, count, rows.Err()
}
