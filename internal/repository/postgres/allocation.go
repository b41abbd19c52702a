package postgres

import (
	"context"
	"fmt"
	"time"

	"campusledger/internal/domain"
	"campusledger/internal/repository"
)

type allocationRepository struct {
	q repository.Querier
}

func NewAllocationRepository(q repository.Querier) repository.AllocationRepository {
	return &allocationRepository{q: q}
}

const allocationColumns = `id, pool_id, pool_kind, owner_id, status, granted_at, due_at, returned_at, renewal_count, created_at, updated_at`

func scanAllocation(row interface{ Scan(...any) error }, a *domain.Allocation) error {
	return row.Scan(&a.ID, &a.PoolID, &a.PoolKind, &a.OwnerID, &a.Status,
		&a.GrantedAt, &a.DueAt, &a.ReturnedAt, &a.RenewalCount, &a.CreatedAt, &a.UpdatedAt)
}

func (r *allocationRepository) Create(ctx context.Context, a *domain.Allocation) error {
	query := `INSERT INTO allocations (pool_id, pool_kind, owner_id, status, granted_at, due_at, renewal_count, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id, created_at, updated_at`
	now := time.Now().UTC()
	err := r.q.QueryRowContext(ctx, query, a.PoolID, a.PoolKind, a.OwnerID, a.Status,
		a.GrantedAt, a.DueAt, a.RenewalCount, now, now).
		Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	return mapError(err)
}

func (r *allocationRepository) GetByID(ctx context.Context, id int64) (*domain.Allocation, error) {
	a := &domain.Allocation{}
	query := `SELECT ` + allocationColumns + ` FROM allocations WHERE id = $1`
	if err := scanAllocation(r.q.QueryRowContext(ctx, query, id), a); err != nil {
		return nil, mapError(err)
	}
	return a, nil
}

func (r *allocationRepository) GetForUpdate(ctx context.Context, id int64) (*domain.Allocation, error) {
	a := &domain.Allocation{}
	query := `SELECT ` + allocationColumns + ` FROM allocations WHERE id = $1 FOR UPDATE`
	if err := scanAllocation(r.q.QueryRowContext(ctx, query, id), a); err != nil {
		return nil, mapError(err)
	}
	return a, nil
}

func (r *allocationRepository) Update(ctx context.Context, a *domain.Allocation) error {
	query := `UPDATE allocations SET status = $1, due_at = $2, returned_at = $3, renewal_count = $4, updated_at = $5 WHERE id = $6`
	res, err := r.q.ExecContext(ctx, query, a.Status, a.DueAt, a.ReturnedAt, a.RenewalCount, time.Now().UTC(), a.ID)
	if err != nil {
		return mapError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *allocationRepository) ListActiveHoldings(ctx context.Context, ownerID int64, kind domain.PoolKind) ([]domain.Holding, error) {
	query := `SELECT a.id, a.pool_id, p.kind, COALESCE(p.academic_year, '')
	          FROM allocations a
	          JOIN pools p ON p.id = a.pool_id
	          WHERE a.owner_id = $1 AND a.pool_kind = $2 AND a.status = 'ACTIVE'`
	rows, err := r.q.QueryContext(ctx, query, ownerID, kind)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var holdings []domain.Holding
	for rows.Next() {
		var h domain.Holding
		if err := rows.Scan(&h.AllocationID, &h.PoolID, &h.Kind, &h.AcademicYear); err != nil {
			return nil, err
		}
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

func (r *allocationRepository) ListByOwner(ctx context.Context, ownerID int64, status string, page, pageSize int32) ([]domain.Allocation, int32, error) {
	offset := (page - 1) * pageSize
	base := `FROM allocations WHERE owner_id = $1`
	args := []any{ownerID}
	argIdx := 2
	if status != "" {
		base += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, status)
		argIdx++
	}

	var count int32
	if err := r.q.QueryRowContext(ctx, "SELECT count(*) "+base, args...).Scan(&count); err != nil {
		return nil, 0, mapError(err)
	}

	query := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d", allocationColumns, base, argIdx, argIdx+1)
	args = append(args, pageSize, offset)
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer rows.Close()

	var allocs []domain.Allocation
	for rows.Next() {
		var a domain.Allocation
		if err := scanAllocation(rows, &a); err != nil {
			return nil, 0, err
		}
		allocs = append(allocs, a)
	}
	return allocs, count, rows.Err()
}

func (r *allocationRepository) ListOverdueActive(ctx context.Context, now time.Time, limit int32) ([]domain.Allocation, error) {
	query := `SELECT ` + allocationColumns + ` FROM allocations
	          WHERE status = 'ACTIVE' AND due_at IS NOT NULL AND due_at < $1
	          ORDER BY due_at LIMIT $2`
	rows, err := r.q.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var allocs []domain.Allocation
	for rows.Next() {
		var a domain.Allocation
		if err := scanAllocation(rows, &a); err != nil {
			return nil, err
		}
		allocs = append(allocs, a)
	}
	return allocs, rows.Err()
}
