package postgres

import (
	"context"
	"fmt"
	"time"

	"campusledger/internal/domain"
	"campusledger/internal/repository"
)

type billingRepository struct {
	q repository.Querier
}

func NewBillingRepository(q repository.Querier) repository.BillingRepository {
	return &billingRepository{q: q}
}

const billingColumns = `id, owner_id, schedule_ref, obligation_paise, paid_paise, discount_paise, scholarship_paise, due_at, created_at, updated_at`

func scanBilling(row interface{ Scan(...any) error }, b *domain.BillingRecord) error {
	return row.Scan(&b.ID, &b.OwnerID, &b.ScheduleRef, &b.ObligationPaise, &b.PaidPaise,
		&b.DiscountPaise, &b.ScholarshipPaise, &b.DueAt, &b.CreatedAt, &b.UpdatedAt)
}

// Create inserts a new obligation. The unique (owner_id, schedule_ref)
// index makes Assess idempotent. A conflict aborts the surrounding
// transaction, so it is surfaced as ErrDuplicateAssessment and the caller
// re-reads the winner's record on a fresh connection.
func (r *billingRepository) Create(ctx context.Context, b *domain.BillingRecord) error {
	query := `INSERT INTO billing_records (owner_id, schedule_ref, obligation_paise, paid_paise, discount_paise, scholarship_paise, due_at, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id, created_at, updated_at`
	now := time.Now().UTC()
	err := r.q.QueryRowContext(ctx, query, b.OwnerID, b.ScheduleRef, b.ObligationPaise,
		b.PaidPaise, b.DiscountPaise, b.ScholarshipPaise, b.DueAt, now, now).
		Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if isUniqueViolation(err, "billing_records_owner_schedule_key") {
		return fmt.Errorf("%w: owner %d ref %q", domain.ErrDuplicateAssessment, b.OwnerID, b.ScheduleRef)
	}
	return mapError(err)
}

func (r *billingRepository) GetByID(ctx context.Context, id int64) (*domain.BillingRecord, error) {
	b := &domain.BillingRecord{}
	query := `SELECT ` + billingColumns + ` FROM billing_records WHERE id = $1`
	if err := scanBilling(r.q.QueryRowContext(ctx, query, id), b); err != nil {
		return nil, mapError(err)
	}
	return b, nil
}

func (r *billingRepository) GetForUpdate(ctx context.Context, id int64) (*domain.BillingRecord, error) {
	b := &domain.BillingRecord{}
	query := `SELECT ` + billingColumns + ` FROM billing_records WHERE id = $1 FOR UPDATE`
	if err := scanBilling(r.q.QueryRowContext(ctx, query, id), b); err != nil {
		return nil, mapError(err)
	}
	return b, nil
}

func (r *billingRepository) GetByScheduleRef(ctx context.Context, ownerID int64, scheduleRef string) (*domain.BillingRecord, error) {
	b := &domain.BillingRecord{}
	query := `SELECT ` + billingColumns + ` FROM billing_records WHERE owner_id = $1 AND schedule_ref = $2`
	if err := scanBilling(r.q.QueryRowContext(ctx, query, ownerID, scheduleRef), b); err != nil {
		return nil, mapError(err)
	}
	return b, nil
}

func (r *billingRepository) UpdateAmounts(ctx context.Context, b *domain.BillingRecord) error {
	// Only the amount fields move; obligation and identity are immutable
	// after assessment. Status is derived, so there is nothing else to
	// write.
	query := `UPDATE billing_records SET paid_paise = $1, discount_paise = $2, scholarship_paise = $3, updated_at = $4 WHERE id = $5`
	res, err := r.q.ExecContext(ctx, query, b.PaidPaise, b.DiscountPaise, b.ScholarshipPaise, time.Now().UTC(), b.ID)
	if err != nil {
		return mapError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *billingRepository) ListByOwner(ctx context.Context, ownerID int64, page, pageSize int32) ([]domain.BillingRecord, int32, error) {
	offset := (page - 1) * pageSize

	var count int32
	if err := r.q.QueryRowContext(ctx, `SELECT count(*) FROM billing_records WHERE owner_id = $1`, ownerID).Scan(&count); err != nil {
		return nil, 0, mapError(err)
	}

	query := `SELECT ` + billingColumns + ` FROM billing_records WHERE owner_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.q.QueryContext(ctx, query, ownerID, pageSize, offset)
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer rows.Close()

	var recs []domain.BillingRecord
	for rows.Next() {
		var b domain.BillingRecord
		if err := scanBilling(rows, &b); err != nil {
			return nil, 0, err
		}
		recs = append(recs, b)
	}
	return recs, count, rows.Err()
}
