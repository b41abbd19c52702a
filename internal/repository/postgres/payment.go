package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"campusledger/internal/domain"
	"campusledger/internal/repository"
)

type paymentEventRepository struct {
	q repository.Querier
}

func NewPaymentEventRepository(q repository.Querier) repository.PaymentEventRepository {
	return &paymentEventRepository{q: q}
}

const paymentColumns = `id, billing_record_id, amount_paise, method, external_txn_id, outcome, occurred_at`

func (r *paymentEventRepository) Append(ctx context.Context, ev *domain.PaymentEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	query := `INSERT INTO payment_events (id, billing_record_id, amount_paise, method, external_txn_id, outcome, occurred_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.q.ExecContext(ctx, query, ev.ID, ev.BillingRecordID, ev.AmountPaise,
		ev.Method, ev.ExternalTxnID, ev.Outcome, ev.OccurredAt)
	if isUniqueViolation(err, "payment_events_external_txn_id_key") {
		return fmt.Errorf("%w: external txn %s", domain.ErrDuplicatePayment, ev.ExternalTxnID)
	}
	return mapError(err)
}

func (r *paymentEventRepository) SumCompleted(ctx context.Context, billingRecordID int64) (int64, error) {
	// Adjustment events (discount/scholarship) are excluded: they credit
	// their own amount columns, not paid_paise.
	var sum int64
	query := `SELECT COALESCE(SUM(amount_paise), 0) FROM payment_events
	          WHERE billing_record_id = $1 AND outcome = 'COMPLETED'
	            AND method NOT IN ('DISCOUNT', 'SCHOLARSHIP')`
	err := r.q.QueryRowContext(ctx, query, billingRecordID).Scan(&sum)
	return sum, mapError(err)
}

func (r *paymentEventRepository) ListByRecord(ctx context.Context, billingRecordID int64) ([]domain.PaymentEvent, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_events WHERE billing_record_id = $1 ORDER BY occurred_at`
	rows, err := r.q.QueryContext(ctx, query, billingRecordID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var events []domain.PaymentEvent
	for rows.Next() {
		var ev domain.PaymentEvent
		if err := rows.Scan(&ev.ID, &ev.BillingRecordID, &ev.AmountPaise, &ev.Method,
			&ev.ExternalTxnID, &ev.Outcome, &ev.OccurredAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
