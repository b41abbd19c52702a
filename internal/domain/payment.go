package domain

import "time"

type PaymentOutcome string

const (
	PaymentOutcomeCompleted PaymentOutcome = "COMPLETED"
	PaymentOutcomeFailed    PaymentOutcome = "FAILED"
	PaymentOutcomePending   PaymentOutcome = "PENDING"
)

type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "CASH"
	PaymentMethodCard         PaymentMethod = "CARD"
	PaymentMethodUPI          PaymentMethod = "UPI"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	// Adjustments are appended through the same event stream so the audit
	// trail explains every paisa of a record's covered amount.
	PaymentMethodDiscount    PaymentMethod = "DISCOUNT"
	PaymentMethodScholarship PaymentMethod = "SCHOLARSHIP"
)

// PaymentEvent is one append-only payment or adjustment attempt.
// ExternalTxnID is the idempotency key: a replayed gateway callback with a
// previously seen id must not credit the record twice.
type PaymentEvent struct {
	ID              string         `json:"id"` // uuid
	BillingRecordID int64          `json:"billing_record_id"`
	AmountPaise     int64          `json:"amount_paise"`
	Method          PaymentMethod  `json:"method"`
	ExternalTxnID   string         `json:"external_txn_id"`
	Outcome         PaymentOutcome `json:"outcome"`
	OccurredAt      time.Time      `json:"occurred_at"`
}
