package domain

import "time"

type BillingStatus string

const (
	BillingStatusPending BillingStatus = "PENDING"
	BillingStatusPartial BillingStatus = "PARTIAL"
	BillingStatusPaid    BillingStatus = "PAID"
)

// BillingRecord is a monetary obligation assessed against an owner. All
// amounts are integer paise. The record is append-only in effect: amounts
// move only through payment and adjustment events, and the record is never
// deleted.
type BillingRecord struct {
	ID               int64      `json:"id"`
	OwnerID          int64      `json:"owner_id"`
	ScheduleRef      string     `json:"schedule_ref"` // fee-schedule entry or penalty reference; Assess is idempotent per (owner, ref)
	ObligationPaise  int64      `json:"obligation_paise"`
	PaidPaise        int64      `json:"paid_paise"`
	DiscountPaise    int64      `json:"discount_paise"`
	ScholarshipPaise int64      `json:"scholarship_paise"`
	DueAt            *time.Time `json:"due_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Status is always derived from the amounts, never stored, so it cannot
// drift from the figures it summarizes.
func (b *BillingRecord) Status() BillingStatus {
	covered := b.PaidPaise + b.DiscountPaise + b.ScholarshipPaise
	switch {
	case covered >= b.ObligationPaise:
		return BillingStatusPaid
	case covered > 0:
		return BillingStatusPartial
	default:
		return BillingStatusPending
	}
}

// OutstandingPaise is the remainder still owed; never negative.
func (b *BillingRecord) OutstandingPaise() int64 {
	rest := b.ObligationPaise - b.PaidPaise - b.DiscountPaise - b.ScholarshipPaise
	if rest < 0 {
		return 0
	}
	return rest
}
