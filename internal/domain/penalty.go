package domain

import "time"

// Penalty is a computed fine against an allocation, e.g. a library overdue
// charge. Zero-amount penalties are recorded too: an on-time return leaves
// an auditable "checked, nothing owed" row.
type Penalty struct {
	ID           int64     `json:"id"`
	AllocationID int64     `json:"allocation_id"`
	AmountPaise  int64     `json:"amount_paise"`
	Reason       string    `json:"reason"`
	ComputedAt   time.Time `json:"computed_at"`
	Waived       bool      `json:"waived"`
}
