package domain

import "time"

type AllocationStatus string

const (
	AllocationStatusActive    AllocationStatus = "ACTIVE"
	AllocationStatusReturned  AllocationStatus = "RETURNED"
	AllocationStatusExpired   AllocationStatus = "EXPIRED"
	AllocationStatusCancelled AllocationStatus = "CANCELLED"
)

// Allocation is one grant of one unit of a Pool to one owner.
// ACTIVE transitions to exactly one of RETURNED, EXPIRED or CANCELLED;
// the terminal states are immutable and never re-enter ACTIVE.
type Allocation struct {
	ID           int64            `json:"id"`
	PoolID       int64            `json:"pool_id"`
	PoolKind     PoolKind         `json:"pool_kind"` // denormalized for sweeps and policy lookups
	OwnerID      int64            `json:"owner_id"`
	Status       AllocationStatus `json:"status"`
	GrantedAt    time.Time        `json:"granted_at"`
	DueAt        *time.Time       `json:"due_at,omitempty"`
	ReturnedAt   *time.Time       `json:"returned_at,omitempty"`
	RenewalCount int32            `json:"renewal_count"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// Holding is the slim join of an active allocation with the pool fields the
// policy engine scopes on. Loaded inside the reservation transaction so the
// policy decision and the mutation see the same snapshot.
type Holding struct {
	AllocationID int64
	PoolID       int64
	Kind         PoolKind
	AcademicYear string
}

func (a *Allocation) Terminal() bool {
	return a.Status != AllocationStatusActive
}

// Overdue reports whether an active allocation's due date has passed.
// Allocations without a due date are never overdue and only end through
// an explicit release or cancellation.
func (a *Allocation) Overdue(now time.Time) bool {
	return a.Status == AllocationStatusActive && a.DueAt != nil && now.After(*a.DueAt)
}
