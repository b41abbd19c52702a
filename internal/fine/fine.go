// Package fine derives overdue penalties from elapsed time against a
// per-kind rate table. Compute is a pure function of the allocation, the
// clock and the table; persisting and billing the result is the pool
// manager's business.
package fine

import (
	"fmt"
	"time"

	"campusledger/internal/domain"
)

// RateTable maps a pool kind to its daily overdue rate in paise. Kinds
// absent from the table fine at zero.
type RateTable struct {
	DailyRatePaise map[domain.PoolKind]int64
}

// Default charges library loans at 500 paise (₹5) per overdue day and
// nothing for the other kinds.
func Default() RateTable {
	return RateTable{DailyRatePaise: map[domain.PoolKind]int64{
		domain.PoolKindBookTitle: 500,
	}}
}

// DaysOverdue is the ceiling of elapsed 24-hour periods past the due date.
// An allocation without a due date, or returned at or before it, is zero
// days overdue. A return one minute late is one day.
func DaysOverdue(a *domain.Allocation, now time.Time) int64 {
	if a.DueAt == nil || !now.After(*a.DueAt) {
		return 0
	}
	elapsed := now.Sub(*a.DueAt)
	days := int64(elapsed / (24 * time.Hour))
	if elapsed%(24*time.Hour) > 0 {
		days++
	}
	return days
}

// Compute returns the penalty owed on the allocation as of now. The result
// is not persisted here; a zero-amount penalty is still produced so an
// on-time return leaves an auditable record.
func (t RateTable) Compute(a *domain.Allocation, now time.Time) domain.Penalty {
	days := DaysOverdue(a, now)
	rate := t.DailyRatePaise[a.PoolKind]
	p := domain.Penalty{
		AllocationID: a.ID,
		AmountPaise:  days * rate,
		ComputedAt:   now,
	}
	if p.AmountPaise > 0 {
		p.Reason = fmt.Sprintf("%d day(s) overdue at %d paise/day", days, rate)
	} else {
		p.Reason = "returned on time"
	}
	return p
}
