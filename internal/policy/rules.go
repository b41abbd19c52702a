package policy

import (
	"fmt"

	"campusledger/internal/domain"
)

// scopeOfPool is the uniqueness key a reservation competes under. Rooms are
// unique per academic year regardless of which room; book titles and exam
// seats are unique per pool identity.
func scopeOfPool(p *domain.Pool) string {
	if p.Kind == domain.PoolKindRoom {
		return fmt.Sprintf("%s/%s", p.Kind, p.AcademicYear)
	}
	return fmt.Sprintf("%s/%d", p.Kind, p.ID)
}

func scopeOfHolding(h domain.Holding) string {
	if h.Kind == domain.PoolKindRoom {
		return fmt.Sprintf("%s/%s", h.Kind, h.AcademicYear)
	}
	return fmt.Sprintf("%s/%d", h.Kind, h.PoolID)
}

// UniquenessRule rejects a reservation when the owner already holds an
// active allocation in the same uniqueness scope.
type UniquenessRule struct{}

func (UniquenessRule) Check(req Request) error {
	want := scopeOfPool(req.Pool)
	for _, h := range req.Existing {
		if scopeOfHolding(h) == want {
			return domain.NewPolicyError(domain.PolicyReasonDuplicateActive,
				fmt.Sprintf("owner %d already holds allocation %d in scope %s", req.OwnerID, h.AllocationID, want))
		}
	}
	return nil
}

// WindowRule rejects a reservation outside the pool's registration window.
// Pools without window bounds are always open.
type WindowRule struct{}

func (WindowRule) Check(req Request) error {
	p := req.Pool
	if p.WindowOpensAt != nil && req.Now.Before(*p.WindowOpensAt) {
		return domain.NewPolicyError(domain.PolicyReasonWindowClosed,
			fmt.Sprintf("registration opens at %s", p.WindowOpensAt.Format("2006-01-02 15:04")))
	}
	if p.WindowClosesAt != nil && req.Now.After(*p.WindowClosesAt) {
		return domain.NewPolicyError(domain.PolicyReasonWindowClosed,
			fmt.Sprintf("registration closed at %s", p.WindowClosesAt.Format("2006-01-02 15:04")))
	}
	return nil
}

// QuotaRule caps the owner's concurrent active holdings of the kind.
type QuotaRule struct {
	Max int32
}

func (r QuotaRule) Check(req Request) error {
	if int32(len(req.Existing)) >= r.Max {
		return domain.NewPolicyError(domain.PolicyReasonQuotaExceeded,
			fmt.Sprintf("owner %d holds %d of %d allowed %s allocations", req.OwnerID, len(req.Existing), r.Max, req.Pool.Kind))
	}
	return nil
}
