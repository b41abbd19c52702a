package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"campusledger/internal/domain"
	"campusledger/internal/fine"
	"campusledger/internal/logger"
	"campusledger/internal/metrics"
	"campusledger/internal/policy"
	"campusledger/internal/repository"
)

const expiryBatchSize = 500

type PoolManagerConfig struct {
	// MaxAttempts bounds the automatic retry on ErrConflict. The default
	// of 3 matches a handful of jittered attempts before the caller is
	// asked to back off.
	MaxAttempts int
	RetryBase   time.Duration
	// BillFines turns computed penalties into billing obligations inside
	// the release transaction.
	BillFines bool
}

func (c *PoolManagerConfig) defaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 50 * time.Millisecond
	}
}

type poolService struct {
	store  repository.TxRunner
	repos  repository.Repositories // db-bound, for plain reads
	policy policy.Config
	rates  fine.RateTable
	cfg    PoolManagerConfig
	now    func() time.Time
}

func NewPoolService(store repository.TxRunner, repos repository.Repositories, pol policy.Config, rates fine.RateTable, cfg PoolManagerConfig) PoolService {
	cfg.defaults()
	return &poolService{
		store:  store,
		repos:  repos,
		policy: pol,
		rates:  rates,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *poolService) CreatePool(ctx context.Context, pool *domain.Pool) error {
	if pool.TotalCapacity < 0 {
		return errors.New("total capacity must be non-negative")
	}
	pool.ReservedCount = 0
	return s.repos.Pools.Create(ctx, pool)
}

func (s *poolService) GetPool(ctx context.Context, id int64) (*domain.Pool, error) {
	return s.repos.Pools.GetByID(ctx, id)
}

func (s *poolService) ArchivePool(ctx context.Context, id int64) error {
	return s.repos.Pools.Archive(ctx, id)
}

func (s *poolService) ListPools(ctx context.Context, kind domain.PoolKind, page, pageSize int32) ([]domain.Pool, int32, error) {
	return s.repos.Pools.ListByKind(ctx, kind, page, pageSize)
}

// Reserve grants one unit of the pool to the owner. The capacity check, the
// policy decision and the counter increment all happen under the pool's row
// lock in one transaction, closing the check-then-act race the scattered
// handlers this replaces were vulnerable to.
func (s *poolService) Reserve(ctx context.Context, poolID, ownerID int64, opts ReserveOptions) (*domain.Allocation, error) {
	var alloc *domain.Allocation
	kindLabel := "unknown"

	err := s.withRetry(ctx, "reserve", func() error {
		alloc = nil
		return s.store.WithinTx(ctx, func(r repository.Repositories) error {
			pool, err := r.Pools.GetForUpdate(ctx, poolID)
			if err != nil {
				return err
			}
			kindLabel = string(pool.Kind)
			if pool.Archived {
				return domain.ErrNotFound
			}
			if pool.Available() <= 0 {
				return domain.ErrExhausted
			}

			now := s.now()
			holdings, err := r.Allocations.ListActiveHoldings(ctx, ownerID, pool.Kind)
			if err != nil {
				return err
			}
			if err := s.policy.RulesFor(pool.Kind).Check(policy.Request{
				Pool:     pool,
				OwnerID:  ownerID,
				Now:      now,
				Existing: holdings,
			}); err != nil {
				return err
			}

			a := &domain.Allocation{
				PoolID:    pool.ID,
				PoolKind:  pool.Kind,
				OwnerID:   ownerID,
				Status:    domain.AllocationStatusActive,
				GrantedAt: now,
				DueAt:     s.dueDate(pool, now, opts),
			}
			if err := r.Allocations.Create(ctx, a); err != nil {
				return err
			}
			if err := r.Pools.SetReservedCount(ctx, pool.ID, pool.ReservedCount+1); err != nil {
				return err
			}
			if err := r.Events.Append(ctx, domain.NewEvent(domain.EventAllocationReserved, ownerID, a)); err != nil {
				return err
			}
			alloc = a
			return nil
		})
	})

	metrics.ReservationsTotal.WithLabelValues(kindLabel, outcomeLabel(err)).Inc()
	return alloc, err
}

// dueDate resolves the allocation's due date: an explicit override wins,
// otherwise the kind's loan period applies, otherwise the pool's window
// close (hostel year end, exam date) if one exists. The window-close
// fallback is what lets the expiry sweep end room and exam allocations.
func (s *poolService) dueDate(pool *domain.Pool, now time.Time, opts ReserveOptions) *time.Time {
	if opts.DueAt != nil {
		return opts.DueAt
	}
	if days := s.policy.ForKind(pool.Kind).LoanPeriodDays; days > 0 {
		due := now.AddDate(0, 0, int(days))
		return &due
	}
	if pool.WindowClosesAt != nil {
		due := *pool.WindowClosesAt
		return &due
	}
	return nil
}

// Release returns an allocation and frees its pool unit. Releasing an
// already-terminal allocation is a no-op reported as ErrAlreadyReleased;
// the counter is decremented exactly once no matter how often the caller
// retries.
func (s *poolService) Release(ctx context.Context, allocationID int64) (*domain.Allocation, *domain.Penalty, error) {
	var (
		alloc   *domain.Allocation
		penalty *domain.Penalty
	)

	err := s.withRetry(ctx, "release", func() error {
		alloc, penalty = nil, nil
		return s.store.WithinTx(ctx, func(r repository.Repositories) error {
			a, err := r.Allocations.GetForUpdate(ctx, allocationID)
			if err != nil {
				return err
			}
			if a.Terminal() {
				alloc = a
				return domain.ErrAlreadyReleased
			}

			pool, err := r.Pools.GetForUpdate(ctx, a.PoolID)
			if err != nil {
				return err
			}

			now := s.now()
			a.Status = domain.AllocationStatusReturned
			a.ReturnedAt = &now
			if err := r.Allocations.Update(ctx, a); err != nil {
				return err
			}

			newCount := pool.ReservedCount - 1
			if newCount < 0 {
				// The counter can only go negative if something wrote
				// without the row lock; repair and flag it.
				logger.Warn("pool reserved_count underflow", "pool_id", pool.ID)
				newCount = 0
			}
			if err := r.Pools.SetReservedCount(ctx, pool.ID, newCount); err != nil {
				return err
			}

			if a.DueAt != nil {
				p := s.rates.Compute(a, now)
				if err := r.Penalties.Create(ctx, &p); err != nil {
					return err
				}
				if err := r.Events.Append(ctx, domain.NewEvent(domain.EventPenaltyAssessed, a.OwnerID, p)); err != nil {
					return err
				}
				if s.cfg.BillFines && p.AmountPaise > 0 {
					ref := fmt.Sprintf("penalty:%d", p.ID)
					if _, err := assess(ctx, r, a.OwnerID, ref, p.AmountPaise, nil); err != nil {
						return err
					}
				}
				penalty = &p
			}

			if err := r.Events.Append(ctx, domain.NewEvent(domain.EventAllocationReleased, a.OwnerID, a)); err != nil {
				return err
			}
			alloc = a
			return nil
		})
	})
	return alloc, penalty, err
}

// Cancel is the administrative override: the allocation ends in CANCELLED,
// the unit is freed and no fine is computed or billed. Cancelling a
// terminal allocation short-circuits the same way Release does.
func (s *poolService) Cancel(ctx context.Context, allocationID int64) (*domain.Allocation, error) {
	var alloc *domain.Allocation

	err := s.withRetry(ctx, "cancel", func() error {
		alloc = nil
		return s.store.WithinTx(ctx, func(r repository.Repositories) error {
			a, err := r.Allocations.GetForUpdate(ctx, allocationID)
			if err != nil {
				return err
			}
			if a.Terminal() {
				alloc = a
				return domain.ErrAlreadyReleased
			}

			pool, err := r.Pools.GetForUpdate(ctx, a.PoolID)
			if err != nil {
				return err
			}

			now := s.now()
			a.Status = domain.AllocationStatusCancelled
			a.ReturnedAt = &now
			if err := r.Allocations.Update(ctx, a); err != nil {
				return err
			}

			newCount := pool.ReservedCount - 1
			if newCount < 0 {
				newCount = 0
			}
			if err := r.Pools.SetReservedCount(ctx, pool.ID, newCount); err != nil {
				return err
			}
			if err := r.Events.Append(ctx, domain.NewEvent(domain.EventAllocationCancelled, a.OwnerID, a)); err != nil {
				return err
			}
			alloc = a
			return nil
		})
	})
	return alloc, err
}

// Renew extends an active allocation's due date. A zero extension uses the
// kind's configured renewal period.
func (s *poolService) Renew(ctx context.Context, allocationID int64, extension time.Duration) (*domain.Allocation, error) {
	var alloc *domain.Allocation

	err := s.withRetry(ctx, "renew", func() error {
		alloc = nil
		return s.store.WithinTx(ctx, func(r repository.Repositories) error {
			a, err := r.Allocations.GetForUpdate(ctx, allocationID)
			if err != nil {
				return err
			}
			if a.Terminal() {
				return domain.ErrAlreadyReleased
			}

			kc := s.policy.ForKind(a.PoolKind)
			if a.RenewalCount >= kc.MaxRenewals {
				return fmt.Errorf("%w: %d renewal(s) used", domain.ErrRenewalLimitExceeded, a.RenewalCount)
			}

			ext := extension
			if ext <= 0 {
				ext = time.Duration(kc.RenewalExtensionDays) * 24 * time.Hour
			}
			base := s.now()
			if a.DueAt != nil && a.DueAt.After(base) {
				base = *a.DueAt
			}
			due := base.Add(ext)
			a.DueAt = &due
			a.RenewalCount++
			if err := r.Allocations.Update(ctx, a); err != nil {
				return err
			}
			if err := r.Events.Append(ctx, domain.NewEvent(domain.EventAllocationRenewed, a.OwnerID, a)); err != nil {
				return err
			}
			alloc = a
			return nil
		})
	})
	return alloc, err
}

// PreviewFine answers "what would my fine be today" without touching state.
func (s *poolService) PreviewFine(ctx context.Context, allocationID int64, now time.Time) (*domain.Penalty, error) {
	a, err := s.repos.Allocations.GetByID(ctx, allocationID)
	if err != nil {
		return nil, err
	}
	if now.IsZero() {
		now = s.now()
	}
	p := s.rates.Compute(a, now)
	return &p, nil
}

// ExpireOverdue transitions stale ACTIVE allocations to EXPIRED. Each
// allocation gets its own transaction so one contended row cannot stall
// the whole sweep.
func (s *poolService) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	if now.IsZero() {
		now = s.now()
	}
	stale, err := s.repos.Allocations.ListOverdueActive(ctx, now, expiryBatchSize)
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range stale {
		id := stale[i].ID
		err := s.store.WithinTx(ctx, func(r repository.Repositories) error {
			a, err := r.Allocations.GetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if !a.Overdue(now) {
				return nil // raced with a release or renewal; nothing to do
			}
			pool, err := r.Pools.GetForUpdate(ctx, a.PoolID)
			if err != nil {
				return err
			}

			a.Status = domain.AllocationStatusExpired
			if err := r.Allocations.Update(ctx, a); err != nil {
				return err
			}
			newCount := pool.ReservedCount - 1
			if newCount < 0 {
				newCount = 0
			}
			if err := r.Pools.SetReservedCount(ctx, pool.ID, newCount); err != nil {
				return err
			}

			p := s.rates.Compute(a, now)
			if err := r.Penalties.Create(ctx, &p); err != nil {
				return err
			}
			if s.cfg.BillFines && p.AmountPaise > 0 {
				ref := fmt.Sprintf("penalty:%d", p.ID)
				if _, err := assess(ctx, r, a.OwnerID, ref, p.AmountPaise, nil); err != nil {
					return err
				}
			}
			return r.Events.Append(ctx, domain.NewEvent(domain.EventAllocationExpired, a.OwnerID, a))
		})
		if err != nil {
			logger.Error("expiry sweep: allocation failed", "allocation_id", id, "error", err)
			continue
		}
		expired++
	}

	if expired > 0 {
		metrics.ExpiredAllocationsTotal.Add(float64(expired))
	}
	return expired, nil
}

func (s *poolService) GetAllocation(ctx context.Context, id int64) (*domain.Allocation, error) {
	return s.repos.Allocations.GetByID(ctx, id)
}

func (s *poolService) ListAllocations(ctx context.Context, ownerID int64, status string, page, pageSize int32) ([]domain.Allocation, int32, error) {
	return s.repos.Allocations.ListByOwner(ctx, ownerID, status, page, pageSize)
}

// withRetry re-runs fn on ErrConflict with jittered backoff, up to the
// configured attempt limit. Every other error surfaces immediately.
func (s *poolService) withRetry(ctx context.Context, operation string, fn func() error) error {
	timer := time.Now()
	defer func() {
		metrics.TxDuration.WithLabelValues(operation).Observe(time.Since(timer).Seconds())
	}()

	var err error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, domain.ErrConflict) {
			return err
		}
		if attempt == s.cfg.MaxAttempts {
			break
		}
		metrics.ConflictRetriesTotal.Inc()
		backoff := time.Duration(attempt)*s.cfg.RetryBase + time.Duration(rand.Int63n(int64(s.cfg.RetryBase)))
		logger.Debug("retrying after conflict", "operation", operation, "attempt", attempt, "backoff", backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrExhausted):
		return "exhausted"
	case errors.Is(err, domain.ErrPolicyViolation):
		return "policy_violation"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
