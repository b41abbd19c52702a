package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"campusledger/internal/domain"
	"campusledger/internal/logger"
	"campusledger/internal/repository"
)

// Store bundles the db-bound repositories and runs transactions. All
// mutual exclusion in the system is delegated to this layer: the service
// code above it never holds in-process locks.
type Store struct {
	db *sql.DB
	repository.PoolRepository
	repository.AllocationRepository
	repository.BillingRepository
	repository.PaymentEventRepository
	repository.PenaltyRepository
	repository.EventRepository
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:                     db,
		PoolRepository:         NewPoolRepository(db),
		AllocationRepository:   NewAllocationRepository(db),
		BillingRepository:      NewBillingRepository(db),
		PaymentEventRepository: NewPaymentEventRepository(db),
		PenaltyRepository:      NewPenaltyRepository(db),
		EventRepository:        NewEventRepository(db),
	}
}

// Repositories returns the db-bound bundle for non-transactional reads.
func (s *Store) Repositories() repository.Repositories {
	return bind(s.db)
}

func bind(q repository.Querier) repository.Repositories {
	return repository.Repositories{
		Pools:       NewPoolRepository(q),
		Allocations: NewAllocationRepository(q),
		Billing:     NewBillingRepository(q),
		Payments:    NewPaymentEventRepository(q),
		Penalties:   NewPenaltyRepository(q),
		Events:      NewEventRepository(q),
	}
}

// WithinTx runs fn against tx-bound repositories under read-committed
// isolation; row locks taken via GetForUpdate provide the serialization the
// capacity invariant needs. A failed fn leaves no partial writes visible.
func (s *Store) WithinTx(ctx context.Context, fn func(r repository.Repositories) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return mapError(fmt.Errorf("begin tx: %w", err))
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			logger.Error("tx rollback failed", "error", err)
		}
	}()

	if err := fn(bind(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapError(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// mapError folds driver-level failures into the domain taxonomy. Missing
// rows become ErrNotFound; serialization failures, deadlocks and lock
// timeouts become the retryable ErrConflict. Unique violations are handled
// at call sites because their meaning depends on the constraint.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01", "55P03": // serialization / deadlock / lock_not_available
			return fmt.Errorf("%w: %v", domain.ErrConflict, err)
		}
	}
	return err
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return constraint == "" || pqErr.Constraint == constraint
	}
	return false
}
