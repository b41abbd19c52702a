package repository

import (
	"context"
	"database/sql"
	"time"

	"campusledger/internal/domain"
)

// Querier is satisfied by both *sql.DB and *sql.Tx so the same repository
// code serves plain reads and transaction-scoped mutations.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type PoolRepository interface {
	Create(ctx context.Context, pool *domain.Pool) error
	GetByID(ctx context.Context, id int64) (*domain.Pool, error)
	// GetForUpdate takes the row lock that serializes all capacity checks
	// against the pool. Only meaningful inside a transaction.
	GetForUpdate(ctx context.Context, id int64) (*domain.Pool, error)
	SetReservedCount(ctx context.Context, id int64, count int32) error
	Archive(ctx context.Context, id int64) error
	ListByKind(ctx context.Context, kind domain.PoolKind, page, pageSize int32) ([]domain.Pool, int32, error)
}

type AllocationRepository interface {
	Create(ctx context.Context, a *domain.Allocation) error
	GetByID(ctx context.Context, id int64) (*domain.Allocation, error)
	GetForUpdate(ctx context.Context, id int64) (*domain.Allocation, error)
	Update(ctx context.Context, a *domain.Allocation) error
	// ListActiveHoldings loads the owner's ACTIVE allocations of a kind
	// joined with the pool fields the policy engine scopes on.
	ListActiveHoldings(ctx context.Context, ownerID int64, kind domain.PoolKind) ([]domain.Holding, error)
	ListByOwner(ctx context.Context, ownerID int64, status string, page, pageSize int32) ([]domain.Allocation, int32, error)
	// ListOverdueActive feeds the expiry sweep: ACTIVE allocations whose
	// due date lies before now, oldest first.
	ListOverdueActive(ctx context.Context, now time.Time, limit int32) ([]domain.Allocation, error)
}

type BillingRepository interface {
	Create(ctx context.Context, rec *domain.BillingRecord) error
	GetByID(ctx context.Context, id int64) (*domain.BillingRecord, error)
	GetForUpdate(ctx context.Context, id int64) (*domain.BillingRecord, error)
	GetByScheduleRef(ctx context.Context, ownerID int64, scheduleRef string) (*domain.BillingRecord, error)
	UpdateAmounts(ctx context.Context, rec *domain.BillingRecord) error
	ListByOwner(ctx context.Context, ownerID int64, page, pageSize int32) ([]domain.BillingRecord, int32, error)
}

type PaymentEventRepository interface {
	// Append inserts one payment or adjustment event. A reused external
	// transaction id surfaces as domain.ErrDuplicatePayment.
	Append(ctx context.Context, ev *domain.PaymentEvent) error
	SumCompleted(ctx context.Context, billingRecordID int64) (int64, error)
	ListByRecord(ctx context.Context, billingRecordID int64) ([]domain.PaymentEvent, error)
}

type PenaltyRepository interface {
	Create(ctx context.Context, p *domain.Penalty) error
	ListByAllocation(ctx context.Context, allocationID int64) ([]domain.Penalty, error)
	// ListUnbilled returns positive, unwaived penalties that have no
	// billing record yet (matched on the penalty schedule reference).
	ListUnbilled(ctx context.Context, limit int32) ([]domain.Penalty, error)
	SetWaived(ctx context.Context, id int64, waived bool) error
}

type EventRepository interface {
	Append(ctx context.Context, e *domain.Event) error
	ListUndelivered(ctx context.Context, limit int32) ([]domain.Event, error)
	MarkDelivered(ctx context.Context, ids []string, at time.Time) error
}

// Repositories bundles every repository bound to one Querier. The db-bound
// bundle serves reads; WithinTx hands callers a tx-bound bundle.
type Repositories struct {
	Pools       PoolRepository
	Allocations AllocationRepository
	Billing     BillingRepository
	Payments    PaymentEventRepository
	Penalties   PenaltyRepository
	Events      EventRepository
}

// TxRunner executes fn inside one atomic transaction. An error from fn
// rolls everything back; low-level serialization failures are mapped onto
// domain.ErrConflict for the caller's bounded retry.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(r Repositories) error) error
}
