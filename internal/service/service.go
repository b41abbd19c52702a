package service

import (
	"context"
	"time"

	"campusledger/internal/domain"
)

// ReserveOptions carries the optional knobs on a reservation. A nil DueAt
// falls back to the kind's configured loan period (or no due date at all).
type ReserveOptions struct {
	DueAt *time.Time
}

type PoolService interface {
	CreatePool(ctx context.Context, pool *domain.Pool) error
	GetPool(ctx context.Context, id int64) (*domain.Pool, error)
	ArchivePool(ctx context.Context, id int64) error
	ListPools(ctx context.Context, kind domain.PoolKind, page, pageSize int32) ([]domain.Pool, int32, error)

	Reserve(ctx context.Context, poolID, ownerID int64, opts ReserveOptions) (*domain.Allocation, error)
	Release(ctx context.Context, allocationID int64) (*domain.Allocation, *domain.Penalty, error)
	// Cancel is the administrative override: the allocation ends in
	// CANCELLED and its unit is freed, with no fine computed.
	Cancel(ctx context.Context, allocationID int64) (*domain.Allocation, error)
	Renew(ctx context.Context, allocationID int64, extension time.Duration) (*domain.Allocation, error)
	PreviewFine(ctx context.Context, allocationID int64, now time.Time) (*domain.Penalty, error)
	// ExpireOverdue is the reconciliation sweep: every ACTIVE allocation
	// past its due date becomes EXPIRED, its pool unit is freed and its
	// penalty is recorded. Returns the number expired.
	ExpireOverdue(ctx context.Context, now time.Time) (int, error)

	GetAllocation(ctx context.Context, id int64) (*domain.Allocation, error)
	ListAllocations(ctx context.Context, ownerID int64, status string, page, pageSize int32) ([]domain.Allocation, int32, error)
}

type BillingService interface {
	// Assess creates a PENDING obligation; idempotent per
	// (ownerID, scheduleRef): re-assessing returns the existing record
	// unchanged.
	Assess(ctx context.Context, ownerID int64, scheduleRef string, obligationPaise int64, dueAt *time.Time) (*domain.BillingRecord, error)
	ApplyPayment(ctx context.Context, recordID int64, amountPaise int64, externalTxnID string, method domain.PaymentMethod) (*domain.BillingRecord, error)
	ApplyDiscount(ctx context.Context, recordID int64, amountPaise int64, adjustmentRef string) (*domain.BillingRecord, error)
	ApplyScholarship(ctx context.Context, recordID int64, amountPaise int64, adjustmentRef string) (*domain.BillingRecord, error)

	GetRecord(ctx context.Context, id int64) (*domain.BillingRecord, error)
	ListRecords(ctx context.Context, ownerID int64, page, pageSize int32) ([]domain.BillingRecord, int32, error)
	ListPayments(ctx context.Context, recordID int64) ([]domain.PaymentEvent, error)
}
