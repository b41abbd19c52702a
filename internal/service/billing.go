package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"campusledger/internal/domain"
	"campusledger/internal/metrics"
	"campusledger/internal/repository"
)

type BillingConfig struct {
	// OverpaymentTolerancePaise is the slack allowed above the obligation
	// before a payment is flagged for the refund workflow. Covers gateway
	// rounding, not real overpayment.
	OverpaymentTolerancePaise int64
}

type billingService struct {
	store repository.TxRunner
	repos repository.Repositories
	cfg   BillingConfig
	now   func() time.Time
}

func NewBillingService(store repository.TxRunner, repos repository.Repositories, cfg BillingConfig) BillingService {
	return &billingService{
		store: store,
		repos: repos,
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// assess is the transactional core of Assess, shared with the pool manager
// so fines can become obligations inside a release transaction. Idempotent
// per (owner, scheduleRef): a repeated assessment finds the existing record
// and returns it unchanged. Losing a concurrent race instead surfaces
// ErrDuplicateAssessment, because the failed insert has aborted the
// transaction and no re-read can happen inside it.
func assess(ctx context.Context, r repository.Repositories, ownerID int64, scheduleRef string, obligationPaise int64, dueAt *time.Time) (*domain.BillingRecord, error) {
	existing, err := r.Billing.GetByScheduleRef(ctx, ownerID, scheduleRef)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	rec := &domain.BillingRecord{
		OwnerID:         ownerID,
		ScheduleRef:     scheduleRef,
		ObligationPaise: obligationPaise,
		DueAt:           dueAt,
	}
	if err := r.Billing.Create(ctx, rec); err != nil {
		return nil, err
	}
	if err := r.Events.Append(ctx, domain.NewEvent(domain.EventObligationAssessed, ownerID, rec)); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *billingService) Assess(ctx context.Context, ownerID int64, scheduleRef string, obligationPaise int64, dueAt *time.Time) (*domain.BillingRecord, error) {
	if scheduleRef == "" {
		return nil, errors.New("empty schedule reference")
	}
	if obligationPaise < 0 {
		return nil, errors.New("obligation must be non-negative")
	}

	var rec *domain.BillingRecord
	err := s.store.WithinTx(ctx, func(r repository.Repositories) error {
		var err error
		rec, err = assess(ctx, r, ownerID, scheduleRef, obligationPaise, dueAt)
		return err
	})
	if errors.Is(err, domain.ErrDuplicateAssessment) {
		// Lost the assess race. The winner's record is the answer, read on
		// a fresh connection now that the transaction is gone.
		return s.repos.Billing.GetByScheduleRef(ctx, ownerID, scheduleRef)
	}
	return rec, err
}

// ApplyPayment appends one payment event and recomputes the record's paid
// amount, all under the record's row lock. The external transaction id
// guarantees exactly-once application: a replayed callback hits the unique
// index and returns ErrDuplicatePayment with nothing changed. A confirmed
// payment that overshoots the obligation is still committed (confirmed
// money is never dropped) and flagged with ErrOverpayment for the refund
// workflow.
func (s *billingService) ApplyPayment(ctx context.Context, recordID int64, amountPaise int64, externalTxnID string, method domain.PaymentMethod) (*domain.BillingRecord, error) {
	if amountPaise <= 0 {
		return nil, errors.New("payment amount must be positive")
	}
	if externalTxnID == "" {
		return nil, errors.New("missing external transaction id")
	}

	var (
		rec      *domain.BillingRecord
		overpaid bool
	)
	err := s.store.WithinTx(ctx, func(r repository.Repositories) error {
		rec, overpaid = nil, false

		locked, err := r.Billing.GetForUpdate(ctx, recordID)
		if err != nil {
			return err
		}

		ev := &domain.PaymentEvent{
			BillingRecordID: locked.ID,
			AmountPaise:     amountPaise,
			Method:          method,
			ExternalTxnID:   externalTxnID,
			Outcome:         domain.PaymentOutcomeCompleted,
			OccurredAt:      s.now(),
		}
		if err := r.Payments.Append(ctx, ev); err != nil {
			return err
		}

		paid, err := r.Payments.SumCompleted(ctx, locked.ID)
		if err != nil {
			return err
		}
		locked.PaidPaise = paid
		if err := r.Billing.UpdateAmounts(ctx, locked); err != nil {
			return err
		}

		limit := locked.ObligationPaise - locked.DiscountPaise - locked.ScholarshipPaise + s.cfg.OverpaymentTolerancePaise
		overpaid = paid > limit

		if err := r.Events.Append(ctx, domain.NewEvent(domain.EventPaymentApplied, locked.OwnerID, ev)); err != nil {
			return err
		}
		rec = locked
		return nil
	})

	switch {
	case err == nil && overpaid:
		metrics.PaymentsAppliedTotal.WithLabelValues("overpayment").Inc()
		return rec, fmt.Errorf("%w: paid %d exceeds obligation %d", domain.ErrOverpayment, rec.PaidPaise, rec.ObligationPaise)
	case err == nil:
		metrics.PaymentsAppliedTotal.WithLabelValues("applied").Inc()
		return rec, nil
	case errors.Is(err, domain.ErrDuplicatePayment):
		metrics.PaymentsAppliedTotal.WithLabelValues("duplicate").Inc()
		// Replayed callback: hand back the current state so the caller's
		// retry gets the same answer the original attempt did.
		if cur, getErr := s.repos.Billing.GetByID(ctx, recordID); getErr == nil {
			return cur, err
		}
		return nil, err
	default:
		metrics.PaymentsAppliedTotal.WithLabelValues("error").Inc()
		return nil, err
	}
}

func (s *billingService) ApplyDiscount(ctx context.Context, recordID int64, amountPaise int64, adjustmentRef string) (*domain.BillingRecord, error) {
	return s.applyAdjustment(ctx, recordID, amountPaise, adjustmentRef, domain.PaymentMethodDiscount)
}

func (s *billingService) ApplyScholarship(ctx context.Context, recordID int64, amountPaise int64, adjustmentRef string) (*domain.BillingRecord, error) {
	return s.applyAdjustment(ctx, recordID, amountPaise, adjustmentRef, domain.PaymentMethodScholarship)
}

// applyAdjustment credits the discount or scholarship column and appends
// the matching audit event. Adjustments carry their own idempotency
// reference so a replayed admin action cannot double-credit either.
func (s *billingService) applyAdjustment(ctx context.Context, recordID int64, amountPaise int64, adjustmentRef string, method domain.PaymentMethod) (*domain.BillingRecord, error) {
	if amountPaise <= 0 {
		return nil, errors.New("adjustment amount must be positive")
	}
	if adjustmentRef == "" {
		return nil, errors.New("missing adjustment reference")
	}

	eventType := domain.EventDiscountApplied
	if method == domain.PaymentMethodScholarship {
		eventType = domain.EventScholarshipApplied
	}

	var rec *domain.BillingRecord
	err := s.store.WithinTx(ctx, func(r repository.Repositories) error {
		rec = nil

		locked, err := r.Billing.GetForUpdate(ctx, recordID)
		if err != nil {
			return err
		}

		ev := &domain.PaymentEvent{
			BillingRecordID: locked.ID,
			AmountPaise:     amountPaise,
			Method:          method,
			ExternalTxnID:   adjustmentRef,
			Outcome:         domain.PaymentOutcomeCompleted,
			OccurredAt:      s.now(),
		}
		if err := r.Payments.Append(ctx, ev); err != nil {
			return err
		}

		if method == domain.PaymentMethodScholarship {
			locked.ScholarshipPaise += amountPaise
		} else {
			locked.DiscountPaise += amountPaise
		}
		if err := r.Billing.UpdateAmounts(ctx, locked); err != nil {
			return err
		}
		if err := r.Events.Append(ctx, domain.NewEvent(eventType, locked.OwnerID, ev)); err != nil {
			return err
		}
		rec = locked
		return nil
	})
	if errors.Is(err, domain.ErrDuplicatePayment) {
		if cur, getErr := s.repos.Billing.GetByID(ctx, recordID); getErr == nil {
			return cur, err
		}
	}
	return rec, err
}

func (s *billingService) GetRecord(ctx context.Context, id int64) (*domain.BillingRecord, error) {
	return s.repos.Billing.GetByID(ctx, id)
}

func (s *billingService) ListRecords(ctx context.Context, ownerID int64, page, pageSize int32) ([]domain.BillingRecord, int32, error) {
	return s.repos.Billing.ListByOwner(ctx, ownerID, page, pageSize)
}

func (s *billingService) ListPayments(ctx context.Context, recordID int64) ([]domain.PaymentEvent, error) {
	return s.repos.Payments.ListByRecord(ctx, recordID)
}
