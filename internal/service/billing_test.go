package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusledger/internal/domain"
	"campusledger/internal/service"
)

func newBillingService(store *memStore) service.BillingService {
	return service.NewBillingService(store, store.Repositories(), service.BillingConfig{})
}

func TestBillingService_Assess(t *testing.T) {
	ctx := context.Background()

	t.Run("Creates Pending Obligation", func(t *testing.T) {
		store := newMemStore()
		svc := newBillingService(store)

		due := time.Now().UTC().AddDate(0, 1, 0)
		rec, err := svc.Assess(ctx, 42, "sem:2026-ODD:tuition", 10030000, &due)
		require.NoError(t, err)
		assert.Equal(t, int64(10030000), rec.ObligationPaise)
		assert.Equal(t, int64(0), rec.PaidPaise)
		assert.Equal(t, domain.BillingStatusPending, rec.Status())
		assert.Contains(t, store.eventTypes(), domain.EventObligationAssessed)
	})

	t.Run("Idempotent Per Owner And Ref", func(t *testing.T) {
		store := newMemStore()
		svc := newBillingService(store)

		first, err := svc.Assess(ctx, 42, "sem:2026-ODD:tuition", 10030000, nil)
		require.NoError(t, err)
		again, err := svc.Assess(ctx, 42, "sem:2026-ODD:tuition", 99999, nil)
		require.NoError(t, err)
		assert.Equal(t, first.ID, again.ID)
		assert.Equal(t, int64(10030000), again.ObligationPaise, "re-assessment never rewrites the amount")

		_, total, err := svc.ListRecords(ctx, 42, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, int32(1), total)
	})

	t.Run("Same Ref Different Owner", func(t *testing.T) {
		store := newMemStore()
		svc := newBillingService(store)

		a, err := svc.Assess(ctx, 42, "sem:2026-ODD:tuition", 100, nil)
		require.NoError(t, err)
		b, err := svc.Assess(ctx, 43, "sem:2026-ODD:tuition", 100, nil)
		require.NoError(t, err)
		assert.NotEqual(t, a.ID, b.ID)
	})

	t.Run("Rejects Bad Input", func(t *testing.T) {
		svc := newBillingService(newMemStore())
		_, err := svc.Assess(ctx, 42, "", 100, nil)
		assert.Error(t, err)
		_, err = svc.Assess(ctx, 42, "sem:2026-ODD:tuition", -1, nil)
		assert.Error(t, err)
	})

	// A concurrent Assess can commit between this transaction's read and
	// its insert. The insert then aborts the transaction, so the winner's
	// record has to come from a fresh read, not a same-transaction retry.
	t.Run("Lost Race Returns Winner", func(t *testing.T) {
		mem := newMemStore()
		winnerID := mem.seedBilling(domain.BillingRecord{OwnerID: 42, ScheduleRef: "sem:2026-ODD:tuition", ObligationPaise: 10030000})
		svc := service.NewBillingService(racingStore{mem}, mem.Repositories(), service.BillingConfig{})

		rec, err := svc.Assess(ctx, 42, "sem:2026-ODD:tuition", 10030000, nil)
		require.NoError(t, err)
		assert.Equal(t, winnerID, rec.ID)
		assert.Equal(t, int64(10030000), rec.ObligationPaise)
	})
}

func TestBillingService_ApplyPayment(t *testing.T) {
	ctx := context.Background()

	t.Run("Pending To Partial To Paid", func(t *testing.T) {
		store := newMemStore()
		svc := newBillingService(store)

		rec, err := svc.Assess(ctx, 42, "sem:2026-ODD:tuition", 10030000, nil)
		require.NoError(t, err)
		assert.Equal(t, domain.BillingStatusPending, rec.Status())

		rec, err = svc.ApplyPayment(ctx, rec.ID, 5000000, "upi-txn-001", domain.PaymentMethodUPI)
		require.NoError(t, err)
		assert.Equal(t, int64(5000000), rec.PaidPaise)
		assert.Equal(t, domain.BillingStatusPartial, rec.Status())
		assert.Equal(t, int64(5030000), rec.OutstandingPaise())

		rec, err = svc.ApplyPayment(ctx, rec.ID, 5030000, "upi-txn-002", domain.PaymentMethodUPI)
		require.NoError(t, err)
		assert.Equal(t, int64(10030000), rec.PaidPaise)
		assert.Equal(t, domain.BillingStatusPaid, rec.Status())
		assert.Equal(t, int64(0), rec.OutstandingPaise())

		events, err := svc.ListPayments(ctx, rec.ID)
		require.NoError(t, err)
		assert.Len(t, events, 2)
	})

	t.Run("Duplicate External Txn", func(t *testing.T) {
		store := newMemStore()
		svc := newBillingService(store)

		rec, err := svc.Assess(ctx, 42, "sem:2026-ODD:tuition", 10000, nil)
		require.NoError(t, err)

		_, err = svc.ApplyPayment(ctx, rec.ID, 4000, "gw-cb-777", domain.PaymentMethodCard)
		require.NoError(t, err)

		replayed, err := svc.ApplyPayment(ctx, rec.ID, 4000, "gw-cb-777", domain.PaymentMethodCard)
		assert.ErrorIs(t, err, domain.ErrDuplicatePayment)
		require.NotNil(t, replayed)
		assert.Equal(t, int64(4000), replayed.PaidPaise, "the replay credits nothing")

		events, err := svc.ListPayments(ctx, rec.ID)
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})

	t.Run("Overpayment Is Committed And Flagged", func(t *testing.T) {
		store := newMemStore()
		svc := newBillingService(store)

		rec, err := svc.Assess(ctx, 42, "sem:2026-ODD:tuition", 10000, nil)
		require.NoError(t, err)

		paid, err := svc.ApplyPayment(ctx, rec.ID, 12000, "gw-cb-900", domain.PaymentMethodBankTransfer)
		assert.ErrorIs(t, err, domain.ErrOverpayment)
		require.NotNil(t, paid)
		assert.Equal(t, int64(12000), paid.PaidPaise, "confirmed money is never dropped")
		assert.Equal(t, domain.BillingStatusPaid, paid.Status())

		events, err := svc.ListPayments(ctx, rec.ID)
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})

	t.Run("Tolerance Absorbs Gateway Rounding", func(t *testing.T) {
		store := newMemStore()
		svc := service.NewBillingService(store, store.Repositories(), service.BillingConfig{OverpaymentTolerancePaise: 100})

		rec, err := svc.Assess(ctx, 42, "sem:2026-ODD:tuition", 10000, nil)
		require.NoError(t, err)

		_, err = svc.ApplyPayment(ctx, rec.ID, 10050, "gw-cb-901", domain.PaymentMethodUPI)
		assert.NoError(t, err)
	})

	t.Run("Rejects Bad Input", func(t *testing.T) {
		store := newMemStore()
		svc := newBillingService(store)
		rec, err := svc.Assess(ctx, 42, "sem:2026-ODD:tuition", 10000, nil)
		require.NoError(t, err)

		_, err = svc.ApplyPayment(ctx, rec.ID, 0, "gw-cb-1", domain.PaymentMethodCash)
		assert.Error(t, err)
		_, err = svc.ApplyPayment(ctx, rec.ID, 100, "", domain.PaymentMethodCash)
		assert.Error(t, err)
		_, err = svc.ApplyPayment(ctx, 9999, 100, "gw-cb-2", domain.PaymentMethodCash)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestBillingService_Adjustments(t *testing.T) {
	ctx := context.Background()

	t.Run("Discount Counts Toward Coverage", func(t *testing.T) {
		store := newMemStore()
		svc := newBillingService(store)

		rec, err := svc.Assess(ctx, 42, "sem:2026-ODD:tuition", 10000, nil)
		require.NoError(t, err)

		rec, err = svc.ApplyDiscount(ctx, rec.ID, 2000, "waiver-2026-042")
		require.NoError(t, err)
		assert.Equal(t, int64(2000), rec.DiscountPaise)
		assert.Equal(t, int64(0), rec.PaidPaise, "adjustments never masquerade as payments")
		assert.Equal(t, domain.BillingStatusPartial, rec.Status())

		rec, err = svc.ApplyPayment(ctx, rec.ID, 8000, "gw-cb-100", domain.PaymentMethodUPI)
		require.NoError(t, err)
		assert.Equal(t, domain.BillingStatusPaid, rec.Status())
	})

	t.Run("Scholarship", func(t *testing.T) {
		store := newMemStore()
		svc := newBillingService(store)

		rec, err := svc.Assess(ctx, 42, "sem:2026-ODD:hostel", 50000, nil)
		require.NoError(t, err)

		rec, err = svc.ApplyScholarship(ctx, rec.ID, 50000, "merit-2026-042")
		require.NoError(t, err)
		assert.Equal(t, int64(50000), rec.ScholarshipPaise)
		assert.Equal(t, domain.BillingStatusPaid, rec.Status())
		assert.Contains(t, store.eventTypes(), domain.EventScholarshipApplied)
	})

	t.Run("Replayed Adjustment Ref", func(t *testing.T) {
		store := newMemStore()
		svc := newBillingService(store)

		rec, err := svc.Assess(ctx, 42, "sem:2026-ODD:tuition", 10000, nil)
		require.NoError(t, err)

		_, err = svc.ApplyDiscount(ctx, rec.ID, 2000, "waiver-2026-042")
		require.NoError(t, err)

		replayed, err := svc.ApplyDiscount(ctx, rec.ID, 2000, "waiver-2026-042")
		assert.ErrorIs(t, err, domain.ErrDuplicatePayment)
		require.NotNil(t, replayed)
		assert.Equal(t, int64(2000), replayed.DiscountPaise, "not double-credited")
	})

	t.Run("Payment Then Duplicate Ref Across Kinds", func(t *testing.T) {
		// An adjustment ref colliding with a gateway txn id is still one
		// idempotency namespace.
		store := newMemStore()
		svc := newBillingService(store)

		rec, err := svc.Assess(ctx, 42, "sem:2026-ODD:tuition", 10000, nil)
		require.NoError(t, err)
		_, err = svc.ApplyPayment(ctx, rec.ID, 1000, "ref-1", domain.PaymentMethodCash)
		require.NoError(t, err)
		_, err = svc.ApplyDiscount(ctx, rec.ID, 1000, "ref-1")
		assert.ErrorIs(t, err, domain.ErrDuplicatePayment)
	})
}
