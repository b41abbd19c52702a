package service_test

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"campusledger/internal/domain"
	"campusledger/internal/repository"
)

// memStore is an in-memory repository bundle with transactional rollback.
// One mutex serializes transactions the way row locks do in Postgres, which
// lets the concurrency tests exercise the real capacity invariant instead
// of mock expectations.
type memStore struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	pools       map[int64]*domain.Pool
	allocations map[int64]*domain.Allocation
	billing     map[int64]*domain.BillingRecord
	penalties   map[int64]*domain.Penalty
	payments    []domain.PaymentEvent
	events      []domain.Event
	nextID      int64
}

func newMemStore() *memStore {
	return &memStore{state: &memState{
		pools:       map[int64]*domain.Pool{},
		allocations: map[int64]*domain.Allocation{},
		billing:     map[int64]*domain.BillingRecord{},
		penalties:   map[int64]*domain.Penalty{},
	}}
}

func (s *memState) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memState) clone() *memState {
	c := &memState{
		pools:       make(map[int64]*domain.Pool, len(s.pools)),
		allocations: make(map[int64]*domain.Allocation, len(s.allocations)),
		billing:     make(map[int64]*domain.BillingRecord, len(s.billing)),
		penalties:   make(map[int64]*domain.Penalty, len(s.penalties)),
		payments:    append([]domain.PaymentEvent(nil), s.payments...),
		events:      append([]domain.Event(nil), s.events...),
		nextID:      s.nextID,
	}
	for id, p := range s.pools {
		cp := *p
		c.pools[id] = &cp
	}
	for id, a := range s.allocations {
		ca := *a
		c.allocations[id] = &ca
	}
	for id, b := range s.billing {
		cb := *b
		c.billing[id] = &cb
	}
	for id, p := range s.penalties {
		cp := *p
		c.penalties[id] = &cp
	}
	return c
}

func (m *memStore) repos() repository.Repositories {
	return repository.Repositories{
		Pools:       memPools{m},
		Allocations: memAllocations{m},
		Billing:     memBilling{m},
		Payments:    memPayments{m},
		Penalties:   memPenalties{m},
		Events:      memEvents{m},
	}
}

func (m *memStore) Repositories() repository.Repositories { return m.repos() }

func (m *memStore) WithinTx(_ context.Context, fn func(r repository.Repositories) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := m.state.clone()
	if err := fn(m.repos()); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

// seedPool installs a pool directly, bypassing the service layer.
func (m *memStore) seedPool(p domain.Pool) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == 0 {
		p.ID = m.state.id()
	} else if p.ID > m.state.nextID {
		m.state.nextID = p.ID
	}
	m.state.pools[p.ID] = &p
	return p.ID
}

func (m *memStore) seedAllocation(a domain.Allocation) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == 0 {
		a.ID = m.state.id()
	} else if a.ID > m.state.nextID {
		m.state.nextID = a.ID
	}
	m.state.allocations[a.ID] = &a
	return a.ID
}

func (m *memStore) seedBilling(b domain.BillingRecord) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.ID == 0 {
		b.ID = m.state.id()
	} else if b.ID > m.state.nextID {
		m.state.nextID = b.ID
	}
	m.state.billing[b.ID] = &b
	return b.ID
}

func (m *memStore) eventTypes() []domain.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]domain.EventType, 0, len(m.state.events))
	for _, e := range m.state.events {
		types = append(types, e.Type)
	}
	return types
}

type memPools struct{ m *memStore }

func (r memPools) Create(_ context.Context, pool *domain.Pool) error {
	s := r.m.state
	pool.ID = s.id()
	pool.CreatedAt = time.Now().UTC()
	pool.UpdatedAt = pool.CreatedAt
	cp := *pool
	s.pools[pool.ID] = &cp
	return nil
}

func (r memPools) GetByID(_ context.Context, id int64) (*domain.Pool, error) {
	p, ok := r.m.state.pools[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r memPools) GetForUpdate(ctx context.Context, id int64) (*domain.Pool, error) {
	return r.GetByID(ctx, id)
}

func (r memPools) SetReservedCount(_ context.Context, id int64, count int32) error {
	p, ok := r.m.state.pools[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.ReservedCount = count
	return nil
}

func (r memPools) Archive(_ context.Context, id int64) error {
	p, ok := r.m.state.pools[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.Archived = true
	return nil
}

func (r memPools) ListByKind(_ context.Context, kind domain.PoolKind, page, pageSize int32) ([]domain.Pool, int32, error) {
	var pools []domain.Pool
	for _, p := range r.m.state.pools {
		if p.Kind == kind && !p.Archived {
			pools = append(pools, *p)
		}
	}
	sort.Slice(pools, func(i, j int) bool { return pools[i].ID < pools[j].ID })
	return paginate(pools, page, pageSize), int32(len(pools)), nil
}

type memAllocations struct{ m *memStore }

func (r memAllocations) Create(_ context.Context, a *domain.Allocation) error {
	s := r.m.state
	a.ID = s.id()
	a.CreatedAt = time.Now().UTC()
	a.UpdatedAt = a.CreatedAt
	ca := *a
	s.allocations[a.ID] = &ca
	return nil
}

func (r memAllocations) GetByID(_ context.Context, id int64) (*domain.Allocation, error) {
	a, ok := r.m.state.allocations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	ca := *a
	return &ca, nil
}

func (r memAllocations) GetForUpdate(ctx context.Context, id int64) (*domain.Allocation, error) {
	return r.GetByID(ctx, id)
}

func (r memAllocations) Update(_ context.Context, a *domain.Allocation) error {
	if _, ok := r.m.state.allocations[a.ID]; !ok {
		return domain.ErrNotFound
	}
	a.UpdatedAt = time.Now().UTC()
	ca := *a
	r.m.state.allocations[a.ID] = &ca
	return nil
}

func (r memAllocations) ListActiveHoldings(_ context.Context, ownerID int64, kind domain.PoolKind) ([]domain.Holding, error) {
	var holdings []domain.Holding
	for _, a := range r.m.state.allocations {
		if a.OwnerID != ownerID || a.Status != domain.AllocationStatusActive || a.PoolKind != kind {
			continue
		}
		h := domain.Holding{AllocationID: a.ID, PoolID: a.PoolID, Kind: a.PoolKind}
		if p, ok := r.m.state.pools[a.PoolID]; ok {
			h.AcademicYear = p.AcademicYear
		}
		holdings = append(holdings, h)
	}
	return holdings, nil
}

func (r memAllocations) ListByOwner(_ context.Context, ownerID int64, status string, page, pageSize int32) ([]domain.Allocation, int32, error) {
	var allocs []domain.Allocation
	for _, a := range r.m.state.allocations {
		if a.OwnerID != ownerID {
			continue
		}
		if status != "" && string(a.Status) != status {
			continue
		}
		allocs = append(allocs, *a)
	}
	sort.Slice(allocs, func(i, j int) bool { return allocs[i].ID < allocs[j].ID })
	return paginate(allocs, page, pageSize), int32(len(allocs)), nil
}

func (r memAllocations) ListOverdueActive(_ context.Context, now time.Time, limit int32) ([]domain.Allocation, error) {
	var stale []domain.Allocation
	for _, a := range r.m.state.allocations {
		if a.Overdue(now) {
			stale = append(stale, *a)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].DueAt.Before(*stale[j].DueAt) })
	if int32(len(stale)) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

type memBilling struct{ m *memStore }

func (r memBilling) Create(_ context.Context, rec *domain.BillingRecord) error {
	s := r.m.state
	for _, b := range s.billing {
		if b.OwnerID == rec.OwnerID && b.ScheduleRef == rec.ScheduleRef {
			return fmt.Errorf("%w: owner %d ref %q", domain.ErrDuplicateAssessment, rec.OwnerID, rec.ScheduleRef)
		}
	}
	rec.ID = s.id()
	rec.CreatedAt = time.Now().UTC()
	rec.UpdatedAt = rec.CreatedAt
	cb := *rec
	s.billing[rec.ID] = &cb
	return nil
}

func (r memBilling) GetByID(_ context.Context, id int64) (*domain.BillingRecord, error) {
	b, ok := r.m.state.billing[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cb := *b
	return &cb, nil
}

func (r memBilling) GetForUpdate(ctx context.Context, id int64) (*domain.BillingRecord, error) {
	return r.GetByID(ctx, id)
}

func (r memBilling) GetByScheduleRef(_ context.Context, ownerID int64, scheduleRef string) (*domain.BillingRecord, error) {
	for _, b := range r.m.state.billing {
		if b.OwnerID == ownerID && b.ScheduleRef == scheduleRef {
			cb := *b
			return &cb, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r memBilling) UpdateAmounts(_ context.Context, rec *domain.BillingRecord) error {
	b, ok := r.m.state.billing[rec.ID]
	if !ok {
		return domain.ErrNotFound
	}
	b.PaidPaise = rec.PaidPaise
	b.DiscountPaise = rec.DiscountPaise
	b.ScholarshipPaise = rec.ScholarshipPaise
	b.UpdatedAt = time.Now().UTC()
	return nil
}

func (r memBilling) ListByOwner(_ context.Context, ownerID int64, page, pageSize int32) ([]domain.BillingRecord, int32, error) {
	var recs []domain.BillingRecord
	for _, b := range r.m.state.billing {
		if b.OwnerID == ownerID {
			recs = append(recs, *b)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
	return paginate(recs, page, pageSize), int32(len(recs)), nil
}

type memPayments struct{ m *memStore }

func (r memPayments) Append(_ context.Context, ev *domain.PaymentEvent) error {
	s := r.m.state
	for _, existing := range s.payments {
		if existing.ExternalTxnID == ev.ExternalTxnID {
			return fmt.Errorf("%w: external txn %s", domain.ErrDuplicatePayment, ev.ExternalTxnID)
		}
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	s.payments = append(s.payments, *ev)
	return nil
}

func (r memPayments) SumCompleted(_ context.Context, billingRecordID int64) (int64, error) {
	var sum int64
	for _, ev := range r.m.state.payments {
		if ev.BillingRecordID != billingRecordID || ev.Outcome != domain.PaymentOutcomeCompleted {
			continue
		}
		if ev.Method == domain.PaymentMethodDiscount || ev.Method == domain.PaymentMethodScholarship {
			continue
		}
		sum += ev.AmountPaise
	}
	return sum, nil
}

func (r memPayments) ListByRecord(_ context.Context, billingRecordID int64) ([]domain.PaymentEvent, error) {
	var events []domain.PaymentEvent
	for _, ev := range r.m.state.payments {
		if ev.BillingRecordID == billingRecordID {
			events = append(events, ev)
		}
	}
	return events, nil
}

type memPenalties struct{ m *memStore }

func (r memPenalties) Create(_ context.Context, p *domain.Penalty) error {
	s := r.m.state
	p.ID = s.id()
	cp := *p
	s.penalties[p.ID] = &cp
	return nil
}

func (r memPenalties) ListByAllocation(_ context.Context, allocationID int64) ([]domain.Penalty, error) {
	var penalties []domain.Penalty
	for _, p := range r.m.state.penalties {
		if p.AllocationID == allocationID {
			penalties = append(penalties, *p)
		}
	}
	sort.Slice(penalties, func(i, j int) bool { return penalties[i].ID < penalties[j].ID })
	return penalties, nil
}

func (r memPenalties) ListUnbilled(_ context.Context, limit int32) ([]domain.Penalty, error) {
	billed := map[string]bool{}
	for _, b := range r.m.state.billing {
		if strings.HasPrefix(b.ScheduleRef, "penalty:") {
			billed[b.ScheduleRef] = true
		}
	}
	var penalties []domain.Penalty
	for _, p := range r.m.state.penalties {
		if p.AmountPaise <= 0 || p.Waived || billed[fmt.Sprintf("penalty:%d", p.ID)] {
			continue
		}
		penalties = append(penalties, *p)
	}
	sort.Slice(penalties, func(i, j int) bool { return penalties[i].ID < penalties[j].ID })
	if int32(len(penalties)) > limit {
		penalties = penalties[:limit]
	}
	return penalties, nil
}

func (r memPenalties) SetWaived(_ context.Context, id int64, waived bool) error {
	p, ok := r.m.state.penalties[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.Waived = waived
	return nil
}

type memEvents struct{ m *memStore }

func (r memEvents) Append(_ context.Context, e *domain.Event) error {
	r.m.state.events = append(r.m.state.events, *e)
	return nil
}

func (r memEvents) ListUndelivered(_ context.Context, limit int32) ([]domain.Event, error) {
	var events []domain.Event
	for _, e := range r.m.state.events {
		if e.DeliveredAt == nil {
			events = append(events, e)
		}
		if int32(len(events)) == limit {
			break
		}
	}
	return events, nil
}

func (r memEvents) MarkDelivered(_ context.Context, ids []string, at time.Time) error {
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	for i := range r.m.state.events {
		if want[r.m.state.events[i].ID] && r.m.state.events[i].DeliveredAt == nil {
			t := at
			r.m.state.events[i].DeliveredAt = &t
		}
	}
	return nil
}

// conflictStore fails WithinTx with ErrConflict a fixed number of times
// before delegating, so retry behavior can be observed from outside.
type conflictStore struct {
	*memStore
	failures int
	calls    int
}

func (s *conflictStore) WithinTx(ctx context.Context, fn func(r repository.Repositories) error) error {
	s.calls++
	if s.calls <= s.failures {
		return domain.ErrConflict
	}
	return s.memStore.WithinTx(ctx, fn)
}

// racingStore models losing an assess race to a transaction that commits
// between this one's read and its insert: the in-transaction read misses,
// the insert collides, and only a fresh read sees the winner's record.
type racingStore struct {
	*memStore
}

func (s racingStore) WithinTx(ctx context.Context, fn func(r repository.Repositories) error) error {
	return s.memStore.WithinTx(ctx, func(r repository.Repositories) error {
		r.Billing = racingBilling{r.Billing}
		return fn(r)
	})
}

type racingBilling struct {
	repository.BillingRepository
}

func (r racingBilling) GetByScheduleRef(context.Context, int64, string) (*domain.BillingRecord, error) {
	return nil, domain.ErrNotFound
}

func (r racingBilling) Create(_ context.Context, rec *domain.BillingRecord) error {
	return fmt.Errorf("%w: owner %d ref %q", domain.ErrDuplicateAssessment, rec.OwnerID, rec.ScheduleRef)
}

func paginate[T any](items []T, page, pageSize int32) []T {
	if page < 1 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= int32(len(items)) {
		return nil
	}
	end := start + pageSize
	if end > int32(len(items)) {
		end = int32(len(items))
	}
	return items[start:end]
}
