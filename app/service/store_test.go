package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vibast-solutions/ms-go-transactions/app/entity"
	"github.com/vibast-solutions/ms-go-transactions/app/locker"
	"github.com/vibast-solutions/ms-go-transactions/app/repository"
)

var errStorageDown = errors.New("storage unavailable")

type memData struct {
	transactions map[string]*entity.Transaction
	events       []*entity.TransactionEvent
	records      map[string]*entity.IdempotencyRecord
	configs      []*entity.WebhookConfig
	deliveries   []*entity.WebhookDelivery

	nextEventID    uint64
	nextDeliveryID uint64

	failIdempotencyCreates int
	failDeliveryCreates    int
}

func newMemData() *memData {
	return &memData{
		transactions: map[string]*entity.Transaction{},
		records:      map[string]*entity.IdempotencyRecord{},
		nextEventID:  1,
		nextDeliveryID: 1,
	}
}

func (d *memData) clone() *memData {
	cloned := &memData{
		transactions:           make(map[string]*entity.Transaction, len(d.transactions)),
		events:                 make([]*entity.TransactionEvent, len(d.events)),
		records:                make(map[string]*entity.IdempotencyRecord, len(d.records)),
		configs:                d.configs,
		deliveries:             make([]*entity.WebhookDelivery, len(d.deliveries)),
		nextEventID:            d.nextEventID,
		nextDeliveryID:         d.nextDeliveryID,
		failIdempotencyCreates: d.failIdempotencyCreates,
		failDeliveryCreates:    d.failDeliveryCreates,
	}
	for id, txn := range d.transactions {
		copyItem := *txn
		cloned.transactions[id] = &copyItem
	}
	copy(cloned.events, d.events)
	for key, record := range d.records {
		copyItem := *record
		cloned.records[key] = &copyItem
	}
	copy(cloned.deliveries, d.deliveries)
	return cloned
}

// memStore is an in-memory repository.Store with snapshot-based
// rollback, so coordinator atomicity can be exercised without a
// database.
type memStore struct {
	mu   *sync.Mutex
	data *memData
	tx   bool
}

func newMemStore() *memStore {
	return &memStore{mu: &sync.Mutex{}, data: newMemData()}
}

func (s *memStore) lock() func() {
	if s.tx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *memStore) Atomic(_ context.Context, fn func(ops repository.Store) error) error {
	if s.tx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	child := &memStore{mu: s.mu, data: s.data, tx: true}
	if err := fn(child); err != nil {
		// Injection counters model the storage backend, not stored data:
		// they must survive the rollback so one injected failure means
		// one failed attempt.
		failIdempotency := s.data.failIdempotencyCreates
		failDelivery := s.data.failDeliveryCreates
		*s.data = *snapshot
		s.data.failIdempotencyCreates = failIdempotency
		s.data.failDeliveryCreates = failDelivery
		return err
	}
	return nil
}

func (s *memStore) Transactions() repository.TransactionStore   { return &memTransactions{s} }
func (s *memStore) Events() repository.EventStore               { return &memEvents{s} }
func (s *memStore) Idempotency() repository.IdempotencyStore    { return &memIdempotency{s} }
func (s *memStore) WebhookConfigs() repository.WebhookConfigStore { return &memConfigs{s} }
func (s *memStore) Deliveries() repository.WebhookDeliveryStore { return &memDeliveries{s} }

type memTransactions struct{ s *memStore }

func (r *memTransactions) Create(_ context.Context, txn *entity.Transaction) error {
	defer r.s.lock()()
	if _, ok := r.s.data.transactions[txn.ID]; ok {
		return repository.ErrTransactionAlreadyExists
	}
	copyItem := *txn
	r.s.data.transactions[txn.ID] = &copyItem
	return nil
}

func (r *memTransactions) Update(_ context.Context, txn *entity.Transaction) error {
	defer r.s.lock()()
	existing, ok := r.s.data.transactions[txn.ID]
	if !ok || existing.MerchantID != txn.MerchantID {
		return repository.ErrTransactionNotFound
	}
	copyItem := *txn
	r.s.data.transactions[txn.ID] = &copyItem
	return nil
}

// FindByID mirrors the SQL repository's contract: no row means
// (nil, nil), not an error.
func (r *memTransactions) FindByID(_ context.Context, merchantID, id string) (*entity.Transaction, error) {
	defer r.s.lock()()
	item, ok := r.s.data.transactions[id]
	if !ok || item.MerchantID != merchantID {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

func (r *memTransactions) FindByIDForUpdate(ctx context.Context, merchantID, id string) (*entity.Transaction, error) {
	return r.FindByID(ctx, merchantID, id)
}

func (r *memTransactions) List(_ context.Context, filter repository.TransactionFilter) ([]*entity.Transaction, error) {
	defer r.s.lock()()
	items := make([]*entity.Transaction, 0)
	for _, item := range r.s.data.transactions {
		if item.MerchantID != filter.MerchantID {
			continue
		}
		if filter.HasStatus && item.Status != filter.Status {
			continue
		}
		copyItem := *item
		items = append(items, &copyItem)
	}
	return items, nil
}

type memEvents struct{ s *memStore }

func (r *memEvents) Create(_ context.Context, event *entity.TransactionEvent) error {
	defer r.s.lock()()
	copyItem := *event
	copyItem.ID = r.s.data.nextEventID
	r.s.data.nextEventID++
	r.s.data.events = append(r.s.data.events, &copyItem)
	event.ID = copyItem.ID
	return nil
}

func (r *memEvents) ListByTransaction(_ context.Context, transactionID string) ([]*entity.TransactionEvent, error) {
	defer r.s.lock()()
	items := make([]*entity.TransactionEvent, 0)
	for _, item := range r.s.data.events {
		if item.TransactionID == transactionID {
			copyItem := *item
			items = append(items, &copyItem)
		}
	}
	return items, nil
}

type memIdempotency struct{ s *memStore }

func recordKey(merchantID, key string) string {
	return merchantID + ":" + key
}

func (r *memIdempotency) Find(_ context.Context, merchantID, key string) (*entity.IdempotencyRecord, error) {
	defer r.s.lock()()
	item, ok := r.s.data.records[recordKey(merchantID, key)]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

func (r *memIdempotency) Create(_ context.Context, record *entity.IdempotencyRecord) error {
	defer r.s.lock()()
	if r.s.data.failIdempotencyCreates > 0 {
		r.s.data.failIdempotencyCreates--
		return errStorageDown
	}
	key := recordKey(record.MerchantID, record.Key)
	if _, ok := r.s.data.records[key]; ok {
		return repository.ErrIdempotencyRecordExists
	}
	copyItem := *record
	r.s.data.records[key] = &copyItem
	return nil
}

func (r *memIdempotency) DeleteExpired(_ context.Context, now time.Time, limit int32) (int64, error) {
	defer r.s.lock()()
	var deleted int64
	for key, record := range r.s.data.records {
		if deleted >= int64(limit) {
			break
		}
		if !record.ExpiresAt.After(now) {
			delete(r.s.data.records, key)
			deleted++
		}
	}
	return deleted, nil
}

type memConfigs struct{ s *memStore }

func (r *memConfigs) ListActiveForEvent(_ context.Context, merchantID, eventType string) ([]*entity.WebhookConfig, error) {
	defer r.s.lock()()
	items := make([]*entity.WebhookConfig, 0)
	for _, cfg := range r.s.data.configs {
		if cfg.MerchantID != merchantID || !cfg.IsActive {
			continue
		}
		for _, event := range cfg.Events {
			if event == "*" || event == eventType {
				copyItem := *cfg
				items = append(items, &copyItem)
				break
			}
		}
	}
	return items, nil
}

type memDeliveries struct{ s *memStore }

func (r *memDeliveries) Create(_ context.Context, delivery *entity.WebhookDelivery) error {
	defer r.s.lock()()
	if r.s.data.failDeliveryCreates > 0 {
		r.s.data.failDeliveryCreates--
		return errStorageDown
	}
	copyItem := *delivery
	copyItem.ID = r.s.data.nextDeliveryID
	r.s.data.nextDeliveryID++
	r.s.data.deliveries = append(r.s.data.deliveries, &copyItem)
	delivery.ID = copyItem.ID
	return nil
}

func (r *memDeliveries) Update(_ context.Context, delivery *entity.WebhookDelivery) error {
	defer r.s.lock()()
	for i, item := range r.s.data.deliveries {
		if item.ID == delivery.ID {
			copyItem := *delivery
			r.s.data.deliveries[i] = &copyItem
			return nil
		}
	}
	return repository.ErrDeliveryNotFound
}

func (r *memDeliveries) ListDue(_ context.Context, now time.Time, limit int32) ([]*entity.WebhookDelivery, error) {
	defer r.s.lock()()
	items := make([]*entity.WebhookDelivery, 0)
	for _, item := range r.s.data.deliveries {
		if int32(len(items)) >= limit {
			break
		}
		if item.Status != entity.DeliveryStatusPending || item.NextAttemptAt == nil || item.NextAttemptAt.After(now) {
			continue
		}
		copyItem := *item
		items = append(items, &copyItem)
	}
	return items, nil
}

// fakeLocker hands out in-process locks with the same contract as the
// redis locker.
type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: map[string]bool{}}
}

func (l *fakeLocker) Acquire(_ context.Context, key string, _ time.Duration) (locker.Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, locker.ErrLockHeld
	}
	l.held[key] = true
	return &fakeLease{locker: l, key: key}, nil
}

type fakeLease struct {
	locker *fakeLocker
	key    string
}

func (l *fakeLease) Release(_ context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()
	delete(l.locker.held, l.key)
	return nil
}
