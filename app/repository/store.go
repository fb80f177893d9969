package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibast-solutions/ms-go-transactions/app/entity"
)

type TransactionFilter struct {
	MerchantID string
	HasStatus  bool
	Status     string
	Limit      int32
	Offset     int32
}

type TransactionStore interface {
	Create(ctx context.Context, txn *entity.Transaction) error
	Update(ctx context.Context, txn *entity.Transaction) error
	FindByID(ctx context.Context, merchantID, id string) (*entity.Transaction, error)
	FindByIDForUpdate(ctx context.Context, merchantID, id string) (*entity.Transaction, error)
	List(ctx context.Context, filter TransactionFilter) ([]*entity.Transaction, error)
}

type EventStore interface {
	Create(ctx context.Context, event *entity.TransactionEvent) error
	ListByTransaction(ctx context.Context, transactionID string) ([]*entity.TransactionEvent, error)
}

type IdempotencyStore interface {
	Find(ctx context.Context, merchantID, key string) (*entity.IdempotencyRecord, error)
	Create(ctx context.Context, record *entity.IdempotencyRecord) error
	DeleteExpired(ctx context.Context, now time.Time, limit int32) (int64, error)
}

type WebhookConfigStore interface {
	ListActiveForEvent(ctx context.Context, merchantID, eventType string) ([]*entity.WebhookConfig, error)
}

type WebhookDeliveryStore interface {
	Create(ctx context.Context, delivery *entity.WebhookDelivery) error
	Update(ctx context.Context, delivery *entity.WebhookDelivery) error
	ListDue(ctx context.Context, now time.Time, limit int32) ([]*entity.WebhookDelivery, error)
}

// Store bundles the repositories behind a single handle so that the
// service layer can run multi-table writes atomically. Atomic runs fn
// against a transaction-scoped Store; every write made through it either
// commits as a whole or not at all.
type Store interface {
	Transactions() TransactionStore
	Events() EventStore
	Idempotency() IdempotencyStore
	WebhookConfigs() WebhookConfigStore
	Deliveries() WebhookDeliveryStore
	Atomic(ctx context.Context, fn func(ops Store) error) error
}

type SQLStore struct {
	db   *sql.DB
	conn DBTX
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, conn: db}
}

func (s *SQLStore) Transactions() TransactionStore {
	return NewTransactionRepository(s.conn)
}

func (s *SQLStore) Events() EventStore {
	return NewTransactionEventRepository(s.conn)
}

func (s *SQLStore) Idempotency() IdempotencyStore {
	return NewIdempotencyRepository(s.conn)
}

func (s *SQLStore) WebhookConfigs() WebhookConfigStore {
	return NewWebhookConfigRepository(s.conn)
}

func (s *SQLStore) Deliveries() WebhookDeliveryStore {
	return NewWebhookDeliveryRepository(s.conn)
}

func (s *SQLStore) Atomic(ctx context.Context, fn func(ops Store) error) error {
	if s.db == nil {
		// Already transaction-scoped; reuse the surrounding transaction.
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	scoped := &SQLStore{conn: tx}
	if err := fn(scoped); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
