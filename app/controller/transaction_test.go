package controller

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/vibast-solutions/ms-go-transactions/app/entity"
	"github.com/vibast-solutions/ms-go-transactions/app/locker"
	"github.com/vibast-solutions/ms-go-transactions/app/provider"
	"github.com/vibast-solutions/ms-go-transactions/app/repository"
	"github.com/vibast-solutions/ms-go-transactions/app/service"
	"github.com/vibast-solutions/ms-go-transactions/app/types"
	"github.com/vibast-solutions/ms-go-transactions/config"
)

type controllerStore struct {
	findTransactionFn func(ctx context.Context, merchantID, id string) (*entity.Transaction, error)
	listFn            func(ctx context.Context, filter repository.TransactionFilter) ([]*entity.Transaction, error)
	listEventsFn      func(ctx context.Context, transactionID string) ([]*entity.TransactionEvent, error)
	findRecordFn      func(ctx context.Context, merchantID, key string) (*entity.IdempotencyRecord, error)
	createRecordFn    func(ctx context.Context, record *entity.IdempotencyRecord) error
}

func (s *controllerStore) Transactions() repository.TransactionStore     { return &ctrlTransactions{s} }
func (s *controllerStore) Events() repository.EventStore                 { return &ctrlEvents{s} }
func (s *controllerStore) Idempotency() repository.IdempotencyStore      { return &ctrlIdempotency{s} }
func (s *controllerStore) WebhookConfigs() repository.WebhookConfigStore { return &ctrlConfigs{s} }
func (s *controllerStore) Deliveries() repository.WebhookDeliveryStore   { return &ctrlDeliveries{s} }

func (s *controllerStore) Atomic(ctx context.Context, fn func(ops repository.Store) error) error {
	return fn(s)
}

type ctrlTransactions struct{ s *controllerStore }

func (r *ctrlTransactions) Create(_ context.Context, _ *entity.Transaction) error { return nil }
func (r *ctrlTransactions) Update(_ context.Context, _ *entity.Transaction) error { return nil }

func (r *ctrlTransactions) FindByID(ctx context.Context, merchantID, id string) (*entity.Transaction, error) {
	if r.s.findTransactionFn != nil {
		return r.s.findTransactionFn(ctx, merchantID, id)
	}
	return nil, nil
}

func (r *ctrlTransactions) FindByIDForUpdate(ctx context.Context, merchantID, id string) (*entity.Transaction, error) {
	return r.FindByID(ctx, merchantID, id)
}

func (r *ctrlTransactions) List(ctx context.Context, filter repository.TransactionFilter) ([]*entity.Transaction, error) {
	if r.s.listFn != nil {
		return r.s.listFn(ctx, filter)
	}
	return []*entity.Transaction{}, nil
}

type ctrlEvents struct{ s *controllerStore }

func (r *ctrlEvents) Create(_ context.Context, _ *entity.TransactionEvent) error { return nil }

func (r *ctrlEvents) ListByTransaction(ctx context.Context, transactionID string) ([]*entity.TransactionEvent, error) {
	if r.s.listEventsFn != nil {
		return r.s.listEventsFn(ctx, transactionID)
	}
	return []*entity.TransactionEvent{}, nil
}

type ctrlIdempotency struct{ s *controllerStore }

func (r *ctrlIdempotency) Find(ctx context.Context, merchantID, key string) (*entity.IdempotencyRecord, error) {
	if r.s.findRecordFn != nil {
		return r.s.findRecordFn(ctx, merchantID, key)
	}
	return nil, nil
}

func (r *ctrlIdempotency) Create(ctx context.Context, record *entity.IdempotencyRecord) error {
	if r.s.createRecordFn != nil {
		return r.s.createRecordFn(ctx, record)
	}
	return nil
}

func (r *ctrlIdempotency) DeleteExpired(_ context.Context, _ time.Time, _ int32) (int64, error) {
	return 0, nil
}

type ctrlConfigs struct{ s *controllerStore }

func (r *ctrlConfigs) ListActiveForEvent(_ context.Context, _, _ string) ([]*entity.WebhookConfig, error) {
	return []*entity.WebhookConfig{}, nil
}

type ctrlDeliveries struct{ s *controllerStore }

func (r *ctrlDeliveries) Create(_ context.Context, _ *entity.WebhookDelivery) error { return nil }
func (r *ctrlDeliveries) Update(_ context.Context, _ *entity.WebhookDelivery) error { return nil }

func (r *ctrlDeliveries) ListDue(_ context.Context, _ time.Time, _ int32) ([]*entity.WebhookDelivery, error) {
	return []*entity.WebhookDelivery{}, nil
}

type openLocker struct{}

func (l *openLocker) Acquire(_ context.Context, _ string, _ time.Duration) (locker.Lease, error) {
	return &openLease{}, nil
}

type openLease struct{}

func (l *openLease) Release(_ context.Context) error { return nil }

func newTestController(store *controllerStore) *TransactionController {
	coordinator := service.NewCoordinator(store, &openLocker{}, config.IdempotencyConfig{
		RetentionTTL: 24 * time.Hour,
		LockTTL:      30 * time.Second,
	})
	registry := provider.NewRegistry(provider.NewSandboxProvider())
	svc := service.NewTransactionService(store, coordinator, registry, config.TransactionsConfig{})
	return NewTransactionController(svc)
}

func performRequest(t *testing.T, handler echo.HandlerFunc, method, target string, body []byte, headers map[string]string, pathParam string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	for name, value := range headers {
		req.Header.Set(name, value)
	}
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	if pathParam != "" {
		ctx.SetParamNames("id")
		ctx.SetParamValues(pathParam)
	}
	if err := handler(ctx); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	return rec
}

func requestHash(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{'\n'})
	h.Write([]byte(path))
	h.Write([]byte{'\n'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func mutationHeaders() map[string]string {
	return map[string]string{
		HeaderMerchantID:     "merchant_1",
		HeaderIdempotencyKey: uuid.NewString(),
		"Content-Type":       "application/json",
	}
}

func TestHealth(t *testing.T) {
	ctrl := newTestController(&controllerStore{})
	rec := performRequest(t, ctrl.Health, http.MethodGet, "/health", nil, nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestProcessTransactionCreated(t *testing.T) {
	ctrl := newTestController(&controllerStore{})

	body := []byte(`{"amount":10000,"currency":"USD","paymentMethodType":"card"}`)
	rec := performRequest(t, ctrl.ProcessTransaction, http.MethodPost, "/transactions", body, mutationHeaders(), "")

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var envelope types.TransactionEnvelopeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Transaction == nil || envelope.Transaction.Status != "authorized" {
		t.Fatalf("unexpected response: %s", rec.Body.String())
	}
}

func TestProcessTransactionMissingIdempotencyKey(t *testing.T) {
	ctrl := newTestController(&controllerStore{})

	headers := mutationHeaders()
	delete(headers, HeaderIdempotencyKey)
	body := []byte(`{"amount":10000,"currency":"USD","paymentMethodType":"card"}`)
	rec := performRequest(t, ctrl.ProcessTransaction, http.MethodPost, "/transactions", body, headers, "")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp types.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Code != "validation_error" {
		t.Fatalf("expected validation_error, got %q", resp.Code)
	}
}

func TestProcessTransactionReplaysStoredResponse(t *testing.T) {
	stored := []byte(`{"transaction":{"id":"txn_cached","status":"authorized"}}`)
	key := uuid.NewString()
	body := []byte(`{"amount":10000,"currency":"USD","paymentMethodType":"card"}`)

	store := &controllerStore{
		findRecordFn: func(_ context.Context, merchantID, gotKey string) (*entity.IdempotencyRecord, error) {
			return &entity.IdempotencyRecord{
				Key:                gotKey,
				MerchantID:         merchantID,
				RequestHash:        requestHash(http.MethodPost, "/transactions", body),
				ResponseStatusCode: http.StatusCreated,
				ResponseBody:       stored,
			}, nil
		},
	}
	ctrl := newTestController(store)

	headers := mutationHeaders()
	headers[HeaderIdempotencyKey] = key
	rec := performRequest(t, ctrl.ProcessTransaction, http.MethodPost, "/transactions", body, headers, "")

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 replay, got %d: %s", rec.Code, rec.Body.String())
	}
	if !bytes.Equal(bytes.TrimSpace(rec.Body.Bytes()), stored) {
		t.Fatalf("expected stored body replayed, got %s", rec.Body.String())
	}
}

func TestCaptureTransactionNotFound(t *testing.T) {
	ctrl := newTestController(&controllerStore{})

	rec := performRequest(t, ctrl.CaptureTransaction, http.MethodPost, "/transactions/txn_x/capture", nil, mutationHeaders(), "txn_x")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetTransaction(t *testing.T) {
	now := time.Now().UTC()
	store := &controllerStore{
		findTransactionFn: func(_ context.Context, merchantID, id string) (*entity.Transaction, error) {
			return &entity.Transaction{
				ID:         id,
				MerchantID: merchantID,
				Amount:     10000,
				Currency:   "USD",
				Status:     "authorized",
				CreatedAt:  now,
				UpdatedAt:  now,
			}, nil
		},
	}
	ctrl := newTestController(store)

	rec := performRequest(t, ctrl.GetTransaction, http.MethodGet, "/transactions/txn_1", nil, map[string]string{HeaderMerchantID: "merchant_1"}, "txn_1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var envelope types.TransactionEnvelopeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Transaction.ID != "txn_1" || envelope.Transaction.Amount != 10000 {
		t.Fatalf("unexpected response: %s", rec.Body.String())
	}
}

func TestGetTransactionNotFound(t *testing.T) {
	ctrl := newTestController(&controllerStore{})

	rec := performRequest(t, ctrl.GetTransaction, http.MethodGet, "/transactions/txn_x", nil, map[string]string{HeaderMerchantID: "merchant_1"}, "txn_x")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestListTransactionsInvalidLimit(t *testing.T) {
	ctrl := newTestController(&controllerStore{})

	rec := performRequest(t, ctrl.ListTransactions, http.MethodGet, "/transactions?limit=1000", nil, map[string]string{HeaderMerchantID: "merchant_1"}, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestListTransactionEvents(t *testing.T) {
	now := time.Now().UTC()
	oldStatus := "authorized"
	store := &controllerStore{
		findTransactionFn: func(_ context.Context, merchantID, id string) (*entity.Transaction, error) {
			return &entity.Transaction{ID: id, MerchantID: merchantID, Status: "captured", CreatedAt: now, UpdatedAt: now}, nil
		},
		listEventsFn: func(_ context.Context, transactionID string) ([]*entity.TransactionEvent, error) {
			return []*entity.TransactionEvent{
				{ID: 1, TransactionID: transactionID, EventType: "transaction.captured", OldStatus: &oldStatus, NewStatus: "captured", CreatedAt: now},
			}, nil
		},
	}
	ctrl := newTestController(store)

	rec := performRequest(t, ctrl.ListTransactionEvents, http.MethodGet, "/transactions/txn_1/events", nil, map[string]string{HeaderMerchantID: "merchant_1"}, "txn_1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp types.ListTransactionEventsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Events) != 1 || resp.Events[0].EventType != "transaction.captured" {
		t.Fatalf("unexpected response: %s", rec.Body.String())
	}
}
