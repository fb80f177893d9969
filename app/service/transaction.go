package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-transactions/app/entity"
	"github.com/vibast-solutions/ms-go-transactions/app/factory"
	"github.com/vibast-solutions/ms-go-transactions/app/mapper"
	"github.com/vibast-solutions/ms-go-transactions/app/provider"
	"github.com/vibast-solutions/ms-go-transactions/app/repository"
	"github.com/vibast-solutions/ms-go-transactions/app/state"
	"github.com/vibast-solutions/ms-go-transactions/app/types"
	"github.com/vibast-solutions/ms-go-transactions/config"
)

// TransactionService implements the merchant-facing transaction
// lifecycle. Every mutating operation goes through the coordinator so a
// retried request replays its original response instead of re-running.
type TransactionService struct {
	store       repository.Store
	coordinator *Coordinator
	providers   *provider.Registry
	cfg         config.TransactionsConfig
	logger      logrus.FieldLogger
}

func NewTransactionService(
	store repository.Store,
	coordinator *Coordinator,
	providers *provider.Registry,
	cfg config.TransactionsConfig,
) *TransactionService {
	return &TransactionService{
		store:       store,
		coordinator: coordinator,
		providers:   providers,
		cfg:         cfg,
		logger:      factory.NewModuleLogger("transaction-service"),
	}
}

func (s *TransactionService) Process(ctx context.Context, merchantID, idempotencyKey string, body []byte) (int, []byte, error) {
	return s.coordinator.Execute(ctx, merchantID, idempotencyKey, http.MethodPost, "/transactions", body,
		func(ctx context.Context, ops repository.Store) (*Outcome, error) {
			return s.process(ctx, ops, merchantID, idempotencyKey, body)
		})
}

func (s *TransactionService) process(ctx context.Context, ops repository.Store, merchantID, idempotencyKey string, body []byte) (*Outcome, error) {
	request, err := types.NewProcessTransactionRequestFromBody(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, err.Error())
	}
	if err := request.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, err.Error())
	}

	gateway, err := s.providers.Get(s.providerName())
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	txn := &entity.Transaction{
		ID:                "txn_" + uuid.NewString(),
		MerchantID:        merchantID,
		Amount:            request.Amount,
		Currency:          request.Currency,
		Status:            state.StatusPending,
		PaymentMethodType: request.PaymentMethodType,
		CustomerRef:       normalizeOptionalString(request.CustomerID),
		Description:       normalizeOptionalString(request.Description),
		IdempotencyKey:    normalizeOptionalString(idempotencyKey),
		Metadata:          cloneMetadata(request.Metadata),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	result, authErr := gateway.Authorize(ctx, &provider.AuthorizeInput{
		TransactionID:        txn.ID,
		MerchantID:           merchantID,
		Amount:               txn.Amount,
		Currency:             txn.Currency,
		PaymentMethodType:    txn.PaymentMethodType,
		PaymentMethodDetails: request.PaymentMethodDetails,
		Metadata:             request.Metadata,
	})
	if authErr != nil && !errors.Is(authErr, provider.ErrDeclined) {
		return nil, authErr
	}

	var change state.Change
	if authErr != nil {
		change = state.Authorize(txn, false)
		reason := authErr.Error()
		txn.FailureReason = &reason
	} else {
		change = state.Authorize(txn, true)
		txn.GatewayReferenceID = &result.GatewayReferenceID
	}

	if err := ops.Transactions().Create(ctx, txn); err != nil {
		return nil, err
	}
	if err := s.recordChange(ctx, ops, txn, change); err != nil {
		return nil, err
	}

	if authErr != nil {
		return nil, authErr
	}
	return okOutcome(http.StatusCreated, txn)
}

func (s *TransactionService) Capture(ctx context.Context, merchantID, idempotencyKey, transactionID string, body []byte) (int, []byte, error) {
	path := "/transactions/" + transactionID + "/capture"
	return s.coordinator.Execute(ctx, merchantID, idempotencyKey, http.MethodPost, path, body,
		func(ctx context.Context, ops repository.Store) (*Outcome, error) {
			return s.capture(ctx, ops, merchantID, transactionID, body)
		})
}

func (s *TransactionService) capture(ctx context.Context, ops repository.Store, merchantID, transactionID string, body []byte) (*Outcome, error) {
	request, err := types.NewAmountRequestFromBody(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, err.Error())
	}
	if err := request.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, err.Error())
	}

	txn, err := s.lockTransaction(ctx, ops, merchantID, transactionID)
	if err != nil {
		return nil, err
	}

	amount := txn.Amount - txn.AmountCaptured
	if request.Amount != nil {
		amount = *request.Amount
	}

	change, err := state.Capture(txn, amount)
	if err != nil {
		return nil, err
	}

	gateway, err := s.providers.Get(s.providerName())
	if err != nil {
		return nil, err
	}
	if err := gateway.Capture(ctx, derefString(txn.GatewayReferenceID), amount); err != nil {
		if errors.Is(err, provider.ErrDeclined) {
			return nil, s.markFailed(ctx, ops, txn, change, err)
		}
		return nil, err
	}

	txn.UpdatedAt = time.Now().UTC()
	if err := ops.Transactions().Update(ctx, txn); err != nil {
		return nil, err
	}
	if err := s.recordChange(ctx, ops, txn, change); err != nil {
		return nil, err
	}
	return okOutcome(http.StatusOK, txn)
}

func (s *TransactionService) Refund(ctx context.Context, merchantID, idempotencyKey, transactionID string, body []byte) (int, []byte, error) {
	path := "/transactions/" + transactionID + "/refund"
	return s.coordinator.Execute(ctx, merchantID, idempotencyKey, http.MethodPost, path, body,
		func(ctx context.Context, ops repository.Store) (*Outcome, error) {
			return s.refund(ctx, ops, merchantID, transactionID, body)
		})
}

func (s *TransactionService) refund(ctx context.Context, ops repository.Store, merchantID, transactionID string, body []byte) (*Outcome, error) {
	request, err := types.NewAmountRequestFromBody(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, err.Error())
	}
	if err := request.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, err.Error())
	}

	txn, err := s.lockTransaction(ctx, ops, merchantID, transactionID)
	if err != nil {
		return nil, err
	}

	amount := txn.AmountCaptured - txn.AmountRefunded
	if request.Amount != nil {
		amount = *request.Amount
	}

	change, err := state.Refund(txn, amount)
	if err != nil {
		return nil, err
	}

	gateway, err := s.providers.Get(s.providerName())
	if err != nil {
		return nil, err
	}
	if err := gateway.Refund(ctx, derefString(txn.GatewayReferenceID), amount); err != nil {
		if errors.Is(err, provider.ErrDeclined) {
			return nil, s.markFailed(ctx, ops, txn, change, err)
		}
		return nil, err
	}

	txn.UpdatedAt = time.Now().UTC()
	if err := ops.Transactions().Update(ctx, txn); err != nil {
		return nil, err
	}
	if err := s.recordChange(ctx, ops, txn, change); err != nil {
		return nil, err
	}
	return okOutcome(http.StatusOK, txn)
}

func (s *TransactionService) Void(ctx context.Context, merchantID, idempotencyKey, transactionID string, body []byte) (int, []byte, error) {
	path := "/transactions/" + transactionID + "/void"
	return s.coordinator.Execute(ctx, merchantID, idempotencyKey, http.MethodPost, path, body,
		func(ctx context.Context, ops repository.Store) (*Outcome, error) {
			return s.void(ctx, ops, merchantID, transactionID)
		})
}

func (s *TransactionService) void(ctx context.Context, ops repository.Store, merchantID, transactionID string) (*Outcome, error) {
	txn, err := s.lockTransaction(ctx, ops, merchantID, transactionID)
	if err != nil {
		return nil, err
	}

	change, err := state.Void(txn)
	if err != nil {
		return nil, err
	}

	gateway, err := s.providers.Get(s.providerName())
	if err != nil {
		return nil, err
	}
	if err := gateway.Void(ctx, derefString(txn.GatewayReferenceID)); err != nil {
		if errors.Is(err, provider.ErrDeclined) {
			return nil, s.markFailed(ctx, ops, txn, change, err)
		}
		return nil, err
	}

	txn.UpdatedAt = time.Now().UTC()
	if err := ops.Transactions().Update(ctx, txn); err != nil {
		return nil, err
	}
	if err := s.recordChange(ctx, ops, txn, change); err != nil {
		return nil, err
	}
	return okOutcome(http.StatusOK, txn)
}

func (s *TransactionService) Dispute(ctx context.Context, merchantID, idempotencyKey, transactionID string, body []byte) (int, []byte, error) {
	path := "/transactions/" + transactionID + "/dispute"
	return s.coordinator.Execute(ctx, merchantID, idempotencyKey, http.MethodPost, path, body,
		func(ctx context.Context, ops repository.Store) (*Outcome, error) {
			return s.dispute(ctx, ops, merchantID, transactionID)
		})
}

func (s *TransactionService) dispute(ctx context.Context, ops repository.Store, merchantID, transactionID string) (*Outcome, error) {
	txn, err := s.lockTransaction(ctx, ops, merchantID, transactionID)
	if err != nil {
		return nil, err
	}

	change, err := state.Dispute(txn)
	if err != nil {
		return nil, err
	}

	txn.UpdatedAt = time.Now().UTC()
	if err := ops.Transactions().Update(ctx, txn); err != nil {
		return nil, err
	}
	if err := s.recordChange(ctx, ops, txn, change); err != nil {
		return nil, err
	}
	return okOutcome(http.StatusOK, txn)
}

func (s *TransactionService) Get(ctx context.Context, merchantID, transactionID string) (*entity.Transaction, error) {
	txn, err := s.store.Transactions().FindByID(ctx, merchantID, transactionID)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, ErrTransactionNotFound
	}
	return txn, nil
}

func (s *TransactionService) List(ctx context.Context, request *types.ListTransactionsRequest) ([]*entity.Transaction, error) {
	if err := request.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, err.Error())
	}
	return s.store.Transactions().List(ctx, repository.TransactionFilter{
		MerchantID: request.MerchantID,
		HasStatus:  request.HasStatus,
		Status:     request.Status,
		Limit:      request.Limit,
		Offset:     request.Offset,
	})
}

func (s *TransactionService) ListEvents(ctx context.Context, merchantID, transactionID string) ([]*entity.TransactionEvent, error) {
	if _, err := s.Get(ctx, merchantID, transactionID); err != nil {
		return nil, err
	}
	return s.store.Events().ListByTransaction(ctx, transactionID)
}

func (s *TransactionService) lockTransaction(ctx context.Context, ops repository.Store, merchantID, transactionID string) (*entity.Transaction, error) {
	txn, err := ops.Transactions().FindByIDForUpdate(ctx, merchantID, transactionID)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, ErrTransactionNotFound
	}
	return txn, nil
}

// markFailed records a gateway decline on a mutation: the optimistic
// counter changes are rolled back and the transaction lands in failed.
func (s *TransactionService) markFailed(ctx context.Context, ops repository.Store, txn *entity.Transaction, change state.Change, cause error) error {
	txn.Status = change.OldStatus
	txn.AmountCaptured = change.CapturedBefore
	txn.AmountRefunded = change.RefundedBefore
	failChange := state.Fail(txn)
	reason := cause.Error()
	txn.FailureReason = &reason
	s.logger.WithError(cause).WithField("transaction_id", txn.ID).Warn("Gateway rejected mutation")

	txn.UpdatedAt = time.Now().UTC()
	if err := ops.Transactions().Update(ctx, txn); err != nil {
		return err
	}
	if err := s.recordChange(ctx, ops, txn, failChange); err != nil {
		return err
	}
	return cause
}

// recordChange appends the audit event for a state change and enqueues
// webhook deliveries for every subscribed endpoint, all inside the
// caller's transaction.
func (s *TransactionService) recordChange(ctx context.Context, ops repository.Store, txn *entity.Transaction, change state.Change) error {
	now := time.Now().UTC()
	event := &entity.TransactionEvent{
		TransactionID:        txn.ID,
		EventType:            change.EventType(),
		NewStatus:            change.NewStatus,
		AmountCapturedBefore: change.CapturedBefore,
		AmountCapturedAfter:  change.CapturedAfter,
		AmountRefundedBefore: change.RefundedBefore,
		AmountRefundedAfter:  change.RefundedAfter,
		CreatedAt:            now,
	}
	if change.OldStatus != "" {
		oldStatus := change.OldStatus
		event.OldStatus = &oldStatus
	}
	if err := ops.Events().Create(ctx, event); err != nil {
		return err
	}
	return s.enqueueWebhookEvent(ctx, ops, txn, change.EventType(), now)
}

func (s *TransactionService) enqueueWebhookEvent(ctx context.Context, ops repository.Store, txn *entity.Transaction, eventType string, now time.Time) error {
	configs, err := ops.WebhookConfigs().ListActiveForEvent(ctx, txn.MerchantID, eventType)
	if err != nil {
		return err
	}
	if len(configs) == 0 {
		return nil
	}

	eventID := "evt_" + uuid.NewString()
	payload, err := json.Marshal(&types.WebhookEventPayload{
		EventID:     eventID,
		EventType:   eventType,
		Timestamp:   now.Format(time.RFC3339),
		Transaction: mapper.TransactionToResponse(txn),
	})
	if err != nil {
		return err
	}

	nextAttempt := now
	for _, cfg := range configs {
		delivery := &entity.WebhookDelivery{
			EventID:       eventID,
			MerchantID:    txn.MerchantID,
			EventType:     eventType,
			TransactionID: txn.ID,
			Payload:       payload,
			TargetURL:     cfg.URL,
			Secret:        cfg.Secret,
			Status:        entity.DeliveryStatusPending,
			NextAttemptAt: &nextAttempt,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := ops.Deliveries().Create(ctx, delivery); err != nil {
			return err
		}
	}
	return nil
}

func (s *TransactionService) providerName() string {
	if s.cfg.DefaultProvider != "" {
		return s.cfg.DefaultProvider
	}
	return provider.SandboxProviderName
}

func okOutcome(statusCode int, txn *entity.Transaction) (*Outcome, error) {
	body, err := json.Marshal(&types.TransactionEnvelopeResponse{
		Transaction: mapper.TransactionToResponse(txn),
	})
	if err != nil {
		return nil, err
	}
	return &Outcome{StatusCode: statusCode, Body: body, TransactionID: txn.ID}, nil
}

func normalizeOptionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func cloneMetadata(metadata map[string]string) map[string]string {
	if len(metadata) == 0 {
		return nil
	}
	cloned := make(map[string]string, len(metadata))
	for k, v := range metadata {
		cloned[k] = v
	}
	return cloned
}
