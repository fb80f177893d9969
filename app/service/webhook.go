package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-transactions/app/entity"
	"github.com/vibast-solutions/ms-go-transactions/app/factory"
	"github.com/vibast-solutions/ms-go-transactions/app/repository"
	"github.com/vibast-solutions/ms-go-transactions/config"
)

const (
	defaultMaxAttempts  = int32(8)
	defaultHTTPTimeout  = 10 * time.Second
	defaultJobBatchSize = int32(100)
	maxStoredErrorLen   = 1024
)

// backoffSchedule spaces out redelivery attempts; deliveries past the
// schedule reuse the last interval until attempts run out.
var backoffSchedule = []time.Duration{
	1 * time.Minute,
	5 * time.Minute,
	30 * time.Minute,
	2 * time.Hour,
	6 * time.Hour,
}

// WebhookService drains pending webhook deliveries and posts them to
// merchant endpoints with an HMAC signature. Delivery is at-least-once:
// a delivery that fails mid-flight stays pending and is retried.
type WebhookService struct {
	store      repository.Store
	cfg        config.WebhooksConfig
	httpClient *http.Client
	logger     logrus.FieldLogger
}

func NewWebhookService(store repository.Store, cfg config.WebhooksConfig) *WebhookService {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &WebhookService{
		store:      store,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     factory.NewModuleLogger("webhook-service"),
	}
}

// RunDispatchBatch attempts every delivery that is due. One failing
// delivery does not block the rest of the batch.
func (s *WebhookService) RunDispatchBatch(ctx context.Context) error {
	due, err := s.store.Deliveries().ListDue(ctx, time.Now().UTC(), s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, delivery := range due {
		if err := s.dispatch(ctx, delivery); err != nil {
			s.logger.WithError(err).WithField("delivery_id", delivery.ID).Error("Failed to update webhook delivery")
			firstErr = keepFirstErr(firstErr, err)
		}
	}
	return firstErr
}

func (s *WebhookService) dispatch(ctx context.Context, delivery *entity.WebhookDelivery) error {
	attemptErr := s.attempt(ctx, delivery)

	now := time.Now().UTC()
	delivery.AttemptCount++
	delivery.UpdatedAt = now

	if attemptErr == nil {
		delivery.Status = entity.DeliveryStatusDelivered
		delivery.NextAttemptAt = nil
		delivery.LastError = nil
		return s.store.Deliveries().Update(ctx, delivery)
	}

	lastError := truncate(attemptErr.Error(), maxStoredErrorLen)
	delivery.LastError = &lastError

	if delivery.AttemptCount >= s.maxAttempts() {
		delivery.Status = entity.DeliveryStatusFailed
		delivery.NextAttemptAt = nil
		s.logger.WithFields(logrus.Fields{
			"delivery_id": delivery.ID,
			"event_id":    delivery.EventID,
			"merchant_id": delivery.MerchantID,
			"attempts":    delivery.AttemptCount,
		}).Error("Webhook delivery permanently failed")
	} else {
		nextAttempt := now.Add(backoffDelay(delivery.AttemptCount))
		delivery.NextAttemptAt = &nextAttempt
		s.logger.WithError(attemptErr).WithFields(logrus.Fields{
			"delivery_id":     delivery.ID,
			"event_id":        delivery.EventID,
			"attempts":        delivery.AttemptCount,
			"next_attempt_at": nextAttempt.Format(time.RFC3339),
		}).Warn("Webhook delivery attempt failed")
	}
	return s.store.Deliveries().Update(ctx, delivery)
}

func (s *WebhookService) attempt(ctx context.Context, delivery *entity.WebhookDelivery) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, delivery.TargetURL, bytes.NewReader(delivery.Payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Event-Id", delivery.EventID)
	req.Header.Set("X-Webhook-Signature", SignPayload(delivery.Payload, delivery.Secret))

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("endpoint responded with status %d", resp.StatusCode)
	}
	return nil
}

// SignPayload computes the hex HMAC-SHA256 signature receivers use to
// verify the payload.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func backoffDelay(attemptCount int32) time.Duration {
	idx := int(attemptCount) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(backoffSchedule) {
		idx = len(backoffSchedule) - 1
	}
	return backoffSchedule[idx]
}

func (s *WebhookService) maxAttempts() int32 {
	if s.cfg.MaxAttempts > 0 {
		return s.cfg.MaxAttempts
	}
	return defaultMaxAttempts
}

func (s *WebhookService) batchSize() int32 {
	if s.cfg.JobBatchSize > 0 {
		return s.cfg.JobBatchSize
	}
	return defaultJobBatchSize
}
