package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-transactions/app/entity"
	"github.com/vibast-solutions/ms-go-transactions/app/factory"
	"github.com/vibast-solutions/ms-go-transactions/app/locker"
	"github.com/vibast-solutions/ms-go-transactions/app/repository"
	"github.com/vibast-solutions/ms-go-transactions/config"
)

const (
	defaultRetentionTTL   = 24 * time.Hour
	defaultLockTTL        = 30 * time.Second
	defaultPurgeBatchSize = int32(500)
)

type singleFlightLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (locker.Lease, error)
}

// Outcome is what a coordinated handler produced on success: the exact
// bytes that will be returned now and replayed on retries.
type Outcome struct {
	StatusCode    int
	Body          []byte
	TransactionID string
}

// HandlerFunc runs inside the coordinator's database transaction. Writes
// made through ops commit together with the idempotency record, or not
// at all. A returned domain error still commits: the handler is
// responsible for leaving consistent state behind it (e.g. a declined
// authorization recorded as failed). Internal errors roll everything
// back.
type HandlerFunc func(ctx context.Context, ops repository.Store) (*Outcome, error)

// Coordinator wraps mutating requests with idempotency-key enforcement
// and single-flight execution per (merchant, key).
type Coordinator struct {
	store  repository.Store
	locker singleFlightLocker
	cfg    config.IdempotencyConfig
	logger logrus.FieldLogger
}

func NewCoordinator(store repository.Store, flightLocker singleFlightLocker, cfg config.IdempotencyConfig) *Coordinator {
	return &Coordinator{
		store:  store,
		locker: flightLocker,
		cfg:    cfg,
		logger: factory.NewModuleLogger("idempotency-coordinator"),
	}
}

func (c *Coordinator) Execute(
	ctx context.Context,
	merchantID, idempotencyKey, method, path string,
	body []byte,
	fn HandlerFunc,
) (int, []byte, error) {
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey == "" {
		return renderError(fmt.Errorf("%w: x-idempotency-key header is required", ErrInvalidRequest))
	}
	if _, err := uuid.Parse(idempotencyKey); err != nil {
		return renderError(fmt.Errorf("%w: x-idempotency-key must be a UUID", ErrInvalidRequest))
	}

	requestHash := hashRequest(method, path, body)

	record, err := c.store.Idempotency().Find(ctx, merchantID, idempotencyKey)
	if err != nil {
		return 0, nil, err
	}
	if record != nil {
		return c.replay(record, requestHash)
	}

	lease, err := c.locker.Acquire(ctx, merchantID+":"+idempotencyKey, c.lockTTL())
	if errors.Is(err, locker.ErrLockHeld) {
		// The first flight may have finished between our ledger read and
		// the lock attempt; re-check before rejecting.
		record, findErr := c.store.Idempotency().Find(ctx, merchantID, idempotencyKey)
		if findErr == nil && record != nil {
			return c.replay(record, requestHash)
		}
		return renderError(ErrRequestInProgress)
	}
	if err != nil {
		return 0, nil, err
	}
	defer func() {
		if releaseErr := lease.Release(ctx); releaseErr != nil {
			c.logger.WithError(releaseErr).WithField("idempotency_key", idempotencyKey).Warn("Failed to release idempotency lock")
		}
	}()

	var lastErr error
	for attempt := 0; attempt <= c.storageRetries(); attempt++ {
		statusCode, respBody, execErr := c.executeOnce(ctx, merchantID, idempotencyKey, requestHash, fn)
		if execErr == nil {
			return statusCode, respBody, nil
		}
		if errors.Is(execErr, repository.ErrIdempotencyRecordExists) {
			// Lost a race despite the lock (e.g. a lock that expired
			// under a slow first flight). The stored response wins.
			record, findErr := c.store.Idempotency().Find(ctx, merchantID, idempotencyKey)
			if findErr == nil && record != nil {
				return c.replay(record, requestHash)
			}
			return 0, nil, execErr
		}
		lastErr = execErr
		c.logger.WithError(execErr).WithField("idempotency_key", idempotencyKey).WithField("attempt", attempt+1).Warn("Idempotent execution failed")
	}
	return 0, nil, lastErr
}

func (c *Coordinator) executeOnce(
	ctx context.Context,
	merchantID, idempotencyKey, requestHash string,
	fn HandlerFunc,
) (int, []byte, error) {
	var statusCode int
	var respBody []byte
	var transactionID *string

	now := time.Now().UTC()
	err := c.store.Atomic(ctx, func(ops repository.Store) error {
		outcome, handlerErr := fn(ctx, ops)
		if handlerErr != nil {
			st, resp, domain := errorResponse(handlerErr)
			if !domain {
				return handlerErr
			}
			payload, marshalErr := json.Marshal(resp)
			if marshalErr != nil {
				return marshalErr
			}
			statusCode, respBody = st, payload
		} else {
			statusCode, respBody = outcome.StatusCode, outcome.Body
			if outcome.TransactionID != "" {
				id := outcome.TransactionID
				transactionID = &id
			}
		}

		return ops.Idempotency().Create(ctx, &entity.IdempotencyRecord{
			Key:                idempotencyKey,
			MerchantID:         merchantID,
			RequestHash:        requestHash,
			ResponseStatusCode: statusCode,
			ResponseBody:       respBody,
			TransactionID:      transactionID,
			CreatedAt:          now,
			ExpiresAt:          now.Add(c.retentionTTL()),
		})
	})
	return statusCode, respBody, err
}

func (c *Coordinator) replay(record *entity.IdempotencyRecord, requestHash string) (int, []byte, error) {
	if record.RequestHash != requestHash {
		return renderError(ErrIdempotencyConflict)
	}
	return record.ResponseStatusCode, record.ResponseBody, nil
}

// RunPurgeBatch deletes expired idempotency records so their keys become
// reusable.
func (c *Coordinator) RunPurgeBatch(ctx context.Context) error {
	deleted, err := c.store.Idempotency().DeleteExpired(ctx, time.Now().UTC(), c.purgeBatchSize())
	if err != nil {
		return err
	}
	if deleted > 0 {
		c.logger.WithField("deleted", deleted).Info("Purged expired idempotency records")
	}
	return nil
}

func (c *Coordinator) retentionTTL() time.Duration {
	if c.cfg.RetentionTTL > 0 {
		return c.cfg.RetentionTTL
	}
	return defaultRetentionTTL
}

func (c *Coordinator) lockTTL() time.Duration {
	if c.cfg.LockTTL > 0 {
		return c.cfg.LockTTL
	}
	return defaultLockTTL
}

func (c *Coordinator) storageRetries() int {
	if c.cfg.StorageRetries > 0 {
		return c.cfg.StorageRetries
	}
	return 0
}

func (c *Coordinator) purgeBatchSize() int32 {
	if c.cfg.PurgeBatchSize > 0 {
		return c.cfg.PurgeBatchSize
	}
	return defaultPurgeBatchSize
}

func renderError(err error) (int, []byte, error) {
	statusCode, resp, ok := errorResponse(err)
	if !ok {
		return 0, nil, err
	}
	payload, marshalErr := json.Marshal(resp)
	if marshalErr != nil {
		return 0, nil, marshalErr
	}
	return statusCode, payload, nil
}

func hashRequest(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{'\n'})
	h.Write([]byte(path))
	h.Write([]byte{'\n'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
