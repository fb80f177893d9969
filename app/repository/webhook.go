package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vibast-solutions/ms-go-transactions/app/entity"
)

var ErrDeliveryNotFound = errors.New("webhook delivery not found")

type WebhookConfigRepository struct {
	db DBTX
}

func NewWebhookConfigRepository(db DBTX) *WebhookConfigRepository {
	return &WebhookConfigRepository{db: db}
}

// ListActiveForEvent returns the merchant's active endpoints subscribed
// to eventType. Subscriptions are stored as a JSON array, so filtering
// happens after the scan.
func (r *WebhookConfigRepository) ListActiveForEvent(ctx context.Context, merchantID, eventType string) ([]*entity.WebhookConfig, error) {
	query := `
		SELECT id, merchant_id, url, secret, is_active, events_json, created_at, updated_at
		FROM webhook_configs
		WHERE merchant_id = ? AND is_active = 1
	`

	rows, err := r.db.QueryContext(ctx, query, merchantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	configs := make([]*entity.WebhookConfig, 0)
	for rows.Next() {
		config := &entity.WebhookConfig{}
		var eventsJSON string
		if err := rows.Scan(
			&config.ID,
			&config.MerchantID,
			&config.URL,
			&config.Secret,
			&config.IsActive,
			&eventsJSON,
			&config.CreatedAt,
			&config.UpdatedAt,
		); err != nil {
			return nil, err
		}
		events, err := parseEvents(eventsJSON)
		if err != nil {
			return nil, err
		}
		config.Events = events

		if subscribed(config.Events, eventType) {
			configs = append(configs, config)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return configs, nil
}

func subscribed(events []string, eventType string) bool {
	for _, e := range events {
		if e == eventType || e == "*" {
			return true
		}
	}
	return false
}

type WebhookDeliveryRepository struct {
	db DBTX
}

func NewWebhookDeliveryRepository(db DBTX) *WebhookDeliveryRepository {
	return &WebhookDeliveryRepository{db: db}
}

func (r *WebhookDeliveryRepository) Create(ctx context.Context, delivery *entity.WebhookDelivery) error {
	query := `
		INSERT INTO webhook_deliveries (
			event_id, merchant_id, event_type, transaction_id,
			payload, target_url, secret, status,
			attempt_count, next_attempt_at, last_error,
			created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		delivery.EventID,
		delivery.MerchantID,
		delivery.EventType,
		delivery.TransactionID,
		delivery.Payload,
		delivery.TargetURL,
		delivery.Secret,
		delivery.Status,
		delivery.AttemptCount,
		nullableTimeValue(delivery.NextAttemptAt),
		nullableStringValue(delivery.LastError),
		delivery.CreatedAt,
		delivery.UpdatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	delivery.ID = uint64(id)
	return nil
}

func (r *WebhookDeliveryRepository) Update(ctx context.Context, delivery *entity.WebhookDelivery) error {
	query := `
		UPDATE webhook_deliveries SET
			status = ?,
			attempt_count = ?,
			next_attempt_at = ?,
			last_error = ?,
			updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		delivery.Status,
		delivery.AttemptCount,
		nullableTimeValue(delivery.NextAttemptAt),
		nullableStringValue(delivery.LastError),
		delivery.UpdatedAt,
		delivery.ID,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrDeliveryNotFound
	}
	return nil
}

func (r *WebhookDeliveryRepository) ListDue(ctx context.Context, now time.Time, limit int32) ([]*entity.WebhookDelivery, error) {
	query := `
		SELECT id, event_id, merchant_id, event_type, transaction_id,
			payload, target_url, secret, status,
			attempt_count, next_attempt_at, last_error,
			created_at, updated_at
		FROM webhook_deliveries
		WHERE status = ?
		  AND next_attempt_at IS NOT NULL
		  AND next_attempt_at <= ?
		ORDER BY next_attempt_at ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, entity.DeliveryStatusPending, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	deliveries := make([]*entity.WebhookDelivery, 0)
	for rows.Next() {
		delivery := &entity.WebhookDelivery{}
		var nextAttemptAt sql.NullTime
		var lastError sql.NullString
		if err := rows.Scan(
			&delivery.ID,
			&delivery.EventID,
			&delivery.MerchantID,
			&delivery.EventType,
			&delivery.TransactionID,
			&delivery.Payload,
			&delivery.TargetURL,
			&delivery.Secret,
			&delivery.Status,
			&delivery.AttemptCount,
			&nextAttemptAt,
			&lastError,
			&delivery.CreatedAt,
			&delivery.UpdatedAt,
		); err != nil {
			return nil, err
		}
		delivery.NextAttemptAt = timePtrFromNull(nextAttemptAt)
		delivery.LastError = stringPtrFromNull(lastError)
		deliveries = append(deliveries, delivery)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return deliveries, nil
}
