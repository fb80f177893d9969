package entity

import "time"

const (
	DeliveryStatusPending   int32 = 1
	DeliveryStatusDelivered int32 = 10
	DeliveryStatusFailed    int32 = 20
)

// WebhookConfig is owned by merchant configuration; this service only
// reads it when fanning out transaction events.
type WebhookConfig struct {
	ID uint64

	MerchantID string

	URL    string
	Secret string

	IsActive bool
	Events   []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// WebhookDelivery is an outbox row: created in the same database
// transaction as the state transition that produced it, drained by the
// dispatch workers.
type WebhookDelivery struct {
	ID uint64

	EventID    string
	MerchantID string

	EventType     string
	TransactionID string

	Payload   []byte
	TargetURL string
	Secret    string

	Status        int32
	AttemptCount  int32
	NextAttemptAt *time.Time
	LastError     *string

	CreatedAt time.Time
	UpdatedAt time.Time
}
