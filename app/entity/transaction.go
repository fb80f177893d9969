package entity

import "time"

type Transaction struct {
	ID string

	MerchantID string

	Amount   int64
	Currency string

	Status string

	AmountCaptured int64
	AmountRefunded int64

	PaymentMethodType string

	CustomerRef *string
	Description *string

	GatewayReferenceID *string
	IdempotencyKey     *string
	FailureReason      *string

	Metadata map[string]string

	CreatedAt time.Time
	UpdatedAt time.Time
}
