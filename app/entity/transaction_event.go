package entity

import "time"

type TransactionEvent struct {
	ID uint64

	TransactionID string

	EventType string

	OldStatus *string
	NewStatus string

	AmountCapturedBefore int64
	AmountCapturedAfter  int64
	AmountRefundedBefore int64
	AmountRefundedAfter  int64

	CreatedAt time.Time
}
