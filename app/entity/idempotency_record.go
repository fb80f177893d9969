package entity

import "time"

// IdempotencyRecord is immutable once written: it is inserted in the same
// database transaction as the state mutation it memoizes, and only ever
// removed by expiry-driven purges.
type IdempotencyRecord struct {
	ID uint64

	Key        string
	MerchantID string

	RequestHash string

	ResponseStatusCode int
	ResponseBody       []byte

	TransactionID *string

	CreatedAt time.Time
	ExpiresAt time.Time
}
