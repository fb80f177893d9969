package provider

import "context"

type AuthorizeInput struct {
	TransactionID string
	MerchantID    string
	Amount        int64
	Currency      string

	PaymentMethodType    string
	PaymentMethodDetails map[string]string

	Metadata map[string]string
}

type AuthorizeOutput struct {
	GatewayReferenceID string
}

// Provider is the boundary to an external payment gateway. Amounts are
// integers in minor currency units throughout.
type Provider interface {
	Name() string
	Authorize(ctx context.Context, input *AuthorizeInput) (*AuthorizeOutput, error)
	Capture(ctx context.Context, gatewayReferenceID string, amount int64) error
	Refund(ctx context.Context, gatewayReferenceID string, amount int64) error
	Void(ctx context.Context, gatewayReferenceID string) error
}
