package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var ErrDeclined = errors.New("gateway declined")

const (
	SandboxProviderName = "sandbox"

	outcomeDetailKey = "outcome"
	outcomeDeclined  = "declined"
	outcomeFailure   = "failure"

	failRefPrefix = "gw_fail_"
)

// SandboxProvider is a deterministic stand-in for a real gateway. The
// outcome is driven by the payment method details so integration
// environments can exercise decline paths on demand: outcome=declined
// rejects the authorization, outcome=failure authorizes but fails every
// later capture/refund/void on that reference.
type SandboxProvider struct{}

func NewSandboxProvider() *SandboxProvider {
	return &SandboxProvider{}
}

func (p *SandboxProvider) Name() string {
	return SandboxProviderName
}

func (p *SandboxProvider) Authorize(_ context.Context, input *AuthorizeInput) (*AuthorizeOutput, error) {
	switch input.PaymentMethodDetails[outcomeDetailKey] {
	case outcomeDeclined:
		return nil, fmt.Errorf("%w: insufficient funds or card declined", ErrDeclined)
	case outcomeFailure:
		return &AuthorizeOutput{GatewayReferenceID: failRefPrefix + uuid.NewString()}, nil
	}
	return &AuthorizeOutput{GatewayReferenceID: "gw_auth_" + uuid.NewString()}, nil
}

func (p *SandboxProvider) Capture(_ context.Context, gatewayReferenceID string, _ int64) error {
	if strings.HasPrefix(gatewayReferenceID, failRefPrefix) {
		return fmt.Errorf("%w: transaction expired or funds unavailable", ErrDeclined)
	}
	if gatewayReferenceID == "" {
		return fmt.Errorf("%w: unknown gateway reference", ErrDeclined)
	}
	return nil
}

func (p *SandboxProvider) Refund(_ context.Context, gatewayReferenceID string, _ int64) error {
	if strings.HasPrefix(gatewayReferenceID, failRefPrefix) {
		return fmt.Errorf("%w: cannot refund this transaction", ErrDeclined)
	}
	if gatewayReferenceID == "" {
		return fmt.Errorf("%w: unknown gateway reference", ErrDeclined)
	}
	return nil
}

func (p *SandboxProvider) Void(_ context.Context, gatewayReferenceID string) error {
	if strings.HasPrefix(gatewayReferenceID, failRefPrefix) {
		return fmt.Errorf("%w: authorization no longer voidable", ErrDeclined)
	}
	if gatewayReferenceID == "" {
		return fmt.Errorf("%w: unknown gateway reference", ErrDeclined)
	}
	return nil
}
