package types

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

type ProcessTransactionRequest struct {
	Amount               int64             `json:"amount"`
	Currency             string            `json:"currency"`
	PaymentMethodType    string            `json:"paymentMethodType"`
	PaymentMethodDetails map[string]string `json:"paymentMethodDetails"`
	CustomerID           string            `json:"customerId"`
	Description          string            `json:"description"`
	Metadata             map[string]string `json:"metadata"`
}

func NewProcessTransactionRequestFromBody(body []byte) (*ProcessTransactionRequest, error) {
	var req ProcessTransactionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}

	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	req.PaymentMethodType = strings.TrimSpace(req.PaymentMethodType)
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	req.Description = strings.TrimSpace(req.Description)

	return &req, nil
}

func (r *ProcessTransactionRequest) Validate() error {
	if r.Amount <= 0 {
		return errors.New("amount must be > 0")
	}
	if len(r.Currency) != 3 {
		return errors.New("currency must be 3 letters")
	}
	if r.PaymentMethodType == "" {
		return errors.New("paymentMethodType is required")
	}
	return nil
}

// AmountRequest covers capture and refund bodies: an optional positive
// amount, where omission means the full remaining amount.
type AmountRequest struct {
	Amount *int64 `json:"amount"`
}

func NewAmountRequestFromBody(body []byte) (*AmountRequest, error) {
	var req AmountRequest
	if len(body) == 0 {
		return &req, nil
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *AmountRequest) Validate() error {
	if r.Amount != nil && *r.Amount <= 0 {
		return errors.New("amount must be > 0 when provided")
	}
	return nil
}

type ListTransactionsRequest struct {
	MerchantID string
	HasStatus  bool
	Status     string
	Limit      int32
	Offset     int32
}

func NewListTransactionsRequestFromContext(ctx echo.Context, merchantID string) (*ListTransactionsRequest, error) {
	req := &ListTransactionsRequest{
		MerchantID: merchantID,
		Limit:      100,
		Offset:     0,
	}

	if statusRaw := strings.TrimSpace(ctx.QueryParam("status")); statusRaw != "" {
		req.HasStatus = true
		req.Status = statusRaw
	}

	if limitRaw := strings.TrimSpace(ctx.QueryParam("limit")); limitRaw != "" {
		limit, err := strconv.ParseInt(limitRaw, 10, 32)
		if err != nil {
			return nil, err
		}
		req.Limit = int32(limit)
	}

	if offsetRaw := strings.TrimSpace(ctx.QueryParam("offset")); offsetRaw != "" {
		offset, err := strconv.ParseInt(offsetRaw, 10, 32)
		if err != nil {
			return nil, err
		}
		req.Offset = int32(offset)
	}

	return req, nil
}

func (r *ListTransactionsRequest) Validate() error {
	if r.Limit <= 0 || r.Limit > 500 {
		return errors.New("limit must be between 1 and 500")
	}
	if r.Offset < 0 {
		return errors.New("offset must be >= 0")
	}
	if r.HasStatus && !isValidStatus(r.Status) {
		return errors.New("invalid status")
	}
	return nil
}

func isValidStatus(status string) bool {
	switch status {
	case "pending", "authorized", "captured", "partially_captured",
		"refunded", "partially_refunded", "voided", "failed", "disputed":
		return true
	default:
		return false
	}
}

type TransactionResponse struct {
	ID                 string            `json:"id"`
	MerchantID         string            `json:"merchantId"`
	Amount             int64             `json:"amount"`
	Currency           string            `json:"currency"`
	Status             string            `json:"status"`
	AmountCaptured     int64             `json:"amountCaptured"`
	AmountRefunded     int64             `json:"amountRefunded"`
	PaymentMethodType  string            `json:"paymentMethodType"`
	CustomerID         string            `json:"customerId,omitempty"`
	Description        string            `json:"description,omitempty"`
	GatewayReferenceID string            `json:"gatewayReferenceId,omitempty"`
	FailureReason      string            `json:"failureReason,omitempty"`
	Metadata           map[string]string `json:"metadata"`
	CreatedAt          string            `json:"createdAt"`
	UpdatedAt          string            `json:"updatedAt"`
}

type TransactionEnvelopeResponse struct {
	Transaction *TransactionResponse `json:"transaction"`
}

type ListTransactionsResponse struct {
	Transactions []*TransactionResponse `json:"transactions"`
}

type TransactionEventResponse struct {
	ID                   uint64 `json:"id"`
	TransactionID        string `json:"transactionId"`
	EventType            string `json:"eventType"`
	OldStatus            string `json:"oldStatus,omitempty"`
	NewStatus            string `json:"newStatus"`
	AmountCapturedBefore int64  `json:"amountCapturedBefore"`
	AmountCapturedAfter  int64  `json:"amountCapturedAfter"`
	AmountRefundedBefore int64  `json:"amountRefundedBefore"`
	AmountRefundedAfter  int64  `json:"amountRefundedAfter"`
	CreatedAt            string `json:"createdAt"`
}

type ListTransactionEventsResponse struct {
	Events []*TransactionEventResponse `json:"events"`
}

// WebhookEventPayload is the body POSTed to merchant endpoints. The
// eventId stays stable across redeliveries so receivers can deduplicate.
type WebhookEventPayload struct {
	EventID     string               `json:"eventId"`
	EventType   string               `json:"eventType"`
	Timestamp   string               `json:"timestamp"`
	Transaction *TransactionResponse `json:"transaction"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
