package mapper

import (
	"time"

	"github.com/vibast-solutions/ms-go-transactions/app/entity"
	"github.com/vibast-solutions/ms-go-transactions/app/types"
)

func TransactionToResponse(item *entity.Transaction) *types.TransactionResponse {
	if item == nil {
		return nil
	}

	return &types.TransactionResponse{
		ID:                 item.ID,
		MerchantID:         item.MerchantID,
		Amount:             item.Amount,
		Currency:           item.Currency,
		Status:             item.Status,
		AmountCaptured:     item.AmountCaptured,
		AmountRefunded:     item.AmountRefunded,
		PaymentMethodType:  item.PaymentMethodType,
		CustomerID:         derefString(item.CustomerRef),
		Description:        derefString(item.Description),
		GatewayReferenceID: derefString(item.GatewayReferenceID),
		FailureReason:      derefString(item.FailureReason),
		Metadata:           cloneMetadata(item.Metadata),
		CreatedAt:          item.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:          item.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func TransactionsToResponse(items []*entity.Transaction) []*types.TransactionResponse {
	result := make([]*types.TransactionResponse, 0, len(items))
	for _, item := range items {
		result = append(result, TransactionToResponse(item))
	}
	return result
}

func EventToResponse(item *entity.TransactionEvent) *types.TransactionEventResponse {
	if item == nil {
		return nil
	}

	return &types.TransactionEventResponse{
		ID:                   item.ID,
		TransactionID:        item.TransactionID,
		EventType:            item.EventType,
		OldStatus:            derefString(item.OldStatus),
		NewStatus:            item.NewStatus,
		AmountCapturedBefore: item.AmountCapturedBefore,
		AmountCapturedAfter:  item.AmountCapturedAfter,
		AmountRefundedBefore: item.AmountRefundedBefore,
		AmountRefundedAfter:  item.AmountRefundedAfter,
		CreatedAt:            item.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func EventsToResponse(items []*entity.TransactionEvent) []*types.TransactionEventResponse {
	result := make([]*types.TransactionEventResponse, 0, len(items))
	for _, item := range items {
		result = append(result, EventToResponse(item))
	}
	return result
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func cloneMetadata(src map[string]string) map[string]string {
	if len(src) == 0 {
		return map[string]string{}
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
