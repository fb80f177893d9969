package controller

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-transactions/app/factory"
	"github.com/vibast-solutions/ms-go-transactions/app/mapper"
	"github.com/vibast-solutions/ms-go-transactions/app/service"
	"github.com/vibast-solutions/ms-go-transactions/app/types"
)

const (
	HeaderMerchantID     = "X-Merchant-ID"
	HeaderIdempotencyKey = "X-Idempotency-Key"
)

type TransactionController struct {
	transactionService *service.TransactionService
	logger             logrus.FieldLogger
}

func NewTransactionController(transactionService *service.TransactionService) *TransactionController {
	return &TransactionController{
		transactionService: transactionService,
		logger:             factory.NewModuleLogger("transaction-controller"),
	}
}

func (c *TransactionController) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, &types.HealthResponse{Status: "ok"})
}

func (c *TransactionController) ProcessTransaction(ctx echo.Context) error {
	merchantID, idempotencyKey, body, err := c.readMutationRequest(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body", "validation_error")
	}

	status, respBody, err := c.transactionService.Process(ctx.Request().Context(), merchantID, idempotencyKey, body)
	if err != nil {
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Process transaction failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error", "internal_error")
	}
	return ctx.JSONBlob(status, respBody)
}

func (c *TransactionController) CaptureTransaction(ctx echo.Context) error {
	return c.mutate(ctx, "Capture transaction failed", c.transactionService.Capture)
}

func (c *TransactionController) RefundTransaction(ctx echo.Context) error {
	return c.mutate(ctx, "Refund transaction failed", c.transactionService.Refund)
}

func (c *TransactionController) VoidTransaction(ctx echo.Context) error {
	return c.mutate(ctx, "Void transaction failed", c.transactionService.Void)
}

func (c *TransactionController) DisputeTransaction(ctx echo.Context) error {
	return c.mutate(ctx, "Dispute transaction failed", c.transactionService.Dispute)
}

func (c *TransactionController) GetTransaction(ctx echo.Context) error {
	merchantID := ctx.Request().Header.Get(HeaderMerchantID)
	item, err := c.transactionService.Get(ctx.Request().Context(), merchantID, ctx.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrTransactionNotFound) {
			return c.writeError(ctx, http.StatusNotFound, "transaction not found", "not_found")
		}
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("Get transaction failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error", "internal_error")
	}
	return ctx.JSON(http.StatusOK, &types.TransactionEnvelopeResponse{Transaction: mapper.TransactionToResponse(item)})
}

func (c *TransactionController) ListTransactions(ctx echo.Context) error {
	merchantID := ctx.Request().Header.Get(HeaderMerchantID)
	req, err := types.NewListTransactionsRequestFromContext(ctx, merchantID)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request", "validation_error")
	}

	items, err := c.transactionService.List(ctx.Request().Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			return c.writeError(ctx, http.StatusBadRequest, err.Error(), "validation_error")
		}
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("List transactions failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error", "internal_error")
	}
	return ctx.JSON(http.StatusOK, &types.ListTransactionsResponse{Transactions: mapper.TransactionsToResponse(items)})
}

func (c *TransactionController) ListTransactionEvents(ctx echo.Context) error {
	merchantID := ctx.Request().Header.Get(HeaderMerchantID)
	items, err := c.transactionService.ListEvents(ctx.Request().Context(), merchantID, ctx.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrTransactionNotFound) {
			return c.writeError(ctx, http.StatusNotFound, "transaction not found", "not_found")
		}
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error("List transaction events failed")
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error", "internal_error")
	}
	return ctx.JSON(http.StatusOK, &types.ListTransactionEventsResponse{Events: mapper.EventsToResponse(items)})
}

type mutationFunc func(ctx context.Context, merchantID, idempotencyKey, transactionID string, body []byte) (int, []byte, error)

func (c *TransactionController) mutate(ctx echo.Context, failureMessage string, fn mutationFunc) error {
	merchantID, idempotencyKey, body, err := c.readMutationRequest(ctx)
	if err != nil {
		return c.writeError(ctx, http.StatusBadRequest, "invalid request body", "validation_error")
	}

	status, respBody, err := fn(ctx.Request().Context(), merchantID, idempotencyKey, ctx.Param("id"), body)
	if err != nil {
		factory.LoggerWithContext(c.logger, ctx).WithError(err).Error(failureMessage)
		return c.writeError(ctx, http.StatusInternalServerError, "internal server error", "internal_error")
	}
	return ctx.JSONBlob(status, respBody)
}

func (c *TransactionController) readMutationRequest(ctx echo.Context) (merchantID, idempotencyKey string, body []byte, err error) {
	merchantID = ctx.Request().Header.Get(HeaderMerchantID)
	idempotencyKey = ctx.Request().Header.Get(HeaderIdempotencyKey)
	body, err = io.ReadAll(ctx.Request().Body)
	return merchantID, idempotencyKey, body, err
}

func (c *TransactionController) writeError(ctx echo.Context, statusCode int, message, code string) error {
	return ctx.JSON(statusCode, &types.ErrorResponse{Error: message, Code: code})
}
