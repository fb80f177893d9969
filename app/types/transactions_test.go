package types

import (
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestProcessTransactionRequestValidate(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"amount":10000,"currency":"usd","paymentMethodType":"card"}`, false},
		{"zero amount", `{"amount":0,"currency":"USD","paymentMethodType":"card"}`, true},
		{"negative amount", `{"amount":-100,"currency":"USD","paymentMethodType":"card"}`, true},
		{"bad currency", `{"amount":100,"currency":"DOLLARS","paymentMethodType":"card"}`, true},
		{"missing payment method", `{"amount":100,"currency":"USD"}`, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := NewProcessTransactionRequestFromBody([]byte(tc.body))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if err := req.Validate(); (err != nil) != tc.wantErr {
				t.Fatalf("wantErr=%v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestProcessTransactionRequestNormalizesCurrency(t *testing.T) {
	req, err := NewProcessTransactionRequestFromBody([]byte(`{"amount":100,"currency":" usd ","paymentMethodType":"card"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.Currency != "USD" {
		t.Fatalf("expected USD, got %q", req.Currency)
	}
}

func TestProcessTransactionRequestMalformedJSON(t *testing.T) {
	if _, err := NewProcessTransactionRequestFromBody([]byte(`{"amount":`)); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestAmountRequestEmptyBodyMeansFullAmount(t *testing.T) {
	req, err := NewAmountRequestFromBody(nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.Amount != nil {
		t.Fatal("expected no explicit amount")
	}
	if err := req.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestAmountRequestRejectsNonPositiveAmount(t *testing.T) {
	req, err := NewAmountRequestFromBody([]byte(`{"amount":0}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := req.Validate(); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestListTransactionsRequestFromContext(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("GET", "/transactions?status=captured&limit=50&offset=10", nil)
	ctx := e.NewContext(req, httptest.NewRecorder())

	parsed, err := NewListTransactionsRequestFromContext(ctx, "merchant_1")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := parsed.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if parsed.MerchantID != "merchant_1" || !parsed.HasStatus || parsed.Status != "captured" {
		t.Fatalf("unexpected request: %+v", parsed)
	}
	if parsed.Limit != 50 || parsed.Offset != 10 {
		t.Fatalf("unexpected paging: %+v", parsed)
	}
}

func TestListTransactionsRequestValidate(t *testing.T) {
	cases := []struct {
		name    string
		req     ListTransactionsRequest
		wantErr bool
	}{
		{"defaults", ListTransactionsRequest{MerchantID: "m", Limit: 100}, false},
		{"limit too high", ListTransactionsRequest{MerchantID: "m", Limit: 501}, true},
		{"zero limit", ListTransactionsRequest{MerchantID: "m"}, true},
		{"negative offset", ListTransactionsRequest{MerchantID: "m", Limit: 10, Offset: -1}, true},
		{"bad status", ListTransactionsRequest{MerchantID: "m", Limit: 10, HasStatus: true, Status: "unknown"}, true},
		{"good status", ListTransactionsRequest{MerchantID: "m", Limit: 10, HasStatus: true, Status: "partially_refunded"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.req.Validate(); (err != nil) != tc.wantErr {
				t.Fatalf("wantErr=%v, got %v", tc.wantErr, err)
			}
		})
	}
}
