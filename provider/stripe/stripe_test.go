package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mstgnz/academypay/provider"
)

const testWebhookSecret = "whsec_test_secret"

func testConfig() provider.GatewayConfig {
	return provider.GatewayConfig{
		TenantID: "academy-c",
		Gateway:  Name,
		Enabled:  true,
		Credentials: map[string]string{
			"secretKey":     "sk_test_123456789",
			"webhookSecret": testWebhookSecret,
		},
	}
}

func newTestDriver(t *testing.T, baseURL string) *Driver {
	t.Helper()
	d, err := NewFactory(Options{BaseURL: baseURL, Timeout: 2 * time.Second}).New(testConfig())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return d.(*Driver)
}

func signHeader(payload []byte, secret string, ts int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, string(payload))))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func intentEvent(eventType, status string, amount, received int64) []byte {
	return []byte(fmt.Sprintf(`{
  "id": "evt_test_1",
  "object": "event",
  "type": %q,
  "api_version": "2020-08-27",
  "created": 1700000000,
  "data": {
    "object": {
      "id": "pi_test_123",
      "object": "payment_intent",
      "status": %q,
      "amount": %d,
      "amount_received": %d,
      "currency": "usd",
      "latest_charge": "ch_test_9"
    }
  }
}`, eventType, status, amount, received))
}

func TestFactory_RequiredConfig(t *testing.T) {
	fields := NewFactory(Options{}).RequiredConfig()

	expected := map[string]bool{"secretKey": true, "webhookSecret": true, "publishableKey": false}
	if len(fields) != len(expected) {
		t.Fatalf("RequiredConfig() returned %d fields, want %d", len(fields), len(expected))
	}
	for _, field := range fields {
		required, ok := expected[field.Key]
		if !ok {
			t.Errorf("unexpected field %s", field.Key)
			continue
		}
		if field.Required != required {
			t.Errorf("field %s Required = %v, want %v", field.Key, field.Required, required)
		}
	}
}

func TestFactory_New(t *testing.T) {
	tests := []struct {
		name        string
		credentials map[string]string
		expectError bool
	}{
		{"valid", map[string]string{"secretKey": "sk_test_1", "webhookSecret": "whsec_1"}, false},
		{"missing secret key", map[string]string{"webhookSecret": "whsec_1"}, true},
		{"missing webhook secret", map[string]string{"secretKey": "sk_test_1"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFactory(Options{}).New(provider.GatewayConfig{Gateway: Name, Credentials: tt.credentials})
			if (err != nil) != tt.expectError {
				t.Errorf("New() error = %v, expectError %v", err, tt.expectError)
			}
		})
	}
}

func TestVerifySignature(t *testing.T) {
	payload := intentEvent(eventSucceeded, statusSucceeded, 2500, 2500)
	now := time.Now().Unix()

	tests := []struct {
		name   string
		header string
		secret string
		want   bool
	}{
		{"valid", signHeader(payload, testWebhookSecret, now), testWebhookSecret, true},
		{"wrong secret", signHeader(payload, "whsec_other", now), testWebhookSecret, false},
		{"stale timestamp", signHeader(payload, testWebhookSecret, now-3600), testWebhookSecret, false},
		{"empty header", "", testWebhookSecret, false},
		{"garbage header", "not-a-signature", testWebhookSecret, false},
		{"empty secret", signHeader(payload, "", now), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifySignature(payload, tt.header, tt.secret); got != tt.want {
				t.Errorf("VerifySignature() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDriver_VerifyCallback(t *testing.T) {
	d := newTestDriver(t, "http://127.0.0.1:1")
	payload := intentEvent(eventSucceeded, statusSucceeded, 2500, 2500)

	verdict, err := d.VerifyCallback(context.Background(), provider.CallbackEvent{
		Gateway: Name,
		RawBody: payload,
		Headers: map[string]string{"stripe-signature": signHeader(payload, testWebhookSecret, time.Now().Unix())},
	})
	if err != nil {
		t.Fatalf("VerifyCallback() error = %v", err)
	}
	if !verdict.Authentic {
		t.Fatal("expected authentic verdict")
	}
	if verdict.TargetStatus != provider.StatusSucceeded {
		t.Errorf("TargetStatus = %s, want succeeded", verdict.TargetStatus)
	}
	if verdict.GatewayReference != "pi_test_123" {
		t.Errorf("GatewayReference = %s", verdict.GatewayReference)
	}
	if verdict.GatewayTransactionID != "ch_test_9" {
		t.Errorf("GatewayTransactionID = %s", verdict.GatewayTransactionID)
	}
	if !verdict.AmountConfirmed.Equal(provider.NewMoney(2500, "USD")) {
		t.Errorf("AmountConfirmed = %s", verdict.AmountConfirmed)
	}

	tampered := []byte(strings.Replace(string(payload), "2500", "25", 1))
	verdict, err = d.VerifyCallback(context.Background(), provider.CallbackEvent{
		Gateway: Name,
		RawBody: tampered,
		Headers: map[string]string{"Stripe-Signature": signHeader(payload, testWebhookSecret, time.Now().Unix())},
	})
	if err != nil {
		t.Fatalf("VerifyCallback() error = %v", err)
	}
	if verdict.Authentic {
		t.Error("tampered payload must not be authentic")
	}
}

func TestFactory_CallbackReference(t *testing.T) {
	f := NewFactory(Options{})

	ref, err := f.CallbackReference(provider.CallbackEvent{RawBody: intentEvent(eventProcessing, statusProcessing, 100, 0)})
	if err != nil || ref != "pi_test_123" {
		t.Errorf("CallbackReference() = %q, %v", ref, err)
	}

	charge := []byte(`{"type":"charge.refunded","data":{"object":{"id":"ch_1","object":"charge","payment_intent":"pi_test_456","refunded":true}}}`)
	ref, err = f.CallbackReference(provider.CallbackEvent{RawBody: charge})
	if err != nil || ref != "pi_test_456" {
		t.Errorf("CallbackReference() = %q, %v", ref, err)
	}

	if _, err := f.CallbackReference(provider.CallbackEvent{RawBody: []byte(`{"data":{"object":{}}}`)}); err == nil {
		t.Error("expected error for event without payment intent")
	}
}

func TestMapEvent(t *testing.T) {
	tests := []struct {
		eventType  string
		obj        eventObject
		wantStatus provider.PaymentStatus
		wantAmount int64
	}{
		{eventSucceeded, eventObject{Amount: 1000, AmountReceived: 900}, provider.StatusSucceeded, 900},
		{eventProcessing, eventObject{Amount: 1000}, provider.StatusProcessing, 1000},
		{eventPaymentFailed, eventObject{Amount: 1000}, provider.StatusFailed, 1000},
		{eventCanceled, eventObject{Amount: 1000}, provider.StatusCancelled, 1000},
		{eventChargeRefund, eventObject{Amount: 1000, AmountRefunded: 1000, Refunded: true}, provider.StatusRefunded, 1000},
		{eventChargeRefund, eventObject{Amount: 1000, AmountRefunded: 400}, provider.StatusSucceeded, 1000},
		{"payment_intent.created", eventObject{Status: statusRequiresPaymentMethod, Amount: 1000}, provider.StatusPending, 1000},
	}

	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			status, amount := mapEvent(tt.eventType, tt.obj)
			if status != tt.wantStatus || amount != tt.wantAmount {
				t.Errorf("mapEvent() = %s, %d; want %s, %d", status, amount, tt.wantStatus, tt.wantAmount)
			}
		})
	}
}

func TestDriver_Initiate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payment_intents" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm() error = %v", err)
		}
		if got := r.PostForm.Get("amount"); got != "2500" {
			t.Errorf("amount = %s, want 2500", got)
		}
		if got := r.PostForm.Get("currency"); got != "usd" {
			t.Errorf("currency = %s, want usd", got)
		}
		if got := r.PostForm.Get("metadata[academy_id]"); got != "academy-c" {
			t.Errorf("metadata[academy_id] = %s", got)
		}
		if got := r.Header.Get("Idempotency-Key"); got != "pay-1" {
			t.Errorf("Idempotency-Key = %s, want pay-1", got)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"pi_test_123","object":"payment_intent","status":"requires_payment_method","amount":2500,"currency":"usd","client_secret":"pi_test_123_secret_abc"}`))
	}))
	defer server.Close()

	result, err := newTestDriver(t, server.URL).Initiate(context.Background(), provider.InitiateRequest{
		PaymentID: "pay-1",
		TenantID:  "academy-c",
		Amount:    provider.NewMoney(2500, "USD"),
		Customer:  provider.Customer{Email: "student@example.com"},
	})
	if err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}
	if result.GatewayReference != "pi_test_123" {
		t.Errorf("GatewayReference = %s", result.GatewayReference)
	}
	if result.ClientToken != "pi_test_123_secret_abc" {
		t.Errorf("ClientToken = %s", result.ClientToken)
	}
}

func TestDriver_Initiate_ErrorClasses(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"card declined", http.StatusPaymentRequired, `{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined."}}`, provider.ErrGatewayRejected},
		{"invalid request", http.StatusBadRequest, `{"error":{"type":"invalid_request_error","message":"Invalid currency"}}`, provider.ErrGatewayRejected},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"type":"invalid_request_error","message":"Too many requests"}}`, provider.ErrGatewayUnavailable},
		{"server error", http.StatusInternalServerError, `{"error":{"type":"api_error","message":"boom"}}`, provider.ErrGatewayUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestDriver(t, server.URL).Initiate(context.Background(), provider.InitiateRequest{
				PaymentID: "pay-2",
				Amount:    provider.NewMoney(100, "USD"),
			})
			if !errors.Is(err, tt.want) {
				t.Errorf("Initiate() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDriver_Initiate_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestDriver(t, url).Initiate(context.Background(), provider.InitiateRequest{
		PaymentID: "pay-3",
		Amount:    provider.NewMoney(100, "USD"),
	})
	if !errors.Is(err, provider.ErrGatewayUnavailable) {
		t.Errorf("Initiate() error = %v, want unavailable", err)
	}
}

func TestDriver_QueryStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payment_intents/pi_test_123" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"pi_test_123","object":"payment_intent","status":"succeeded","amount":2500,"amount_received":2500,"currency":"usd","latest_charge":"ch_test_9"}`))
	}))
	defer server.Close()

	report, err := newTestDriver(t, server.URL).QueryStatus(context.Background(), "pi_test_123")
	if err != nil {
		t.Fatalf("QueryStatus() error = %v", err)
	}
	if report.Status != provider.StatusSucceeded {
		t.Errorf("Status = %s, want succeeded", report.Status)
	}
	if !report.Amount.Equal(provider.NewMoney(2500, "USD")) {
		t.Errorf("Amount = %s", report.Amount)
	}
	if report.GatewayTransactionID != "ch_test_9" {
		t.Errorf("GatewayTransactionID = %s", report.GatewayTransactionID)
	}
}
