package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/mstgnz/academypay/infra/middle"
	"github.com/mstgnz/academypay/payment"
	"github.com/mstgnz/academypay/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCallbackProcessor struct {
	events  []provider.CallbackEvent
	outcome *payment.Outcome
	err     error
}

func (m *mockCallbackProcessor) ProcessCallback(_ context.Context, event provider.CallbackEvent) (*payment.Outcome, error) {
	m.events = append(m.events, event)
	return m.outcome, m.err
}

func newWebhookRouter(h *WebhookHandler) http.Handler {
	r := chi.NewRouter()
	r.With(middle.RequestValidationMiddleware()).Post("/webhooks/{gateway}", h.HandleWebhook)
	return r
}

func TestWebhookHandler_PassesRawCallback(t *testing.T) {
	processor := &mockCallbackProcessor{outcome: &payment.Outcome{
		Result:    payment.OutcomeApplied,
		PaymentID: "pay-1",
		Previous:  provider.StatusPending,
		Status:    provider.StatusSucceeded,
		Version:   2,
	}}

	body := `{"status":"PAID","customerReference":1206,"signatureHash":"abc"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/EasyKash?hmac=deadbeef", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("stripe-signature", "t=1,v1=abc")
	req.Header.Set(middle.TenantHeader, "academy-a")
	req.RemoteAddr = "197.44.10.5:443"

	w := httptest.NewRecorder()
	newWebhookRouter(NewWebhookHandler(processor)).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, processor.events, 1)
	event := processor.events[0]
	assert.Equal(t, "easykash", event.Gateway)
	assert.Equal(t, body, string(event.RawBody))
	assert.Equal(t, "deadbeef", event.Query["hmac"])
	assert.Equal(t, "t=1,v1=abc", event.Header("Stripe-Signature"))
	assert.Equal(t, "academy-a", event.ClaimedTenantID)
	assert.Equal(t, "197.44.10.5", event.RemoteIP)
}

func TestWebhookHandler_Outcomes(t *testing.T) {
	tests := []struct {
		name           string
		outcome        *payment.Outcome
		err            error
		expectedStatus int
	}{
		{
			name:           "applied",
			outcome:        &payment.Outcome{Result: payment.OutcomeApplied, PaymentID: "pay-1", Status: provider.StatusSucceeded},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "replay",
			outcome:        &payment.Outcome{Result: payment.OutcomeSuperseded, PaymentID: "pay-1", Status: provider.StatusSucceeded},
			expectedStatus: http.StatusOK,
		},
		{
			name: "illegal transition",
			outcome: &payment.Outcome{
				Result:    payment.OutcomeRejected,
				PaymentID: "pay-1",
				Status:    provider.StatusSucceeded,
				Rejection: &payment.Rejection{Reason: payment.ReasonAlreadyTerminal, From: provider.StatusSucceeded, To: provider.StatusFailed},
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "forged signature",
			err:            provider.ErrSignatureInvalid,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "tenant mismatch",
			err:            payment.ErrTenantMismatch,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "unknown reference",
			err:            payment.ErrPaymentNotFound,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "unreadable payload",
			err:            errors.Join(payment.ErrInvalidRequest, errors.New("paymob: malformed callback: unexpected end of JSON input")),
			expectedStatus: http.StatusOK,
		},
		{
			name:           "unknown gateway",
			err:            provider.ErrUnknownGateway,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "store failure asks for retry",
			err:            errors.New("database is locked"),
			expectedStatus: http.StatusInternalServerError,
		},
		{
			name:           "gateway down asks for retry",
			err:            provider.Unavailable("easykash", errors.New("connection refused")),
			expectedStatus: http.StatusServiceUnavailable,
		},
	}

	var ack string
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			processor := &mockCallbackProcessor{outcome: tt.outcome, err: tt.err}
			w, resp := serve(t, newWebhookRouter(NewWebhookHandler(processor)), http.MethodPost, "/webhooks/easykash", "", `{"status":"PAID"}`, nil)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus != http.StatusOK {
				assert.False(t, resp.Success)
				assert.Equal(t, "temporary failure, retry later", resp.Error)
				return
			}

			assert.True(t, resp.Success)
			assert.Equal(t, webhookAck, resp.Message)
			assert.Empty(t, resp.Error)
			assert.Nil(t, resp.Data)
			if ack == "" {
				ack = w.Body.String()
			}
			assert.Equal(t, ack, w.Body.String(), "acknowledgements must not differ by outcome")
		})
	}
}

func TestWebhookHandler_FormBody(t *testing.T) {
	processor := &mockCallbackProcessor{outcome: &payment.Outcome{Result: payment.OutcomeApplied, PaymentID: "pay-1"}}

	req := httptest.NewRequest(http.MethodPost, "/webhooks/paymob", strings.NewReader("obj.id=42&hmac=abc"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	w := httptest.NewRecorder()
	newWebhookRouter(NewWebhookHandler(processor)).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, processor.events, 1)
	assert.Equal(t, "obj.id=42&hmac=abc", string(processor.events[0].RawBody))
}

func TestWebhookHandler_BodyTooLarge(t *testing.T) {
	processor := &mockCallbackProcessor{}

	req := httptest.NewRequest(http.MethodPost, "/webhooks/easykash", strings.NewReader(strings.Repeat("a", middle.MaxBodyBytes+10)))
	req.Header.Set("Content-Type", "application/json")
	req.ContentLength = -1

	w := httptest.NewRecorder()
	newWebhookRouter(NewWebhookHandler(processor)).ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Empty(t, processor.events)
}
