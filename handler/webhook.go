package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/mstgnz/academypay/infra/logger"
	"github.com/mstgnz/academypay/infra/middle"
	"github.com/mstgnz/academypay/infra/response"
	"github.com/mstgnz/academypay/payment"
	"github.com/mstgnz/academypay/provider"
)

// CallbackProcessorInterface applies authenticated gateway callbacks
type CallbackProcessorInterface interface {
	ProcessCallback(ctx context.Context, event provider.CallbackEvent) (*payment.Outcome, error)
}

// WebhookHandler receives gateway callbacks
type WebhookHandler struct {
	processor CallbackProcessorInterface
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(processor CallbackProcessorInterface) *WebhookHandler {
	return &WebhookHandler{processor: processor}
}

// webhookAck is the only reply a gateway gets for a processed callback,
// whatever the outcome
const webhookAck = "Webhook received"

// HandleWebhook handles POST /webhooks/{gateway}. The raw body is passed on
// untouched because signatures are computed over it.
//
// Every callback that does not need a retry is answered with the same 200
// acknowledgement: applied, replayed and illegal transitions alike, and
// also forged, unreadable, unknown or misaddressed callbacks. The reason is
// logged and audited, never returned. Only temporary failures differ, so
// the gateway redelivers.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	gateway := strings.ToLower(chi.URLParam(r, "gateway"))
	if gateway == "" {
		response.Error(w, http.StatusBadRequest, "Missing gateway", nil)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(w, http.StatusRequestEntityTooLarge, "Request body too large", nil)
			return
		}
		response.Error(w, http.StatusBadRequest, "Failed to read webhook body", nil)
		return
	}

	event := provider.CallbackEvent{
		Gateway:         gateway,
		RawBody:         body,
		Headers:         flattenHeaders(r.Header),
		Query:           flattenQuery(r),
		ClaimedTenantID: r.Header.Get(middle.TenantHeader),
		RemoteIP:        middle.GetClientIP(r),
	}

	logCtx := logger.LogContext{
		Gateway:   gateway,
		RequestID: middle.GetRequestIDFromContext(r.Context()),
		Fields:    map[string]any{"remote_ip": event.RemoteIP},
	}

	outcome, err := h.processor.ProcessCallback(r.Context(), event)
	if err != nil {
		status := errorStatus(err)
		logCtx.Fields["status_code"] = status

		if retryable(status) {
			logger.Error("webhook processing failed", err, logCtx)
			response.Error(w, status, "Webhook not processed", errors.New("temporary failure, retry later"))
			return
		}

		logger.Warn("webhook rejected: "+err.Error(), logCtx)
		response.Success(w, http.StatusOK, webhookAck, nil)
		return
	}

	logCtx.PaymentID = outcome.PaymentID
	logCtx.Fields["result"] = string(outcome.Result)
	logCtx.Fields["status"] = string(outcome.Status)
	logger.Info("webhook processed", logCtx)

	response.Success(w, http.StatusOK, webhookAck, nil)
}

func retryable(status int) bool {
	return status == http.StatusInternalServerError || status >= http.StatusServiceUnavailable
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for key, values := range h {
		if len(values) > 0 {
			out[http.CanonicalHeaderKey(key)] = values[0]
		}
	}
	return out
}

func flattenQuery(r *http.Request) map[string]string {
	query := r.URL.Query()
	out := make(map[string]string, len(query))
	for key, values := range query {
		if len(values) > 0 {
			out[key] = values[0]
		}
	}
	return out
}
