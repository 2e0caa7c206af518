package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/mstgnz/academypay/infra/logger"
	"github.com/mstgnz/academypay/infra/middle"
	"github.com/mstgnz/academypay/infra/response"
	"github.com/mstgnz/academypay/payment"
	"github.com/mstgnz/academypay/provider"
)

// errorStatus maps the payment error taxonomy to an HTTP status code
func errorStatus(err error) int {
	switch {
	case errors.Is(err, payment.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, provider.ErrSignatureInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, payment.ErrTenantMismatch):
		return http.StatusForbidden
	case errors.Is(err, payment.ErrPaymentNotFound), errors.Is(err, provider.ErrUnknownGateway):
		return http.StatusNotFound
	case errors.Is(err, payment.ErrInvalidEdge),
		errors.Is(err, payment.ErrAlreadyTerminal),
		errors.Is(err, payment.ErrSuperseded):
		return http.StatusConflict
	case errors.Is(err, provider.ErrGatewayNotConfigured):
		return http.StatusUnprocessableEntity
	case errors.Is(err, provider.ErrGatewayRejected):
		return http.StatusPaymentRequired
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, provider.ErrGatewayUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError responds with the mapped status. Unclassified errors are
// logged and replaced by a generic message.
func writeError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		logger.Error(message, err, logger.LogContext{
			TenantID:  middle.GetTenantIDFromContext(r.Context()),
			RequestID: middle.GetRequestIDFromContext(r.Context()),
			Fields:    map[string]any{"path": r.URL.Path},
		})
		err = errors.New("internal error")
	}
	response.Error(w, status, message, err)
}
