package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/mstgnz/academypay/infra/middle"
	"github.com/mstgnz/academypay/infra/response"
	"github.com/mstgnz/academypay/payment"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"

	defaultAuditLimit = 50
	maxAuditLimit     = 200
)

// PaymentServiceInterface defines the payment operations the API exposes
type PaymentServiceInterface interface {
	CreatePayment(ctx context.Context, req payment.CreateRequest) (*payment.Record, error)
	GetPayment(ctx context.Context, tenantID, paymentID string) (*payment.Record, error)
	QueryStatus(ctx context.Context, paymentID string) (*payment.StatusResult, error)
	CancelPayment(ctx context.Context, tenantID, paymentID string) (*payment.Outcome, error)
	ListPaymentMethods(ctx context.Context, tenantID string) ([]payment.PaymentMethod, error)
}

// AuditTrailInterface reads a payment's audit history
type AuditTrailInterface interface {
	Trail(ctx context.Context, tenantID, paymentID string, size int) ([]payment.AuditEntry, error)
}

// PaymentHandler handles tenant-facing payment requests. The tenant always
// comes from the request context, never from the body.
type PaymentHandler struct {
	paymentService PaymentServiceInterface
	auditTrail     AuditTrailInterface
}

// NewPaymentHandler creates a new payment handler. auditTrail may be nil.
func NewPaymentHandler(paymentService PaymentServiceInterface, auditTrail AuditTrailInterface) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		auditTrail:     auditTrail,
	}
}

// CreatePayment handles POST /v1/payments
func (h *PaymentHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req payment.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	if key := r.Header.Get(IdempotencyKeyHeader); key != "" {
		if req.IdempotencyKey != "" && req.IdempotencyKey != key {
			response.Error(w, http.StatusBadRequest, "Idempotency-Key header does not match request body", nil)
			return
		}
		req.IdempotencyKey = key
	}
	req.TenantID = middle.GetTenantIDFromContext(r.Context())

	rec, err := h.paymentService.CreatePayment(r.Context(), req)
	if err != nil {
		if rec != nil {
			// the gateway refused; the failed record is still the answer
			_ = response.WriteJSON(w, errorStatus(err), response.Response{
				Code:    errorStatus(err),
				Success: false,
				Message: "Payment rejected by gateway",
				Error:   err.Error(),
				Data:    rec,
			})
			return
		}
		writeError(w, r, "Payment could not be created", err)
		return
	}

	response.Success(w, http.StatusCreated, "Payment created", rec)
}

// GetPayment handles GET /v1/payments/{paymentID}
func (h *PaymentHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.loadPayment(w, r)
	if !ok {
		return
	}
	response.Success(w, http.StatusOK, "Payment retrieved", rec)
}

// GetPaymentStatus handles GET /v1/payments/{paymentID}/status. It asks the
// gateway and returns its answer next to the stored record without changing
// anything.
func (h *PaymentHandler) GetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.loadPayment(w, r)
	if !ok {
		return
	}

	result, err := h.paymentService.QueryStatus(r.Context(), rec.ID)
	if err != nil {
		writeError(w, r, "Failed to get payment status", err)
		return
	}

	response.Success(w, http.StatusOK, "Payment status retrieved", result)
}

// CancelPayment handles POST /v1/payments/{paymentID}/cancel
func (h *PaymentHandler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentID")
	if paymentID == "" {
		response.Error(w, http.StatusBadRequest, "Missing payment ID", nil)
		return
	}

	outcome, err := h.paymentService.CancelPayment(r.Context(), middle.GetTenantIDFromContext(r.Context()), paymentID)
	if err != nil {
		status := errorStatus(err)
		if outcome != nil && status != http.StatusInternalServerError {
			_ = response.WriteJSON(w, status, response.Response{
				Code:    status,
				Success: false,
				Message: "Payment could not be cancelled",
				Error:   err.Error(),
				Data:    outcome,
			})
			return
		}
		writeError(w, r, "Payment could not be cancelled", err)
		return
	}

	response.Success(w, http.StatusOK, "Payment cancelled", outcome)
}

// GetPaymentAudit handles GET /v1/payments/{paymentID}/audit
func (h *PaymentHandler) GetPaymentAudit(w http.ResponseWriter, r *http.Request) {
	if h.auditTrail == nil {
		response.Error(w, http.StatusServiceUnavailable, "Audit trail is not enabled", nil)
		return
	}

	rec, ok := h.loadPayment(w, r)
	if !ok {
		return
	}

	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			response.Error(w, http.StatusBadRequest, "Invalid limit", nil)
			return
		}
		limit = min(parsed, maxAuditLimit)
	}

	entries, err := h.auditTrail.Trail(r.Context(), rec.TenantID, rec.ID, limit)
	if err != nil {
		writeError(w, r, "Failed to read audit trail", err)
		return
	}

	response.Success(w, http.StatusOK, "Audit trail retrieved", map[string]any{
		"paymentId": rec.ID,
		"entries":   entries,
		"count":     len(entries),
	})
}

// ListPaymentMethods handles GET /v1/payment-methods
func (h *PaymentHandler) ListPaymentMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := h.paymentService.ListPaymentMethods(r.Context(), middle.GetTenantIDFromContext(r.Context()))
	if err != nil {
		writeError(w, r, "Failed to list payment methods", err)
		return
	}
	if methods == nil {
		methods = []payment.PaymentMethod{}
	}

	response.Success(w, http.StatusOK, "Payment methods retrieved", methods)
}

// loadPayment reads the {paymentID} of the calling tenant or writes the error
func (h *PaymentHandler) loadPayment(w http.ResponseWriter, r *http.Request) (*payment.Record, bool) {
	paymentID := chi.URLParam(r, "paymentID")
	if paymentID == "" {
		response.Error(w, http.StatusBadRequest, "Missing payment ID", nil)
		return nil, false
	}

	rec, err := h.paymentService.GetPayment(r.Context(), middle.GetTenantIDFromContext(r.Context()), paymentID)
	if err != nil {
		if errors.Is(err, payment.ErrPaymentNotFound) {
			response.Error(w, http.StatusNotFound, "Payment not found", nil)
			return nil, false
		}
		writeError(w, r, "Failed to load payment", err)
		return nil, false
	}
	return rec, true
}
