package payment

import (
	"time"

	"github.com/mstgnz/academypay/provider"
)

// FailureAmountMismatch is stored in FailureReason when a gateway confirms
// a different amount than was requested
const FailureAmountMismatch = "amount_mismatch"

// Record is the persisted state of one payment. TenantID and Gateway are
// fixed at creation; Status only moves through the state machine.
type Record struct {
	ID                   string            `json:"id"`
	TenantID             string            `json:"tenantId"`
	Amount               provider.Money    `json:"amount"`
	Gateway              string            `json:"gateway"`
	GatewayReference     string            `json:"gatewayReference"`
	GatewayTransactionID string            `json:"gatewayTransactionId,omitempty"`
	Status               Status            `json:"status"`
	Version              int64             `json:"version"`
	IdempotencyKey       string            `json:"idempotencyKey"`
	RedirectURL          string            `json:"redirectUrl,omitempty"`
	ClientToken          string            `json:"clientToken,omitempty"`
	Metadata             map[string]string `json:"metadata,omitempty"`
	FailureReason        string            `json:"failureReason,omitempty"`
	CreatedAt            time.Time         `json:"createdAt"`
	UpdatedAt            time.Time         `json:"updatedAt"`
}

// Clone returns a deep copy
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.Metadata != nil {
		out.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}
