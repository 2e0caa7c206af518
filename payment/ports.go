package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mstgnz/academypay/provider"
)

// Store persists payment records with optimistic concurrency.
// Load methods return ErrPaymentNotFound when nothing matches.
type Store interface {
	Load(ctx context.Context, paymentID string) (*Record, error)
	LoadByIdempotencyKey(ctx context.Context, tenantID, key string) (*Record, error)
	LoadByGatewayReference(ctx context.Context, gateway, reference string) (*Record, error)

	// Save inserts rec when expectedVersion is 0, otherwise replaces the
	// stored record only if its version still equals expectedVersion. It
	// returns false when another writer got there first.
	Save(ctx context.Context, rec *Record, expectedVersion int64) (bool, error)
}

// StaleLister finds payments that have been waiting on their gateway
// since before cutoff
type StaleLister interface {
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*Record, error)
}

// Notification tells the owning tenant about an applied status change
type Notification struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	PaymentID string            `json:"paymentId"`
	Gateway   string            `json:"gateway"`
	Previous  Status            `json:"previous"`
	Status    Status            `json:"status"`
	Amount    provider.Money    `json:"amount"`
	Version   int64             `json:"version"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	At        time.Time         `json:"at"`
}

// Notifier delivers notifications. Implementations must not block the caller
// on slow downstream delivery.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// AuditEvent names what an audit entry records
type AuditEvent string

const (
	AuditCreated          AuditEvent = "payment.created"
	AuditTransition       AuditEvent = "payment.transition"
	AuditCallbackRejected AuditEvent = "callback.rejected"
	AuditTenantMismatch   AuditEvent = "callback.tenant_mismatch"
	AuditAmountMismatch   AuditEvent = "callback.amount_mismatch"
)

// AuditEntry is one line of the payment audit trail
type AuditEntry struct {
	Event            AuditEvent     `json:"event"`
	TenantID         string         `json:"tenant_id,omitempty"`
	Gateway          string         `json:"gateway,omitempty"`
	PaymentID        string         `json:"payment_id,omitempty"`
	GatewayReference string         `json:"gateway_reference,omitempty"`
	From             Status         `json:"from_status,omitempty"`
	To               Status         `json:"to_status,omitempty"`
	Version          int64          `json:"version,omitempty"`
	Amount           provider.Money `json:"amount"`
	Reason           string         `json:"reason,omitempty"`
	RemoteIP         string         `json:"remote_ip,omitempty"`
	Detail           string         `json:"detail,omitempty"`
	At               time.Time      `json:"timestamp"`
}

// Auditor records audit entries. Failures are the auditor's concern; the
// payment flow never fails because auditing did.
type Auditor interface {
	Record(ctx context.Context, entry AuditEntry)
}

// Clock returns the current time
type Clock func() time.Time

// IDGenerator returns a new unique id
type IDGenerator func() string

// NewUUID is the default IDGenerator
func NewUUID() string {
	return uuid.NewString()
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Notification) {}

type nopAuditor struct{}

func (nopAuditor) Record(context.Context, AuditEntry) {}
