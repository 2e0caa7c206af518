package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mstgnz/academypay/infra/logger"
	"github.com/mstgnz/academypay/infra/opensearch"
	"github.com/mstgnz/academypay/payment"
)

const writeTimeout = 5 * time.Second

// Index is the document store behind the audit trail
type Index interface {
	Enabled() bool
	IndexDocument(ctx context.Context, index, id string, doc any) error
	Search(ctx context.Context, index string, query map[string]any, size int) ([]json.RawMessage, error)
}

// Recorder writes payment audit entries to the audit index and mirrors
// them to the system log
type Recorder struct {
	index Index
}

// NewRecorder creates a recorder over index. A nil or disabled index only
// logs.
func NewRecorder(index Index) *Recorder {
	return &Recorder{index: index}
}

// Record implements payment.Auditor. Indexing failures are logged, never
// returned.
func (r *Recorder) Record(ctx context.Context, entry payment.AuditEntry) {
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	entry.Reason = opensearch.SanitizeForLog(entry.Reason)
	entry.Detail = opensearch.SanitizeForLog(entry.Detail)

	logCtx := logger.LogContext{
		TenantID:  entry.TenantID,
		Gateway:   entry.Gateway,
		PaymentID: entry.PaymentID,
		Fields: map[string]any{
			"audit_event": string(entry.Event),
			"from_status": string(entry.From),
			"to_status":   string(entry.To),
			"version":     entry.Version,
		},
	}
	logger.Debug("audit "+string(entry.Event), logCtx)

	if r.index == nil || !r.index.Enabled() {
		return
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if err := r.index.IndexDocument(writeCtx, opensearch.AuditIndex, "", entry); err != nil {
		logger.Error("failed to index audit entry", err, logCtx)
	}
}

// Trail returns the newest audit entries of one tenant's payment
func (r *Recorder) Trail(ctx context.Context, tenantID, paymentID string, size int) ([]payment.AuditEntry, error) {
	if r.index == nil || !r.index.Enabled() {
		return nil, fmt.Errorf("audit index is disabled")
	}

	query := map[string]any{
		"bool": map[string]any{
			"must": []map[string]any{
				{"term": map[string]any{"tenant_id": tenantID}},
				{"term": map[string]any{"payment_id": paymentID}},
			},
		},
	}

	docs, err := r.index.Search(ctx, opensearch.AuditIndex, query, size)
	if err != nil {
		return nil, err
	}

	entries := make([]payment.AuditEntry, 0, len(docs))
	for _, doc := range docs {
		var entry payment.AuditEntry
		if err := json.Unmarshal(doc, &entry); err != nil {
			logger.Warn("skipping unreadable audit document: " + err.Error())
			continue
		}
		if entry.TenantID != tenantID {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
