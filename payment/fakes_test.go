package payment

import (
	"context"
	"sync"
	"time"

	"github.com/mstgnz/academypay/provider"
)

// memStore is a minimal CAS store for service tests
type memStore struct {
	mu      sync.Mutex
	records map[string]*Record

	// beforeSave runs without the lock held, before each Save
	beforeSave func(rec *Record, expectedVersion int64)
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]*Record)}
}

func (s *memStore) Load(_ context.Context, paymentID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[paymentID]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	return rec.Clone(), nil
}

func (s *memStore) LoadByIdempotencyKey(_ context.Context, tenantID, key string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.TenantID == tenantID && rec.IdempotencyKey == key {
			return rec.Clone(), nil
		}
	}
	return nil, ErrPaymentNotFound
}

func (s *memStore) LoadByGatewayReference(_ context.Context, gateway, reference string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if reference != "" && rec.Gateway == gateway && rec.GatewayReference == reference {
			return rec.Clone(), nil
		}
	}
	return nil, ErrPaymentNotFound
}

func (s *memStore) Save(_ context.Context, rec *Record, expectedVersion int64) (bool, error) {
	if s.beforeSave != nil {
		s.beforeSave(rec, expectedVersion)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if expectedVersion == 0 {
		for _, existing := range s.records {
			if existing.TenantID == rec.TenantID && existing.IdempotencyKey == rec.IdempotencyKey {
				return false, nil
			}
		}
		s.records[rec.ID] = rec.Clone()
		return true, nil
	}

	current, ok := s.records[rec.ID]
	if !ok || current.Version != expectedVersion {
		return false, nil
	}
	s.records[rec.ID] = rec.Clone()
	return true, nil
}

func (s *memStore) ListStale(_ context.Context, cutoff time.Time, limit int) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Record
	for _, rec := range s.records {
		if !rec.Status.Terminal() && rec.UpdatedAt.Before(cutoff) {
			out = append(out, rec.Clone())
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

func (n *recordingNotifier) Notify(_ context.Context, note Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
}

func (n *recordingNotifier) notifications() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.sent...)
}

type recordingAuditor struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (a *recordingAuditor) Record(_ context.Context, entry AuditEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
}

func (a *recordingAuditor) events() []AuditEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]AuditEvent, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Event)
	}
	return out
}

// fakeGateway is a scriptable driver family. The callback reference is
// read from the "ref" query value, authenticity from "sig" == "ok".
type fakeGateway struct {
	name string

	mu          sync.Mutex
	initiateErr error
	initiated   []provider.InitiateRequest
	verdict     provider.CallbackVerdict
	report      provider.StatusReport
	tenants     []string

	// unsignedReference makes verdicts carry no gateway reference
	unsignedReference bool
}

func (g *fakeGateway) Name() string { return g.name }

func (g *fakeGateway) RequiredConfig() []provider.ConfigField {
	return []provider.ConfigField{{Key: "secret", Required: true, Type: "string"}}
}

func (g *fakeGateway) New(cfg provider.GatewayConfig) (provider.Driver, error) {
	g.mu.Lock()
	g.tenants = append(g.tenants, cfg.TenantID)
	g.mu.Unlock()
	return &fakeDriver{gateway: g, tenantID: cfg.TenantID}, nil
}

func (g *fakeGateway) CallbackReference(event provider.CallbackEvent) (string, error) {
	if ref := event.Query["ref"]; ref != "" {
		return ref, nil
	}
	return "", provider.ErrSignatureInvalid
}

type fakeDriver struct {
	gateway  *fakeGateway
	tenantID string
}

func (d *fakeDriver) Initiate(_ context.Context, req provider.InitiateRequest) (*provider.InitiateResult, error) {
	d.gateway.mu.Lock()
	defer d.gateway.mu.Unlock()
	d.gateway.initiated = append(d.gateway.initiated, req)
	if d.gateway.initiateErr != nil {
		return nil, d.gateway.initiateErr
	}
	return &provider.InitiateResult{
		GatewayReference: "ref-" + req.PaymentID,
		RedirectURL:      "https://gateway.example.com/pay/" + req.PaymentID,
	}, nil
}

func (d *fakeDriver) VerifyCallback(_ context.Context, event provider.CallbackEvent) (*provider.CallbackVerdict, error) {
	if event.Query["sig"] != "ok" {
		return &provider.CallbackVerdict{Authentic: false}, nil
	}
	d.gateway.mu.Lock()
	defer d.gateway.mu.Unlock()
	v := d.gateway.verdict
	v.Authentic = true
	if v.GatewayReference == "" && !d.gateway.unsignedReference {
		v.GatewayReference = event.Query["ref"]
	}
	return &v, nil
}

func (d *fakeDriver) QueryStatus(context.Context, string) (*provider.StatusReport, error) {
	d.gateway.mu.Lock()
	defer d.gateway.mu.Unlock()
	r := d.gateway.report
	return &r, nil
}

func (g *fakeGateway) setVerdict(status provider.PaymentStatus, amount provider.Money) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verdict = provider.CallbackVerdict{TargetStatus: status, AmountConfirmed: amount, RawStatus: string(status)}
}

func (g *fakeGateway) initiateCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.initiated)
}
