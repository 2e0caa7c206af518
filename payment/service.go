package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mstgnz/academypay/infra/config"
	"github.com/mstgnz/academypay/infra/logger"
	"github.com/mstgnz/academypay/provider"
)

const defaultGatewayTimeout = 30 * time.Second

// Result says what happened to a requested status change
type Result string

const (
	OutcomeApplied    Result = "applied"
	OutcomeSuperseded Result = "superseded"
	OutcomeRejected   Result = "rejected"
)

// Outcome reports the effect of a callback, cancellation or reconciliation
type Outcome struct {
	Result         Result     `json:"result"`
	PaymentID      string     `json:"paymentId"`
	Previous       Status     `json:"previous"`
	Status         Status     `json:"status"`
	Version        int64      `json:"version"`
	Rejection      *Rejection `json:"rejection,omitempty"`
	AmountMismatch bool       `json:"amountMismatch,omitempty"`
}

// Err returns nil for applied outcomes and the matching sentinel otherwise
func (o *Outcome) Err() error {
	switch o.Result {
	case OutcomeApplied:
		return nil
	case OutcomeRejected:
		return o.Rejection.Err()
	default:
		return ErrSuperseded
	}
}

// CreateRequest asks for a new payment through one gateway
type CreateRequest struct {
	TenantID       string            `json:"-" validate:"required,max=64"`
	Amount         provider.Money    `json:"amount"`
	IdempotencyKey string            `json:"idempotencyKey" validate:"required,max=128"`
	Gateway        string            `json:"gateway" validate:"required,max=32"`
	Customer       provider.Customer `json:"customer"`
	ReturnURL      string            `json:"returnUrl" validate:"omitempty,url"`
	Metadata       map[string]string `json:"metadata" validate:"omitempty,max=20,dive,keys,max=64,endkeys,max=512"`
}

// StatusResult pairs the stored record with the gateway's current view
type StatusResult struct {
	Record *Record                 `json:"payment"`
	Report *provider.StatusReport `json:"gateway"`
}

// Deps are the collaborators of a Service
type Deps struct {
	Store          Store
	Factory        *provider.TenantFactory
	Registry       *provider.Registry
	Catalog        *Catalog
	Notifier       Notifier
	Auditor        Auditor
	StateMachine   StateMachine
	Clock          Clock
	IDs            IDGenerator
	GatewayTimeout time.Duration

	// CallbackURL builds the webhook URL handed to gateways at initiate
	CallbackURL func(gateway string) string
}

// Service orchestrates payments across tenants and gateways
type Service struct {
	store       Store
	factory     *provider.TenantFactory
	registry    *provider.Registry
	catalog     *Catalog
	notifier    Notifier
	auditor     Auditor
	machine     StateMachine
	now         Clock
	ids         IDGenerator
	timeout     time.Duration
	callbackURL func(gateway string) string
}

// NewService validates deps and fills defaults for the optional ones
func NewService(deps Deps) (*Service, error) {
	if deps.Store == nil || deps.Factory == nil || deps.Registry == nil {
		return nil, errors.New("payment service: store, factory and registry are required")
	}

	s := &Service{
		store:       deps.Store,
		factory:     deps.Factory,
		registry:    deps.Registry,
		catalog:     deps.Catalog,
		notifier:    deps.Notifier,
		auditor:     deps.Auditor,
		machine:     deps.StateMachine,
		now:         deps.Clock,
		ids:         deps.IDs,
		timeout:     deps.GatewayTimeout,
		callbackURL: deps.CallbackURL,
	}
	if s.notifier == nil {
		s.notifier = nopNotifier{}
	}
	if s.auditor == nil {
		s.auditor = nopAuditor{}
	}
	if s.machine.edges == nil {
		s.machine = NewStateMachine()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.ids == nil {
		s.ids = NewUUID
	}
	if s.timeout <= 0 {
		s.timeout = defaultGatewayTimeout
	}
	if s.callbackURL == nil {
		s.callbackURL = func(string) string { return "" }
	}
	return s, nil
}

func (s *Service) validate(req CreateRequest) error {
	if err := config.App().Validator.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if req.Amount.Amount <= 0 {
		return fmt.Errorf("%w: amount must be greater than 0", ErrInvalidRequest)
	}
	if len(strings.TrimSpace(req.Amount.Currency)) != 3 {
		return fmt.Errorf("%w: currency must be a 3 letter ISO code", ErrInvalidRequest)
	}
	return nil
}

// CreatePayment starts a payment. Repeating a request with the same
// tenant and idempotency key returns the first record unchanged.
func (s *Service) CreatePayment(ctx context.Context, req CreateRequest) (*Record, error) {
	req.Amount = provider.NewMoney(req.Amount.Amount, req.Amount.Currency)
	if err := s.validate(req); err != nil {
		return nil, err
	}

	existing, err := s.store.LoadByIdempotencyKey(ctx, req.TenantID, req.IdempotencyKey)
	switch {
	case err == nil:
		return existing, nil
	case !errors.Is(err, ErrPaymentNotFound):
		return nil, fmt.Errorf("load payment by idempotency key: %w", err)
	}

	driver, err := s.factory.ForTenant(ctx, req.TenantID, req.Gateway)
	if err != nil {
		return nil, err
	}

	paymentID := s.ids()
	log := logger.WithPayment(req.TenantID, req.Gateway, paymentID)

	gctx, cancel := context.WithTimeout(ctx, s.timeout)
	result, err := driver.Initiate(gctx, provider.InitiateRequest{
		PaymentID:       paymentID,
		TenantID:        req.TenantID,
		Amount:          req.Amount,
		Customer:        req.Customer,
		ReturnURL:       req.ReturnURL,
		NotificationURL: s.callbackURL(req.Gateway),
		Metadata:        req.Metadata,
	})
	cancel()

	now := s.now().UTC()
	rec := &Record{
		ID:             paymentID,
		TenantID:       req.TenantID,
		Amount:         req.Amount,
		Gateway:        req.Gateway,
		Status:         provider.StatusPending,
		Version:        1,
		IdempotencyKey: req.IdempotencyKey,
		Metadata:       copyMetadata(req.Metadata),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err != nil {
		if errors.Is(err, provider.ErrGatewayRejected) {
			log.Warn("gateway rejected payment: " + err.Error())
			return s.persistRejected(ctx, rec, err)
		}
		log.Error("gateway initiate failed", err)
		return nil, err
	}

	rec.GatewayReference = result.GatewayReference
	rec.GatewayTransactionID = result.GatewayTransactionID
	rec.RedirectURL = result.RedirectURL
	rec.ClientToken = result.ClientToken

	winner, err := s.insert(ctx, rec)
	if err != nil {
		return nil, err
	}
	if winner != rec {
		log.Info("concurrent create with the same idempotency key, returning existing payment " + winner.ID)
		return winner, nil
	}

	log.Info("payment created")
	s.auditor.Record(ctx, AuditEntry{
		Event:            AuditCreated,
		TenantID:         rec.TenantID,
		Gateway:          rec.Gateway,
		PaymentID:        rec.ID,
		GatewayReference: rec.GatewayReference,
		To:               rec.Status,
		Version:          rec.Version,
		Amount:           rec.Amount,
		At:               now,
	})
	return rec, nil
}

// insert saves a new record and returns it, or the record that won a race
// on the same idempotency key
func (s *Service) insert(ctx context.Context, rec *Record) (*Record, error) {
	ok, err := s.store.Save(ctx, rec, 0)
	if err != nil {
		return nil, fmt.Errorf("save payment: %w", err)
	}
	if ok {
		return rec, nil
	}

	winner, err := s.store.LoadByIdempotencyKey(ctx, rec.TenantID, rec.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("%w: payment %s could not be inserted", ErrSuperseded, rec.ID)
	}
	return winner, nil
}

// persistRejected stores a payment the gateway refused as failed so the
// idempotency key keeps pointing at the refusal
func (s *Service) persistRejected(ctx context.Context, rec *Record, cause error) (*Record, error) {
	rec.FailureReason = failureReason(cause)

	winner, err := s.insert(ctx, rec)
	if err != nil {
		return nil, errors.Join(cause, err)
	}
	if winner != rec {
		return winner, cause
	}

	decision := s.machine.Transition(rec.Status, provider.StatusFailed)
	failed := rec.Clone()
	failed.Status = decision.Status
	failed.Version = rec.Version + 1
	failed.UpdatedAt = s.now().UTC()

	ok, err := s.store.Save(ctx, failed, rec.Version)
	if err != nil {
		return rec, errors.Join(cause, fmt.Errorf("save failed payment: %w", err))
	}
	if !ok {
		current, err := s.store.Load(ctx, rec.ID)
		if err != nil {
			return rec, cause
		}
		return current, cause
	}

	s.auditor.Record(ctx, AuditEntry{
		Event:     AuditTransition,
		TenantID:  failed.TenantID,
		Gateway:   failed.Gateway,
		PaymentID: failed.ID,
		From:      rec.Status,
		To:        failed.Status,
		Version:   failed.Version,
		Amount:    failed.Amount,
		Reason:    failed.FailureReason,
		At:        failed.UpdatedAt,
	})
	return failed, cause
}

// ProcessCallback authenticates a gateway callback and applies the status
// it reports to the payment it references
func (s *Service) ProcessCallback(ctx context.Context, event provider.CallbackEvent) (*Outcome, error) {
	factory, err := s.registry.Resolve(event.Gateway)
	if err != nil {
		return nil, err
	}

	ref, err := factory.CallbackReference(event)
	if err != nil {
		s.rejectCallback(ctx, event, nil, "unreadable callback: "+err.Error())
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	rec, err := s.store.LoadByGatewayReference(ctx, event.Gateway, ref)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			s.rejectCallback(ctx, event, nil, "unknown gateway reference "+ref)
		}
		return nil, err
	}

	if event.ClaimedTenantID != "" && event.ClaimedTenantID != rec.TenantID {
		logger.Warn("callback tenant does not own payment", logger.LogContext{
			TenantID:  rec.TenantID,
			Gateway:   rec.Gateway,
			PaymentID: rec.ID,
			Fields:    map[string]any{"claimed_tenant_id": event.ClaimedTenantID, "remote_ip": event.RemoteIP},
		})
		s.auditor.Record(ctx, AuditEntry{
			Event:            AuditTenantMismatch,
			TenantID:         rec.TenantID,
			Gateway:          rec.Gateway,
			PaymentID:        rec.ID,
			GatewayReference: ref,
			RemoteIP:         event.RemoteIP,
			Detail:           "claimed tenant " + event.ClaimedTenantID,
			At:               s.now().UTC(),
		})
		return nil, ErrTenantMismatch
	}

	driver, err := s.factory.ForTenant(ctx, rec.TenantID, rec.Gateway)
	if err != nil {
		return nil, err
	}

	verdict, err := driver.VerifyCallback(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("verify %s callback: %w", rec.Gateway, err)
	}
	// The reference a driver reports must come from the signed part of the
	// callback; an empty one cannot bind the callback to rec.
	if !verdict.Authentic || verdict.GatewayReference != rec.GatewayReference {
		s.rejectCallback(ctx, event, rec, "signature verification failed")
		return nil, provider.ErrSignatureInvalid
	}

	return s.apply(ctx, rec, verdict.TargetStatus, &verdict.AmountConfirmed, verdict.GatewayTransactionID, "callback "+verdict.RawStatus)
}

func (s *Service) rejectCallback(ctx context.Context, event provider.CallbackEvent, rec *Record, detail string) {
	entry := AuditEntry{
		Event:    AuditCallbackRejected,
		Gateway:  event.Gateway,
		RemoteIP: event.RemoteIP,
		Reason:   detail,
		At:       s.now().UTC(),
	}
	logCtx := logger.LogContext{
		Gateway: event.Gateway,
		Fields: map[string]any{
			"remote_ip":         event.RemoteIP,
			"claimed_tenant_id": event.ClaimedTenantID,
			"body_bytes":        len(event.RawBody),
		},
	}
	if rec != nil {
		entry.TenantID, entry.PaymentID, entry.GatewayReference = rec.TenantID, rec.ID, rec.GatewayReference
		logCtx.TenantID, logCtx.PaymentID = rec.TenantID, rec.ID
	}

	logger.Warn("callback rejected: "+detail, logCtx)
	s.auditor.Record(ctx, entry)
}

// apply moves rec towards target through the state machine and a
// compare-and-swap save. A nil confirmed amount skips the amount check.
func (s *Service) apply(ctx context.Context, rec *Record, target Status, confirmed *provider.Money, transactionID, source string) (*Outcome, error) {
	outcome := &Outcome{
		PaymentID: rec.ID,
		Previous:  rec.Status,
		Status:    rec.Status,
		Version:   rec.Version,
	}
	log := logger.WithPayment(rec.TenantID, rec.Gateway, rec.ID).AddField("source", source)

	if target == provider.StatusSucceeded && confirmed != nil && !amountMatches(rec.Amount, *confirmed) {
		outcome.AmountMismatch = true
		target = provider.StatusFailed
		log.AddField("expected", rec.Amount.String()).
			AddField("confirmed", confirmed.String()).
			Warn("confirmed amount does not match, failing payment")
		s.auditor.Record(ctx, AuditEntry{
			Event:            AuditAmountMismatch,
			TenantID:         rec.TenantID,
			Gateway:          rec.Gateway,
			PaymentID:        rec.ID,
			GatewayReference: rec.GatewayReference,
			From:             rec.Status,
			To:               target,
			Amount:           *confirmed,
			Reason:           FailureAmountMismatch,
			At:               s.now().UTC(),
		})
	}

	if target == rec.Status {
		outcome.Result = OutcomeSuperseded
		log.Debug("status unchanged, nothing to apply")
		return outcome, nil
	}

	decision := s.machine.Transition(rec.Status, target)
	if !decision.Allowed() {
		outcome.Result = OutcomeRejected
		outcome.Rejection = decision.Rejection
		log.Warn("transition refused: " + decision.Rejection.Error())
		return outcome, nil
	}

	updated := rec.Clone()
	updated.Status = decision.Status
	updated.Version = rec.Version + 1
	updated.UpdatedAt = s.now().UTC()
	if transactionID != "" {
		updated.GatewayTransactionID = transactionID
	}
	if outcome.AmountMismatch {
		updated.FailureReason = FailureAmountMismatch
	}

	ok, err := s.store.Save(ctx, updated, rec.Version)
	if err != nil {
		return nil, fmt.Errorf("save payment %s: %w", rec.ID, err)
	}
	if !ok {
		outcome.Result = OutcomeSuperseded
		log.Info("lost update race, another writer applied first")
		return outcome, nil
	}

	outcome.Result = OutcomeApplied
	outcome.Status = updated.Status
	outcome.Version = updated.Version
	log.Info(fmt.Sprintf("payment %s -> %s", rec.Status, updated.Status))

	s.auditor.Record(ctx, AuditEntry{
		Event:            AuditTransition,
		TenantID:         updated.TenantID,
		Gateway:          updated.Gateway,
		PaymentID:        updated.ID,
		GatewayReference: updated.GatewayReference,
		From:             rec.Status,
		To:               updated.Status,
		Version:          updated.Version,
		Amount:           updated.Amount,
		Reason:           updated.FailureReason,
		Detail:           source,
		At:               updated.UpdatedAt,
	})
	s.notifier.Notify(ctx, Notification{
		ID:        s.ids(),
		TenantID:  updated.TenantID,
		PaymentID: updated.ID,
		Gateway:   updated.Gateway,
		Previous:  rec.Status,
		Status:    updated.Status,
		Amount:    updated.Amount,
		Version:   updated.Version,
		Metadata:  copyMetadata(updated.Metadata),
		At:        updated.UpdatedAt,
	})

	return outcome, nil
}

// GetPayment loads a payment owned by tenantID
func (s *Service) GetPayment(ctx context.Context, tenantID, paymentID string) (*Record, error) {
	rec, err := s.store.Load(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if rec.TenantID != tenantID {
		return nil, ErrPaymentNotFound
	}
	return rec, nil
}

// QueryStatus asks the payment's gateway for its current view, using the
// tenant and gateway the payment was created with
func (s *Service) QueryStatus(ctx context.Context, paymentID string) (*StatusResult, error) {
	rec, err := s.store.Load(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	report, err := s.queryGateway(ctx, rec)
	if err != nil {
		return nil, err
	}
	return &StatusResult{Record: rec, Report: report}, nil
}

func (s *Service) queryGateway(ctx context.Context, rec *Record) (*provider.StatusReport, error) {
	if rec.GatewayReference == "" {
		return nil, fmt.Errorf("%w: payment %s has no gateway reference", ErrInvalidRequest, rec.ID)
	}

	driver, err := s.factory.ForTenant(ctx, rec.TenantID, rec.Gateway)
	if err != nil {
		return nil, err
	}

	gctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return driver.QueryStatus(gctx, rec.GatewayReference)
}

// CancelPayment cancels a pending or processing payment locally
func (s *Service) CancelPayment(ctx context.Context, tenantID, paymentID string) (*Outcome, error) {
	rec, err := s.GetPayment(ctx, tenantID, paymentID)
	if err != nil {
		return nil, err
	}

	outcome, err := s.apply(ctx, rec, provider.StatusCancelled, nil, "", "cancel")
	if err != nil {
		return nil, err
	}
	return outcome, outcome.Err()
}

// Reconcile pulls the gateway's status and applies it like a callback
func (s *Service) Reconcile(ctx context.Context, paymentID string) (*Outcome, error) {
	rec, err := s.store.Load(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	report, err := s.queryGateway(ctx, rec)
	if err != nil {
		return nil, err
	}

	return s.apply(ctx, rec, report.Status, &report.Amount, report.GatewayTransactionID, "reconcile "+report.RawStatus)
}

// ReconcileStale reconciles pending and processing payments that have not
// changed for longer than age. Failures on single payments are collected
// and do not stop the sweep.
func (s *Service) ReconcileStale(ctx context.Context, age time.Duration, limit int) ([]*Outcome, error) {
	lister, ok := s.store.(StaleLister)
	if !ok {
		return nil, errors.New("payment service: store cannot list stale payments")
	}

	records, err := lister.ListStale(ctx, s.now().Add(-age), limit)
	if err != nil {
		return nil, fmt.Errorf("list stale payments: %w", err)
	}

	outcomes := make([]*Outcome, 0, len(records))
	var errs []error
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		outcome, err := s.Reconcile(ctx, rec.ID)
		if err != nil {
			logger.WithPayment(rec.TenantID, rec.Gateway, rec.ID).Error("reconcile failed", err)
			errs = append(errs, fmt.Errorf("payment %s: %w", rec.ID, err))
			continue
		}
		outcomes = append(outcomes, outcome)
	}

	return outcomes, errors.Join(errs...)
}

// ListPaymentMethods returns the tenant's enabled gateways in display order
func (s *Service) ListPaymentMethods(ctx context.Context, tenantID string) ([]PaymentMethod, error) {
	if s.catalog == nil {
		return nil, errors.New("payment service: no catalog configured")
	}
	return s.catalog.ListEnabled(ctx, tenantID)
}

// amountMatches compares a confirmed amount with the stored one. A missing
// currency on the confirmation means the payment's own currency.
func amountMatches(expected, confirmed provider.Money) bool {
	if confirmed.Currency == "" {
		confirmed.Currency = expected.Currency
	}
	return expected.Equal(confirmed)
}

func failureReason(err error) string {
	var gwErr *provider.GatewayError
	if errors.As(err, &gwErr) {
		switch {
		case gwErr.Code != "" && gwErr.Message != "":
			return gwErr.Code + ": " + gwErr.Message
		case gwErr.Message != "":
			return gwErr.Message
		case gwErr.Code != "":
			return gwErr.Code
		}
	}
	return "gateway_rejected"
}

func copyMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
