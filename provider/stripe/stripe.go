package stripe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	stripeapi "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/mstgnz/academypay/provider"
)

const (
	// Gateway name used in the registry and webhook routes
	Name = "stripe"

	// Signature header sent with every webhook
	signatureHeader = "Stripe-Signature"

	// Stripe Status Codes
	statusRequiresPaymentMethod = "requires_payment_method"
	statusRequiresConfirmation  = "requires_confirmation"
	statusRequiresAction        = "requires_action"
	statusProcessing            = "processing"
	statusRequiresCapture       = "requires_capture"
	statusCanceled              = "canceled"
	statusSucceeded             = "succeeded"

	// Webhook event types
	eventSucceeded     = "payment_intent.succeeded"
	eventProcessing    = "payment_intent.processing"
	eventPaymentFailed = "payment_intent.payment_failed"
	eventCanceled      = "payment_intent.canceled"
	eventChargeRefund  = "charge.refunded"

	// Default Values
	defaultTimeout = 30 * time.Second
)

// Options configures the Stripe factory
type Options struct {
	// BaseURL overrides the Stripe API URL
	BaseURL string
	Timeout time.Duration
}

// Factory builds Stripe drivers
type Factory struct {
	opts Options
}

// NewFactory creates the Stripe driver factory
func NewFactory(opts Options) *Factory {
	if opts.Timeout == 0 {
		opts.Timeout = defaultTimeout
	}
	return &Factory{opts: opts}
}

func (f *Factory) Name() string { return Name }

// RequiredConfig returns the credentials a tenant must configure
func (f *Factory) RequiredConfig() []provider.ConfigField {
	return []provider.ConfigField{
		{Key: "secretKey", Required: true, Type: "string", Description: "Stripe secret API key", Example: "sk_test_xxx", Pattern: `^(sk|rk)_(test|live)_`},
		{Key: "webhookSecret", Required: true, Type: "string", Description: "Signing secret of the webhook endpoint", Example: "whsec_xxx", Pattern: `^whsec_`},
		{Key: "publishableKey", Required: false, Type: "string", Description: "Publishable key returned to clients", Example: "pk_test_xxx"},
	}
}

// New binds a driver to one tenant's credentials
func (f *Factory) New(cfg provider.GatewayConfig) (provider.Driver, error) {
	secretKey := cfg.Credential("secretKey")
	webhookSecret := cfg.Credential("webhookSecret")
	if secretKey == "" {
		return nil, errors.New("stripe: secretKey is required")
	}
	if webhookSecret == "" {
		return nil, errors.New("stripe: webhookSecret is required")
	}

	backendCfg := &stripeapi.BackendConfig{
		HTTPClient:        &http.Client{Timeout: f.opts.Timeout},
		MaxNetworkRetries: stripeapi.Int64(0),
	}
	if f.opts.BaseURL != "" {
		backendCfg.URL = stripeapi.String(f.opts.BaseURL)
	}

	return &Driver{
		webhookSecret: webhookSecret,
		client:        stripeapi.NewClient(secretKey, stripeapi.WithBackends(stripeapi.NewBackendsWithConfig(backendCfg))),
	}, nil
}

// CallbackReference returns the PaymentIntent id a webhook event refers to
func (f *Factory) CallbackReference(event provider.CallbackEvent) (string, error) {
	var evt eventEnvelope
	if err := json.Unmarshal(event.RawBody, &evt); err != nil {
		return "", fmt.Errorf("stripe: malformed event: %w", err)
	}
	ref := evt.Data.Object.intentID()
	if ref == "" {
		return "", errors.New("stripe: event does not reference a payment intent")
	}
	return ref, nil
}

// VerifySignature checks a Stripe-Signature header against the raw body
func VerifySignature(rawPayload []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	return webhook.ValidatePayload(rawPayload, signature, secret) == nil
}

// Driver talks to the Stripe PaymentIntents API for one tenant
type Driver struct {
	webhookSecret string
	client        *stripeapi.Client
}

type eventObject struct {
	ID             string `json:"id"`
	Object         string `json:"object"`
	Status         string `json:"status"`
	Amount         int64  `json:"amount"`
	AmountReceived int64  `json:"amount_received"`
	AmountRefunded int64  `json:"amount_refunded"`
	Currency       string `json:"currency"`
	PaymentIntent  string `json:"payment_intent"`
	Refunded       bool   `json:"refunded"`
	LatestCharge   any    `json:"latest_charge"`
}

func (o eventObject) intentID() string {
	if o.Object == "charge" {
		return o.PaymentIntent
	}
	return o.ID
}

type eventEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object eventObject `json:"object"`
	} `json:"data"`
}

// Initiate creates a PaymentIntent and returns its client secret
func (d *Driver) Initiate(ctx context.Context, req provider.InitiateRequest) (*provider.InitiateResult, error) {
	if req.Amount.Amount <= 0 {
		return nil, provider.Rejected(Name, 0, "invalid_amount", "amount must be greater than 0")
	}

	params := &stripeapi.PaymentIntentCreateParams{
		Amount:   stripeapi.Int64(req.Amount.Amount),
		Currency: stripeapi.String(toStripeCurrency(req.Amount.Currency)),
		AutomaticPaymentMethods: &stripeapi.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled: stripeapi.Bool(true),
		},
		Metadata: map[string]string{
			"payment_id": req.PaymentID,
			"academy_id": req.TenantID,
		},
	}
	if req.Customer.Email != "" {
		params.ReceiptEmail = stripeapi.String(req.Customer.Email)
	}
	if desc := req.Metadata["description"]; desc != "" {
		params.Description = stripeapi.String(desc)
	}
	if req.PaymentID != "" {
		params.SetIdempotencyKey(req.PaymentID)
	}

	intent, err := d.client.V1PaymentIntents.Create(ctx, params)
	if err != nil {
		return nil, classify(err)
	}

	return &provider.InitiateResult{
		GatewayReference: intent.ID,
		ClientToken:      intent.ClientSecret,
	}, nil
}

// VerifyCallback authenticates the Stripe-Signature header and maps the event
func (d *Driver) VerifyCallback(_ context.Context, event provider.CallbackEvent) (*provider.CallbackVerdict, error) {
	evt, err := webhook.ConstructEventWithOptions(event.RawBody, event.Header(signatureHeader), d.webhookSecret,
		webhook.ConstructEventOptions{Tolerance: webhook.DefaultTolerance, IgnoreAPIVersionMismatch: true})
	if err != nil {
		return &provider.CallbackVerdict{Authentic: false}, nil
	}

	var obj eventObject
	if err := json.NewDecoder(bytes.NewReader(evt.Data.Raw)).Decode(&obj); err != nil {
		return nil, fmt.Errorf("stripe: decode event object: %w", err)
	}

	status, amount := mapEvent(string(evt.Type), obj)

	return &provider.CallbackVerdict{
		Authentic:            true,
		TargetStatus:         status,
		GatewayReference:     obj.intentID(),
		GatewayTransactionID: chargeID(obj),
		AmountConfirmed:      provider.NewMoney(amount, obj.Currency),
		RawStatus:            string(evt.Type),
	}, nil
}

// QueryStatus retrieves the PaymentIntent
func (d *Driver) QueryStatus(ctx context.Context, gatewayReference string) (*provider.StatusReport, error) {
	intent, err := d.client.V1PaymentIntents.Retrieve(ctx, gatewayReference, nil)
	if err != nil {
		return nil, classify(err)
	}

	status := mapIntentStatus(string(intent.Status))
	amount := intent.Amount
	if status == provider.StatusSucceeded && intent.AmountReceived > 0 {
		amount = intent.AmountReceived
	}

	var txID string
	if intent.LatestCharge != nil {
		txID = intent.LatestCharge.ID
	}

	return &provider.StatusReport{
		Status:               status,
		Amount:               provider.NewMoney(amount, string(intent.Currency)),
		RawStatus:            string(intent.Status),
		GatewayTransactionID: txID,
	}, nil
}

func mapEvent(eventType string, obj eventObject) (provider.PaymentStatus, int64) {
	switch eventType {
	case eventSucceeded:
		return provider.StatusSucceeded, obj.AmountReceived
	case eventProcessing:
		return provider.StatusProcessing, obj.Amount
	case eventPaymentFailed:
		return provider.StatusFailed, obj.Amount
	case eventCanceled:
		return provider.StatusCancelled, obj.Amount
	case eventChargeRefund:
		if obj.Refunded {
			return provider.StatusRefunded, obj.AmountRefunded
		}
		// partial refunds leave the payment succeeded
		return provider.StatusSucceeded, obj.Amount
	default:
		return mapIntentStatus(obj.Status), obj.Amount
	}
}

func mapIntentStatus(status string) provider.PaymentStatus {
	switch status {
	case statusSucceeded:
		return provider.StatusSucceeded
	case statusProcessing, statusRequiresCapture:
		return provider.StatusProcessing
	case statusCanceled:
		return provider.StatusCancelled
	case statusRequiresPaymentMethod, statusRequiresConfirmation, statusRequiresAction:
		return provider.StatusPending
	default:
		return provider.StatusPending
	}
}

func chargeID(obj eventObject) string {
	if obj.Object == "charge" {
		return obj.ID
	}
	if id, ok := obj.LatestCharge.(string); ok {
		return id
	}
	return ""
}

// classify maps stripe-go errors to the gateway error taxonomy
func classify(err error) error {
	var stripeErr *stripeapi.Error
	if !errors.As(err, &stripeErr) {
		return provider.Unavailable(Name, err)
	}
	if stripeErr.HTTPStatusCode == 0 || stripeErr.HTTPStatusCode >= 500 || stripeErr.HTTPStatusCode == http.StatusTooManyRequests {
		return &provider.GatewayError{Gateway: Name, Kind: provider.ErrGatewayUnavailable, StatusCode: stripeErr.HTTPStatusCode, Code: string(stripeErr.Code), Message: stripeErr.Msg}
	}
	return provider.Rejected(Name, stripeErr.HTTPStatusCode, string(stripeErr.Code), stripeErr.Msg)
}

func toStripeCurrency(currency string) string {
	return strings.ToLower(currency)
}
