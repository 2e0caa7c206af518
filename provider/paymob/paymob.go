package paymob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mstgnz/academypay/provider"
)

const (
	// Gateway name used in the registry and webhook routes
	Name = "paymob"

	// API URLs
	apiDefaultURL = "https://accept.paymob.com"

	// API Endpoints
	endpointIntention = "/v1/intention/"
	endpointAuthToken = "/api/auth/tokens"
	endpointInquiry   = "/api/ecommerce/orders/transaction_inquiry"
	checkoutPath      = "/unifiedcheckout/"

	// Default Values
	defaultTimeout     = 30 * time.Second
	defaultPlaceholder = "NA"
)

// Options configures the Paymob factory
type Options struct {
	// BaseURL overrides the default API URL for every tenant
	BaseURL string
	Timeout time.Duration
}

// Factory builds Paymob drivers
type Factory struct {
	opts Options
}

// NewFactory creates the Paymob driver factory
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
		{Key: "secretKey", Required: true, Type: "string", Description: "Paymob secret key for the intention API", Example: "egy_sk_test_xxx", MinLength: 8},
		{Key: "publicKey", Required: true, Type: "string", Description: "Paymob public key for unified checkout", Example: "egy_pk_test_xxx", MinLength: 8},
		{Key: "apiKey", Required: true, Type: "string", Description: "Paymob API key used for transaction inquiry", Example: "ZXlKaGJHY2lPaUpJVXpVeE1p...", MinLength: 8},
		{Key: "hmacSecret", Required: true, Type: "string", Description: "Paymob HMAC secret used to sign callbacks", Example: "A1B2C3D4E5F6", MinLength: 8},
		{Key: "integrationIds", Required: true, Type: "string", Description: "Comma separated integration ids", Example: "4123456,4123457", Pattern: `^\d+(,\s*\d+)*$`},
		{Key: "apiBaseUrl", Required: false, Type: "url", Description: "Regional Paymob API URL", Example: "https://ksa.paymob.com"},
	}
}

// New binds a driver to one tenant's credentials
func (f *Factory) New(cfg provider.GatewayConfig) (provider.Driver, error) {
	for _, key := range []string{"secretKey", "publicKey", "apiKey", "hmacSecret", "integrationIds"} {
		if cfg.Credential(key) == "" {
			return nil, fmt.Errorf("paymob: %s is required", key)
		}
	}

	var integrations []int64
	for _, part := range strings.Split(cfg.Credential("integrationIds"), ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("paymob: invalid integration id %q", part)
		}
		integrations = append(integrations, id)
	}

	baseURL := f.opts.BaseURL
	if baseURL == "" {
		baseURL = cfg.Credential("apiBaseUrl")
	}
	if baseURL == "" {
		baseURL = apiDefaultURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	return &Driver{
		baseURL:      baseURL,
		secretKey:    cfg.Credential("secretKey"),
		publicKey:    cfg.Credential("publicKey"),
		apiKey:       cfg.Credential("apiKey"),
		hmacSecret:   cfg.Credential("hmacSecret"),
		integrations: integrations,
		client:       provider.NewGatewayHTTPClient(provider.CreateHTTPClientConfig(Name, baseURL, f.opts.Timeout)),
	}, nil
}

// CallbackReference returns the Paymob order id claimed by a callback.
// order.id is covered by the callback hmac; merchant_order_id is not and
// is never used to locate a payment.
func (f *Factory) CallbackReference(event provider.CallbackEvent) (string, error) {
	obj, err := decodeObject(event.RawBody)
	if err != nil {
		return "", fmt.Errorf("paymob: malformed callback: %w", err)
	}
	ref := stringify(lookup(obj, "order.id"))
	if ref == "" {
		return "", errors.New("paymob: callback has no order id")
	}
	return ref, nil
}

// Driver talks to the Paymob intention API for one tenant
type Driver struct {
	baseURL      string
	secretKey    string
	publicKey    string
	apiKey       string
	hmacSecret   string
	integrations []int64
	client       *provider.GatewayHTTPClient
}

type intentionItem struct {
	Name     string `json:"name"`
	Amount   int64  `json:"amount"`
	Quantity int    `json:"quantity"`
}

type billingData struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	Country     string `json:"country"`
	City        string `json:"city"`
	Street      string `json:"street"`
	Building    string `json:"building"`
	Floor       string `json:"floor"`
	Apartment   string `json:"apartment"`
}

type intentionRequest struct {
	Amount           int64             `json:"amount"`
	Currency         string            `json:"currency"`
	PaymentMethods   []int64           `json:"payment_methods"`
	Items            []intentionItem   `json:"items"`
	BillingData      billingData       `json:"billing_data"`
	Extras           map[string]string `json:"extras,omitempty"`
	SpecialReference string            `json:"special_reference"`
	RedirectionURL   string            `json:"redirection_url,omitempty"`
	NotificationURL  string            `json:"notification_url,omitempty"`
}

type intentionResponse struct {
	ID               provider.FlexString `json:"id"`
	IntentionOrderID provider.FlexString `json:"intention_order_id"`
	ClientSecret     string              `json:"client_secret"`
	Detail           string              `json:"detail"`
}

type transaction struct {
	ID          provider.FlexString `json:"id"`
	Pending     bool                `json:"pending"`
	Success     bool                `json:"success"`
	IsVoided    bool                `json:"is_voided"`
	IsRefunded  bool                `json:"is_refunded"`
	AmountCents int64               `json:"amount_cents"`
	Currency    string              `json:"currency"`
	Order       struct {
		ID              provider.FlexString `json:"id"`
		MerchantOrderID string              `json:"merchant_order_id"`
	} `json:"order"`
	Data struct {
		Message string `json:"message"`
	} `json:"data"`
}

// Initiate creates a payment intention and returns the unified checkout URL
func (d *Driver) Initiate(ctx context.Context, req provider.InitiateRequest) (*provider.InitiateResult, error) {
	if req.Amount.Amount <= 0 {
		return nil, provider.Rejected(Name, 0, "invalid_amount", "amount must be greater than 0")
	}
	if req.PaymentID == "" {
		return nil, provider.Rejected(Name, 0, "invalid_reference", "payment id is required")
	}

	description := req.Metadata["description"]
	if description == "" {
		description = "Academy payment"
	}

	body := intentionRequest{
		Amount:         req.Amount.Amount,
		Currency:       req.Amount.Currency,
		PaymentMethods: d.integrations,
		Items: []intentionItem{
			{Name: description, Amount: req.Amount.Amount, Quantity: 1},
		},
		BillingData: buildBillingData(req.Customer),
		Extras: map[string]string{
			"payment_id": req.PaymentID,
			"academy_id": req.TenantID,
		},
		SpecialReference: req.PaymentID,
		RedirectionURL:   req.ReturnURL,
		NotificationURL:  req.NotificationURL,
	}

	resp, err := d.client.SendJSON(ctx, &provider.HTTPRequest{
		Method:   http.MethodPost,
		Endpoint: endpointIntention,
		Headers:  map[string]string{"Authorization": "Token " + d.secretKey},
		Body:     body,
	})
	if err != nil {
		return nil, err
	}

	var intention intentionResponse
	if err := d.client.ParseJSONResponse(resp, &intention); err != nil {
		return nil, err
	}
	if intention.ClientSecret == "" {
		msg := intention.Detail
		if msg == "" {
			msg = "no client secret returned"
		}
		return nil, provider.Rejected(Name, resp.StatusCode, "", msg)
	}
	if intention.IntentionOrderID == "" {
		return nil, provider.Rejected(Name, resp.StatusCode, "missing_order", "no intention order id returned")
	}

	return &provider.InitiateResult{
		GatewayReference:     intention.IntentionOrderID.String(),
		GatewayTransactionID: intention.ID.String(),
		ClientToken:          intention.ClientSecret,
		RedirectURL:          d.checkoutURL(intention.ClientSecret),
	}, nil
}

// VerifyCallback authenticates the hmac query parameter and maps the transaction
func (d *Driver) VerifyCallback(_ context.Context, event provider.CallbackEvent) (*provider.CallbackVerdict, error) {
	signature := event.Query["hmac"]
	if signature == "" {
		signature = event.Header("Hmac")
	}
	if !VerifySignature(event.RawBody, signature, d.hmacSecret) {
		return &provider.CallbackVerdict{Authentic: false}, nil
	}

	var envelope struct {
		Obj transaction `json:"obj"`
	}
	if err := json.Unmarshal(event.RawBody, &envelope); err != nil {
		return nil, fmt.Errorf("paymob: %w", err)
	}
	txn := envelope.Obj

	return &provider.CallbackVerdict{
		Authentic:            true,
		TargetStatus:         mapTransaction(txn),
		GatewayReference:     txn.Order.ID.String(),
		GatewayTransactionID: txn.ID.String(),
		AmountConfirmed:      provider.NewMoney(txn.AmountCents, txn.Currency),
		RawStatus:            rawStatus(txn),
	}, nil
}

// QueryStatus looks the latest transaction of a Paymob order up
func (d *Driver) QueryStatus(ctx context.Context, gatewayReference string) (*provider.StatusReport, error) {
	orderID, err := strconv.ParseInt(gatewayReference, 10, 64)
	if err != nil {
		return nil, provider.Rejected(Name, 0, "invalid_reference", "order id must be numeric")
	}

	token, err := d.authToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := d.client.SendJSON(ctx, &provider.HTTPRequest{
		Method:   http.MethodPost,
		Endpoint: endpointInquiry,
		Headers:  map[string]string{"Authorization": "Bearer " + token},
		Body:     map[string]int64{"order_id": orderID},
	})
	if err != nil {
		return nil, err
	}

	var txn transaction
	if err := d.client.ParseJSONResponse(resp, &txn); err != nil {
		return nil, err
	}

	return &provider.StatusReport{
		Status:               mapTransaction(txn),
		Amount:               provider.NewMoney(txn.AmountCents, txn.Currency),
		RawStatus:            rawStatus(txn),
		GatewayTransactionID: txn.ID.String(),
	}, nil
}

func (d *Driver) authToken(ctx context.Context) (string, error) {
	resp, err := d.client.SendJSON(ctx, &provider.HTTPRequest{
		Method:   http.MethodPost,
		Endpoint: endpointAuthToken,
		Body:     map[string]string{"api_key": d.apiKey},
	})
	if err != nil {
		return "", err
	}

	var auth struct {
		Token string `json:"token"`
	}
	if err := d.client.ParseJSONResponse(resp, &auth); err != nil {
		return "", err
	}
	if auth.Token == "" {
		return "", provider.Rejected(Name, resp.StatusCode, "auth_failed", "no token returned")
	}
	return auth.Token, nil
}

func (d *Driver) checkoutURL(clientSecret string) string {
	q := url.Values{}
	q.Set("publicKey", d.publicKey)
	q.Set("clientSecret", clientSecret)
	return d.baseURL + checkoutPath + "?" + q.Encode()
}

func mapTransaction(txn transaction) provider.PaymentStatus {
	switch {
	case txn.IsRefunded:
		return provider.StatusRefunded
	case txn.IsVoided:
		return provider.StatusCancelled
	case txn.Success:
		return provider.StatusSucceeded
	case txn.Pending:
		return provider.StatusProcessing
	default:
		return provider.StatusFailed
	}
}

func rawStatus(txn transaction) string {
	if txn.Data.Message != "" {
		return txn.Data.Message
	}
	return string(mapTransaction(txn))
}

func buildBillingData(c provider.Customer) billingData {
	b := billingData{
		FirstName:   defaultPlaceholder,
		LastName:    defaultPlaceholder,
		Email:       "na@na.com",
		PhoneNumber: defaultPlaceholder,
		Country:     "EG",
		City:        defaultPlaceholder,
		Street:      defaultPlaceholder,
		Building:    defaultPlaceholder,
		Floor:       defaultPlaceholder,
		Apartment:   defaultPlaceholder,
	}
	if name := strings.TrimSpace(c.Name); name != "" {
		first, last, found := strings.Cut(name, " ")
		b.FirstName = first
		b.LastName = first
		if found && strings.TrimSpace(last) != "" {
			b.LastName = strings.TrimSpace(last)
		}
	}
	if c.Email != "" {
		b.Email = c.Email
	}
	if c.PhoneNumber != "" {
		b.PhoneNumber = c.PhoneNumber
	}
	return b
}
