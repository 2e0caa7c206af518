package easykash

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mstgnz/academypay/provider"
)

const (
	// Gateway name used in the registry and webhook routes
	Name = "easykash"

	// API URLs
	apiSandboxURL    = "https://sandbox.easykash.net"
	apiProductionURL = "https://back.easykash.net"

	// API Endpoints
	endpointPay     = "/api/directpayv1/pay"
	endpointInquire = "/api/cash-api/inquire"

	// EasyKash Status Codes
	statusNew       = "NEW"
	statusPending   = "PENDING"
	statusPaid      = "PAID"
	statusDelivered = "DELIVERED"
	statusExpired   = "EXPIRED"
	statusFailed    = "FAILED"
	statusCanceled  = "CANCELED"
	statusRefunded  = "REFUNDED"

	// Default Values
	defaultCashExpiryHours = 72
	defaultCustomerName    = "Customer"
	defaultPhone           = "01000000000"
	defaultTimeout         = 30 * time.Second
)

// Options configures the EasyKash factory
type Options struct {
	// BaseURL overrides the environment based API URL
	BaseURL string
	Timeout time.Duration
	// NodeID keeps customer references unique across instances (0-1023)
	NodeID int64
}

// Factory builds EasyKash drivers
type Factory struct {
	opts Options
	node *snowflake.Node
}

// NewFactory creates the EasyKash driver factory
func NewFactory(opts Options) (*Factory, error) {
	if opts.Timeout == 0 {
		opts.Timeout = defaultTimeout
	}
	node, err := snowflake.NewNode(opts.NodeID)
	if err != nil {
		return nil, fmt.Errorf("easykash: reference generator: %w", err)
	}
	return &Factory{opts: opts, node: node}, nil
}

func (f *Factory) Name() string { return Name }

// RequiredConfig returns the credentials a tenant must configure
func (f *Factory) RequiredConfig() []provider.ConfigField {
	return []provider.ConfigField{
		{
			Key:         "apiKey",
			Required:    true,
			Type:        "string",
			Description: "EasyKash API key sent as the Authorization header",
			Example:     "ek_live_xxxxxxxx",
			MinLength:   8,
		},
		{
			Key:         "secretKey",
			Required:    true,
			Type:        "string",
			Description: "EasyKash HMAC secret used to sign callbacks",
			Example:     "ek_secret_xxxxxxxx",
			MinLength:   8,
		},
		{
			Key:         "cashExpiryHours",
			Required:    false,
			Type:        "number",
			Description: "Hours before a cash voucher expires",
			Example:     "72",
		},
		{
			Key:         "paymentOptions",
			Required:    false,
			Type:        "string",
			Description: "Comma separated EasyKash payment option ids",
			Example:     "2,4,5",
			Pattern:     `^\d+(,\d+)*$`,
		},
	}
}

// New binds a driver to one tenant's credentials
func (f *Factory) New(cfg provider.GatewayConfig) (provider.Driver, error) {
	apiKey := cfg.Credential("apiKey")
	secretKey := cfg.Credential("secretKey")
	if apiKey == "" {
		return nil, errors.New("easykash: apiKey is required")
	}
	if secretKey == "" {
		return nil, errors.New("easykash: secretKey is required")
	}

	baseURL := f.opts.BaseURL
	if baseURL == "" {
		baseURL = apiSandboxURL
		if cfg.IsProduction() {
			baseURL = apiProductionURL
		}
	}

	cashExpiry := defaultCashExpiryHours
	if v := cfg.Credential("cashExpiryHours"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cashExpiry = n
		}
	}

	var options []int
	if v := cfg.Credential("paymentOptions"); v != "" {
		for _, part := range strings.Split(v, ",") {
			if n, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
				options = append(options, n)
			}
		}
	}

	httpCfg := provider.CreateHTTPClientConfig(Name, baseURL, f.opts.Timeout)
	httpCfg.DefaultHeaders["Authorization"] = apiKey

	return &Driver{
		secretKey:       secretKey,
		cashExpiryHours: cashExpiry,
		paymentOptions:  options,
		node:            f.node,
		client:          provider.NewGatewayHTTPClient(httpCfg),
	}, nil
}

// CallbackReference returns the customerReference claimed by a callback
func (f *Factory) CallbackReference(event provider.CallbackEvent) (string, error) {
	fields, err := decodeFields(event.RawBody)
	if err != nil {
		return "", fmt.Errorf("easykash: malformed callback: %w", err)
	}
	ref := fields["customerReference"]
	if ref == "" {
		return "", errors.New("easykash: callback has no customerReference")
	}
	return ref, nil
}

// Driver talks to the EasyKash direct pay API for one tenant
type Driver struct {
	secretKey       string
	cashExpiryHours int
	paymentOptions  []int
	node            *snowflake.Node
	client          *provider.GatewayHTTPClient
}

type payRequest struct {
	Amount            jsonNumber `json:"amount"`
	Currency          string     `json:"currency"`
	CashExpiry        int        `json:"cashExpiry"`
	Name              string     `json:"name"`
	Email             string     `json:"email"`
	Mobile            string     `json:"mobile"`
	RedirectURL       string     `json:"redirectUrl"`
	CustomerReference int64      `json:"customerReference"`
	PaymentOptions    []int      `json:"paymentOptions,omitempty"`
}

type payResponse struct {
	RedirectURL string `json:"redirectUrl"`
	Error       string `json:"error"`
	Message     string `json:"message"`
}

type inquireResponse struct {
	Status            string              `json:"status"`
	Amount            provider.FlexString `json:"Amount"`
	Currency          string              `json:"currency"`
	EasykashRef       provider.FlexString `json:"easykashRef"`
	CustomerReference provider.FlexString `json:"customerReference"`
	PaymentMethod     string              `json:"PaymentMethod"`
	Voucher           string              `json:"voucher"`
}

// Initiate creates a hosted payment and returns the EasyKash redirect URL
func (d *Driver) Initiate(ctx context.Context, req provider.InitiateRequest) (*provider.InitiateResult, error) {
	if req.Amount.Amount <= 0 {
		return nil, provider.Rejected(Name, 0, "invalid_amount", "amount must be greater than 0")
	}
	if req.Customer.Email == "" {
		return nil, provider.Rejected(Name, 0, "invalid_customer", "customer email is required")
	}
	if provider.CurrencyExponent(req.Amount.Currency) != 2 {
		return nil, provider.Rejected(Name, 0, "unsupported_currency", "currency "+req.Amount.Currency+" is not supported")
	}

	name := req.Customer.Name
	if name == "" {
		name = defaultCustomerName
	}

	reference := d.node.Generate().Int64()
	body := payRequest{
		Amount:            jsonNumber(req.Amount.MajorString()),
		Currency:          req.Amount.Currency,
		CashExpiry:        d.cashExpiryHours,
		Name:              name,
		Email:             req.Customer.Email,
		Mobile:            formatPhone(req.Customer.PhoneNumber),
		RedirectURL:       req.ReturnURL,
		CustomerReference: reference,
		PaymentOptions:    d.paymentOptions,
	}

	resp, err := d.client.SendJSON(ctx, &provider.HTTPRequest{
		Method:   http.MethodPost,
		Endpoint: endpointPay,
		Body:     body,
	})
	if err != nil {
		return nil, err
	}

	var pay payResponse
	if err := d.client.ParseJSONResponse(resp, &pay); err != nil {
		return nil, err
	}

	if pay.Error != "" || pay.RedirectURL == "" {
		msg := pay.Error
		if msg == "" {
			msg = pay.Message
		}
		if msg == "" {
			msg = "no redirect url returned"
		}
		return nil, provider.Rejected(Name, resp.StatusCode, "", msg)
	}

	return &provider.InitiateResult{
		GatewayReference: strconv.FormatInt(reference, 10),
		RedirectURL:      pay.RedirectURL,
	}, nil
}

// VerifyCallback authenticates the signatureHash field and maps the status
func (d *Driver) VerifyCallback(_ context.Context, event provider.CallbackEvent) (*provider.CallbackVerdict, error) {
	fields, err := decodeFields(event.RawBody)
	if err != nil {
		return &provider.CallbackVerdict{Authentic: false}, nil
	}

	if !VerifySignature(event.RawBody, fields["signatureHash"], d.secretKey) {
		return &provider.CallbackVerdict{Authentic: false}, nil
	}

	// Amount is signed, currency is not. The amount is read in cents and
	// reported without a currency, so the payment's own currency applies.
	var amount provider.Money
	if fields["Amount"] != "" {
		if amount, err = provider.ParseMajor(fields["Amount"], ""); err != nil {
			return nil, fmt.Errorf("easykash: %w", err)
		}
	}

	return &provider.CallbackVerdict{
		Authentic:            true,
		TargetStatus:         mapStatus(fields["status"]),
		GatewayReference:     fields["customerReference"],
		GatewayTransactionID: fields["easykashRef"],
		AmountConfirmed:      amount,
		RawStatus:            fields["status"],
	}, nil
}

// QueryStatus inquires about a payment by customer reference
func (d *Driver) QueryStatus(ctx context.Context, gatewayReference string) (*provider.StatusReport, error) {
	reference, err := strconv.ParseInt(gatewayReference, 10, 64)
	if err != nil {
		return nil, provider.Rejected(Name, 0, "invalid_reference", "customer reference must be numeric")
	}

	resp, err := d.client.SendJSON(ctx, &provider.HTTPRequest{
		Method:   http.MethodPost,
		Endpoint: endpointInquire,
		Body:     map[string]int64{"customerReference": reference},
	})
	if err != nil {
		return nil, err
	}

	var inquiry inquireResponse
	if err := d.client.ParseJSONResponse(resp, &inquiry); err != nil {
		return nil, err
	}

	var amount provider.Money
	if inquiry.Amount != "" {
		if amount, err = provider.ParseMajor(string(inquiry.Amount), inquiry.Currency); err != nil {
			return nil, provider.Unavailable(Name, err)
		}
	}

	return &provider.StatusReport{
		Status:               mapStatus(inquiry.Status),
		Amount:               amount,
		RawStatus:            inquiry.Status,
		GatewayTransactionID: string(inquiry.EasykashRef),
	}, nil
}

func mapStatus(status string) provider.PaymentStatus {
	switch strings.ToUpper(status) {
	case statusPaid, statusDelivered:
		return provider.StatusSucceeded
	case statusNew, statusPending:
		return provider.StatusPending
	case statusCanceled:
		return provider.StatusCancelled
	case statusRefunded:
		return provider.StatusRefunded
	case statusExpired, statusFailed:
		return provider.StatusFailed
	default:
		return provider.StatusPending
	}
}

// jsonNumber writes a decimal string as a bare JSON number.
type jsonNumber string

func (n jsonNumber) MarshalJSON() ([]byte, error) {
	if n == "" {
		return []byte("0"), nil
	}
	return []byte(n), nil
}

// formatPhone normalizes to the 11 digit Egyptian mobile format EasyKash
// requires, falling back to a placeholder for anything else.
func formatPhone(phone string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	p := digits.String()

	switch {
	case strings.HasPrefix(p, "0020") && len(p) > 12:
		p = p[4:]
	case strings.HasPrefix(p, "20") && len(p) > 10:
		p = p[2:]
	}
	if p != "" && !strings.HasPrefix(p, "0") {
		p = "0" + p
	}

	if len(p) == 11 && strings.HasPrefix(p, "01") && strings.ContainsRune("0125", rune(p[2])) {
		return p
	}
	return defaultPhone
}
