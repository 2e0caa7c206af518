package provider

import (
	"context"
	"net/http"
	"strings"
)

// PaymentStatus represents the current status of a payment
type PaymentStatus string

const (
	StatusPending    PaymentStatus = "pending"
	StatusProcessing PaymentStatus = "processing"
	StatusSucceeded  PaymentStatus = "succeeded"
	StatusFailed     PaymentStatus = "failed"
	StatusCancelled  PaymentStatus = "cancelled"
	StatusRefunded   PaymentStatus = "refunded"
)

// Valid reports whether s is one of the known lifecycle statuses.
func (s PaymentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusSucceeded, StatusFailed, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// Terminal reports whether no further transition may leave s.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// ConfigField represents a required configuration field for a gateway driver
type ConfigField struct {
	Key         string `json:"key"`
	Required    bool   `json:"required"`
	Type        string `json:"type"` // "string", "number", "url", "email", "boolean"
	Description string `json:"description"`
	Example     string `json:"example"`
	Pattern     string `json:"pattern,omitempty"`   // regex pattern for validation
	MinLength   int    `json:"minLength,omitempty"` // minimum length for string fields
	MaxLength   int    `json:"maxLength,omitempty"` // maximum length for string fields
}

// Customer represents the payer
type Customer struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name" validate:"omitempty,max=120"`
	Email       string `json:"email" validate:"omitempty,email"`
	PhoneNumber string `json:"phoneNumber,omitempty" validate:"omitempty,max=32"`
}

// DisplayMetadata is what a client needs to present a gateway as a payment option
type DisplayMetadata struct {
	Label       string   `json:"label" yaml:"label"`
	Description string   `json:"description,omitempty" yaml:"description"`
	Icon        string   `json:"icon,omitempty" yaml:"icon"`
	Methods     []string `json:"methods,omitempty" yaml:"methods"`
}

// GatewayConfig is one tenant's configuration for one gateway.
// Credentials belong to exactly one tenant and are never shared.
type GatewayConfig struct {
	TenantID    string            `json:"tenantId" validate:"required"`
	Gateway     string            `json:"gateway" validate:"required"`
	Enabled     bool              `json:"enabled"`
	Priority    int               `json:"priority" validate:"gte=0"`
	Environment string            `json:"environment" validate:"omitempty,oneof=sandbox test production"`
	Credentials map[string]string `json:"-"`
	Display     DisplayMetadata   `json:"display"`
}

// Credential returns the named credential or an empty string.
func (c GatewayConfig) Credential(key string) string {
	if c.Credentials == nil {
		return ""
	}
	return c.Credentials[key]
}

// IsProduction reports whether the config targets the live gateway endpoints.
func (c GatewayConfig) IsProduction() bool {
	return c.Environment == "production"
}

// Clone returns a deep copy so callers can't mutate a source's state.
func (c GatewayConfig) Clone() GatewayConfig {
	out := c
	if c.Credentials != nil {
		out.Credentials = make(map[string]string, len(c.Credentials))
		for k, v := range c.Credentials {
			out.Credentials[k] = v
		}
	}
	if c.Display.Methods != nil {
		out.Display.Methods = append([]string(nil), c.Display.Methods...)
	}
	return out
}

// InitiateRequest contains everything a driver needs to start a payment
type InitiateRequest struct {
	PaymentID       string
	TenantID        string
	Amount          Money
	Customer        Customer
	ReturnURL       string
	NotificationURL string
	Metadata        map[string]string
}

// InitiateResult is the gateway's synchronous answer to Initiate
type InitiateResult struct {
	GatewayReference     string
	GatewayTransactionID string
	RedirectURL          string
	ClientToken          string
}

// CallbackEvent is one inbound webhook delivery. Nothing in it is trusted
// until the gateway's signature check has passed.
type CallbackEvent struct {
	Gateway         string
	RawBody         []byte
	Headers         map[string]string
	Query           map[string]string
	ClaimedTenantID string
	RemoteIP        string
}

// Header looks a header up case-insensitively.
func (e CallbackEvent) Header(name string) string {
	if v, ok := e.Headers[http.CanonicalHeaderKey(name)]; ok {
		return v
	}
	for k, v := range e.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// CallbackVerdict is a driver's reading of a callback
type CallbackVerdict struct {
	Authentic            bool
	TargetStatus         PaymentStatus
	GatewayReference     string
	GatewayTransactionID string
	AmountConfirmed      Money
	RawStatus            string
}

// StatusReport is the gateway's view of a payment, used for reconciliation
type StatusReport struct {
	Status               PaymentStatus `json:"status"`
	Amount               Money         `json:"amount"`
	RawStatus            string        `json:"rawStatus"`
	GatewayTransactionID string        `json:"gatewayTransactionId,omitempty"`
}

// Driver is a gateway adapter bound to one tenant's credentials
type Driver interface {
	// Initiate starts a payment with the gateway
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error)

	// VerifyCallback authenticates a callback and normalizes its status
	VerifyCallback(ctx context.Context, event CallbackEvent) (*CallbackVerdict, error)

	// QueryStatus asks the gateway for the current state of a payment
	QueryStatus(ctx context.Context, gatewayReference string) (*StatusReport, error)
}

// DriverFactory builds drivers for one gateway family
type DriverFactory interface {
	// Name is the registry key, e.g. "easykash"
	Name() string

	// RequiredConfig describes the credentials a tenant must supply
	RequiredConfig() []ConfigField

	// New binds a fresh driver to the given tenant configuration
	New(cfg GatewayConfig) (Driver, error)

	// CallbackReference extracts the claimed gateway reference from an
	// unverified callback so the owning payment can be located.
	CallbackReference(event CallbackEvent) (string, error)
}

// ConfigSource returns gateway configuration per tenant. It is read-only.
type ConfigSource interface {
	GatewayConfig(ctx context.Context, tenantID, gateway string) (*GatewayConfig, error)
	TenantGateways(ctx context.Context, tenantID string) ([]GatewayConfig, error)
}
