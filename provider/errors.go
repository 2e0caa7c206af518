package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrGatewayUnavailable is a transient failure (network, timeout, 5xx).
	// Callers may retry with the same idempotency key.
	ErrGatewayUnavailable = errors.New("gateway unavailable")
	// ErrGatewayRejected means the gateway refused the request.
	ErrGatewayRejected = errors.New("gateway rejected request")
	// ErrGatewayNotConfigured means the tenant has no enabled config for the gateway.
	ErrGatewayNotConfigured = errors.New("gateway not configured for tenant")
	// ErrUnknownGateway means no driver is registered under the name.
	ErrUnknownGateway = errors.New("unknown gateway")
	// ErrSignatureInvalid means a callback failed authentication.
	ErrSignatureInvalid = errors.New("callback signature invalid")
)

// GatewayError carries gateway context for a classified failure
type GatewayError struct {
	Gateway    string
	Kind       error
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *GatewayError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Gateway, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (http %d)", e.StatusCode)
	}
	if e.Code != "" {
		msg += " [" + e.Code + "]"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the class sentinel and the cause to errors.Is/As.
func (e *GatewayError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Unavailable wraps a transient failure for the named gateway.
func Unavailable(gateway string, err error) error {
	return &GatewayError{Gateway: gateway, Kind: ErrGatewayUnavailable, Err: err}
}

// Rejected builds a rejection carrying the gateway's own code and message.
func Rejected(gateway string, statusCode int, code, message string) error {
	return &GatewayError{Gateway: gateway, Kind: ErrGatewayRejected, StatusCode: statusCode, Code: code, Message: message}
}

// ClassifyStatus maps an HTTP status from a gateway to the error taxonomy.
// It returns nil for 2xx.
func ClassifyStatus(gateway string, statusCode int, message string) error {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return nil
	case statusCode == 408 || statusCode == 429 || statusCode >= 500:
		return &GatewayError{Gateway: gateway, Kind: ErrGatewayUnavailable, StatusCode: statusCode, Message: message}
	default:
		return Rejected(gateway, statusCode, "", message)
	}
}
