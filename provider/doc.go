// Package provider defines the contract between academypay and payment
// gateways, and the machinery that binds a gateway to a tenant.
//
// # Core Concepts
//
//   - Driver: a gateway adapter bound to one tenant's credentials. It can
//     start a payment, authenticate and read a callback, and query status.
//   - DriverFactory: builds drivers for one gateway family and describes the
//     credentials it needs through RequiredConfig.
//   - Registry: maps gateway names to factories. It is filled once at
//     startup and frozen; lookups after Freeze take no locks.
//   - TenantFactory: loads a tenant's configuration from a ConfigSource on
//     every call and hands back a fresh driver. Unknown, unconfigured or
//     disabled gateways fail closed with a GatewayError.
//   - Money: integer minor units plus an ISO 4217 currency.
//
// # Adding a Gateway
//
// A gateway package exposes a factory and is registered by the binary:
//
//	ek, err := easykash.NewFactory(easykash.Options{NodeID: nodeID})
//	if err != nil {
//	    return err
//	}
//	registry, err := provider.NewRegistry(
//	    ek,
//	    paymob.NewFactory(paymob.Options{}),
//	    stripe.NewFactory(stripe.Options{}),
//	)
//	if err != nil {
//	    return err
//	}
//	registry.Freeze()
//
// There is no init-time self registration.
//
// # Errors
//
// Drivers report failures as *GatewayError. Match them with errors.Is
// against the package sentinels:
//
//	if errors.Is(err, provider.ErrGatewayUnavailable) {
//	    // transient: retry later, nothing was charged
//	}
//
// ErrGatewayRejected means the gateway refused the request for good.
// ErrSignatureInvalid means a callback failed authentication and must not
// be acted upon.
//
// # Callback Verification
//
// Signatures are compared with hmac.Equal through EqualHMAC. A driver never
// reports a callback as Authentic unless its signature matched the
// credentials of the tenant that owns the payment.
package provider
