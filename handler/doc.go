// Package handler provides the HTTP handlers of the academypay API.
//
// Handlers bridge HTTP and the payment service. They decode requests, take
// the tenant from the request context set by middle.TenantMiddleware, and map
// the payment error taxonomy to status codes:
//
//	ErrInvalidRequest                     400
//	ErrSignatureInvalid                   401
//	ErrGatewayRejected                    402
//	ErrTenantMismatch                     403
//	ErrPaymentNotFound, ErrUnknownGateway 404
//	ErrInvalidEdge, ErrAlreadyTerminal    409
//	ErrGatewayNotConfigured               422
//	ErrGatewayUnavailable                 503
//	context.DeadlineExceeded              504
//
// # Payments
//
//	paymentHandler := handler.NewPaymentHandler(service, auditRecorder)
//
//	r.Post("/v1/payments", paymentHandler.CreatePayment)
//	r.Get("/v1/payments/{paymentID}", paymentHandler.GetPayment)
//	r.Get("/v1/payments/{paymentID}/status", paymentHandler.GetPaymentStatus)
//	r.Post("/v1/payments/{paymentID}/cancel", paymentHandler.CancelPayment)
//	r.Get("/v1/payments/{paymentID}/audit", paymentHandler.GetPaymentAudit)
//	r.Get("/v1/payment-methods", paymentHandler.ListPaymentMethods)
//
// Creating a payment:
//
//	POST /v1/payments
//	Headers:
//	  Authorization: Bearer your-api-key
//	  X-Tenant-ID: academy-a
//	  Idempotency-Key: order-1042
//	  Content-Type: application/json
//
//	Body:
//	{
//	  "gateway": "easykash",
//	  "amount": {"amount": 5000, "currency": "EGP"},
//	  "customer": {"name": "Mona Adel", "email": "mona@example.com"},
//	  "returnUrl": "https://academy-a.example.com/checkout/done"
//	}
//
// Amounts are integer minor units. Repeating the request with the same
// Idempotency-Key returns the original payment without calling the gateway
// again.
//
// # Webhooks
//
// Gateways post to /webhooks/{gateway}. The raw body, headers and query are
// handed to the service, which authenticates them with the owning tenant's
// secret. Every callback that needs no retry gets the same 200
// acknowledgement, forged ones included; the status table above applies to
// the /v1 API only. Temporary failures answer 500, 503 or 504.
//
// # Gateway configuration
//
//	r.Get("/v1/gateways", configHandler.ListGateways)
//	r.Put("/v1/gateways/{gateway}", configHandler.SetGateway)
//	r.Delete("/v1/gateways/{gateway}", configHandler.DeleteGateway)
//
// Stored credentials are never returned unmasked.
package handler
