// Package academypay is a multi-tenant payment orchestration service. Each
// academy (tenant) brings its own gateway credentials, and academypay sits
// between the academy's checkout and the gateways, keeping one authoritative
// record per payment.
//
// # Overview
//
// Gateways differ in how they start a payment, how they sign callbacks and
// how they report status. academypay hides those differences behind a
// single driver contract and a single payment lifecycle:
//
//	┌─────────────────┐    ┌─────────────────┐    ┌─────────────────┐
//	│                 │    │                 │    │                 │
//	│    Academies    │◄──►│   academypay    │◄──►│    Gateways     │
//	│   (tenants)     │    │                 │    │ EasyKash, ...   │
//	│                 │    │                 │    │                 │
//	└─────────────────┘    └─────────────────┘    └─────────────────┘
//
// # Supported Gateways
//
//   - EasyKash: hosted checkout for Egyptian cards and wallets, HMAC-SHA512 callbacks
//   - Paymob: intention API with HMAC-SHA512 transaction callbacks
//   - Stripe: checkout sessions with signed webhook events
//
// # Payment Lifecycle
//
// A payment starts as pending and ends in succeeded, failed or cancelled.
// A succeeded payment may later be refunded:
//
//	pending ──► processing ──► succeeded ──► refunded
//	   │            ├────────► failed
//	   │            └────────► cancelled
//	   └──────────────────────► cancelled
//
// Gateways that never report processing move pending straight to
// succeeded or failed; the record then passes through the implied
// processing step.
//
// Terminal records never change again. Every change is written with a
// compare-and-swap on the record version, so two callbacks racing for the
// same payment apply at most once, and the tenant is notified only after
// the write lands.
//
// # Callbacks
//
// Gateways post to /webhooks/{gateway}. The callback is routed to its
// payment, then checked in a fixed order:
//
//  1. the signature, with the credentials of the tenant that owns the payment
//  2. the confirmed amount and currency against the stored record
//  3. the state transition
//
// A forged callback changes nothing and is answered with the same plain
// acknowledgement as any other; the reason is only logged and audited. An
// amount mismatch never marks a payment succeeded.
//
// # Multi-Tenant Configuration
//
// Gateway credentials are stored per tenant in SQLite and loaded on every
// request; nothing is cached, so rotated credentials apply immediately and
// a tenant without a configuration fails closed:
//
//	academypay seed deploy/gateways.yaml
//
//	curl -X PUT https://pay.example.com/v1/gateways/easykash \
//	  -H "Authorization: Bearer $API_KEY" \
//	  -H "X-Tenant-ID: academy-a" \
//	  -d '{"enabled":true,"credentials":{"apiKey":"...","secretKey":"..."}}'
//
// # Creating a Payment
//
//	curl -X POST https://pay.example.com/v1/payments \
//	  -H "Authorization: Bearer $API_KEY" \
//	  -H "X-Tenant-ID: academy-a" \
//	  -H "Idempotency-Key: order-1042" \
//	  -d '{"gateway":"easykash","amount":{"amount":50000,"currency":"EGP"},
//	       "idempotencyKey":"order-1042","returnUrl":"https://academy-a.example/done"}'
//
// Repeating the call with the same key returns the original payment.
// Amounts are integer minor units.
//
// # Running
//
//	academypay serve --reconcile-every 5m
//	academypay reconcile --stale --older-than 30m
//	academypay methods academy-a
//
// Configuration is read from the environment, optionally from a .env file.
// See infra/config for the variables.
package academypay
