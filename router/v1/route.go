package v1

import (
	"github.com/go-chi/chi/v5"
	"github.com/mstgnz/academypay/handler"
	"github.com/mstgnz/academypay/infra/middle"
)

// Routes registers the tenant-scoped API. Every route requires X-Tenant-ID.
func Routes(r chi.Router, payments *handler.PaymentHandler, gateways *handler.ConfigHandler) {
	r.Use(middle.TenantMiddleware())

	r.Route("/payments", func(r chi.Router) {
		r.Post("/", payments.CreatePayment)
		r.Get("/{paymentID}", payments.GetPayment)
		r.Get("/{paymentID}/status", payments.GetPaymentStatus)
		r.Post("/{paymentID}/cancel", payments.CancelPayment)
		r.Get("/{paymentID}/audit", payments.GetPaymentAudit)
	})

	r.Get("/payment-methods", payments.ListPaymentMethods)

	if gateways != nil {
		r.Route("/gateways", func(r chi.Router) {
			r.Get("/", gateways.ListGateways)
			r.Get("/available", gateways.ListAvailable)
			r.Put("/{gateway}", gateways.SetGateway)
			r.Delete("/{gateway}", gateways.DeleteGateway)
		})
	}
}
