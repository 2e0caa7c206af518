package notify

import (
	"context"

	"github.com/mstgnz/academypay/infra/logger"
	"github.com/mstgnz/academypay/payment"
)

// LogSink writes notifications to the system log
type LogSink struct{}

func (LogSink) Deliver(_ context.Context, n payment.Notification) error {
	logger.WithPayment(n.TenantID, n.Gateway, n.PaymentID).
		AddField("notification_id", n.ID).
		AddField("previous_status", string(n.Previous)).
		AddField("status", string(n.Status)).
		AddField("amount", n.Amount.String()).
		AddField("version", n.Version).
		Info("payment status changed")
	return nil
}
