package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PaymentsSettled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lingogate_payments_settled_total",
		Help: "Orders settled with exactly one grant.",
	})

	PaymentsDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lingogate_payments_duplicate_total",
		Help: "Settle attempts that found the order already settled.",
	})

	PaymentsUnknownOrder = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lingogate_payments_unknown_order_total",
		Help: "Settle attempts referencing an order id the ledger does not know.",
	})

	WebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lingogate_webhook_deliveries_total",
		Help: "Webhook deliveries by outcome.",
	}, []string{"outcome"})

	PollCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lingogate_poll_cycles_total",
		Help: "Completed poll cycles over pending orders.",
	})

	PollErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lingogate_poll_errors_total",
		Help: "Gateway or store errors during polling, retried next cycle.",
	})

	CodesRedeemed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lingogate_codes_redeemed_total",
		Help: "Successful code redemptions.",
	})
)
