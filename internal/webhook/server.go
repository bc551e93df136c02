// Package webhook receives asynchronous payment notifications from the
// gateway and funnels them into the engine's idempotent settle path.
package webhook

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/bathanov/lingogate/internal/ledger"
	"github.com/bathanov/lingogate/internal/metrics"
	"github.com/bathanov/lingogate/store"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	engine *ledger.Engine
	router chi.Router
}

func NewServer(engine *ledger.Engine) *Server {
	s := &Server{engine: engine}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/webhook/rongrid", s.handleRongrid)

	s.router = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

type rongridEvent struct {
	Data struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"data"`
}

// handleRongrid acknowledges every well-formed delivery with 200, including
// duplicates and unknown orders, so the gateway does not build a retry storm.
// Failures are logged and counted instead.
func (s *Server) handleRongrid(w http.ResponseWriter, r *http.Request) {
	var ev rongridEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}
	orderID := strings.TrimSpace(ev.Data.ID)
	if orderID == "" {
		http.Error(w, "missing order id", http.StatusBadRequest)
		return
	}

	if !strings.EqualFold(ev.Data.Status, "paid") {
		metrics.WebhookDeliveries.WithLabelValues("ignored").Inc()
		w.WriteHeader(http.StatusOK)
		return
	}

	res, err := s.engine.ApplyPayment(r.Context(), orderID)
	switch {
	case errors.Is(err, store.ErrUnknownOrder):
		log.Printf("Webhook: unknown order %s", orderID)
		metrics.PaymentsUnknownOrder.Inc()
		metrics.WebhookDeliveries.WithLabelValues("unknown_order").Inc()
	case err != nil:
		log.Printf("Webhook: settle %s failed: %v", orderID, err)
		metrics.WebhookDeliveries.WithLabelValues("error").Inc()
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	case res.AlreadySettled:
		metrics.PaymentsDuplicate.Inc()
		metrics.WebhookDeliveries.WithLabelValues("duplicate").Inc()
	default:
		log.Printf("Webhook: order %s settled, +%d days for user %d", orderID, res.Days, res.UserID)
		metrics.PaymentsSettled.Inc()
		metrics.WebhookDeliveries.WithLabelValues("settled").Inc()
	}

	w.WriteHeader(http.StatusOK)
}
