// Package poller re-checks every still-pending order against the gateway.
// It is the slow safety net behind the webhook: both paths settle through the
// same idempotent engine entry point, so racing the webhook is harmless.
package poller

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/bathanov/lingogate/internal/gateway"
	"github.com/bathanov/lingogate/internal/ledger"
	"github.com/bathanov/lingogate/internal/metrics"
	"github.com/bathanov/lingogate/store"
)

// StatusChecker is the gateway read the poller depends on.
type StatusChecker interface {
	InvoiceStatus(ctx context.Context, orderID string) (string, error)
}

type Poller struct {
	engine   *ledger.Engine
	gateway  StatusChecker
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

type Config struct {
	Interval time.Duration
}

func NewPoller(engine *ledger.Engine, gw StatusChecker, config Config) *Poller {
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Poller{
		engine:   engine,
		gateway:  gw,
		interval: config.Interval,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (p *Poller) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	log.Printf("Payment poller started, interval %s", p.interval)

	p.wg.Add(1)
	go p.loop()
}

func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	log.Println("Stopping payment poller...")
	p.cancel()
	p.wg.Wait()
	log.Println("Payment poller stopped")
}

func (p *Poller) loop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.RunCycle(p.ctx)
		}
	}
}

// RunCycle checks every pending order once. Errors are logged and left for
// the next cycle; a cancelled context abandons the rest of the batch.
func (p *Poller) RunCycle(ctx context.Context) {
	orders, err := p.engine.PendingOrders(ctx)
	if err != nil {
		log.Printf("Poller: list pending orders: %v", err)
		metrics.PollErrors.Inc()
		return
	}

	for _, order := range orders {
		if ctx.Err() != nil {
			return
		}

		statusCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		status, err := p.gateway.InvoiceStatus(statusCtx, order.OrderID)
		cancel()
		if err != nil {
			log.Printf("Poller: status of %s: %v", order.OrderID, err)
			metrics.PollErrors.Inc()
			continue
		}
		if status != gateway.StatusPaid {
			continue
		}

		res, err := p.engine.ApplyPayment(ctx, order.OrderID)
		switch {
		case errors.Is(err, store.ErrUnknownOrder):
			// The order vanished between listing and settling; nothing to do.
			metrics.PaymentsUnknownOrder.Inc()
		case err != nil:
			log.Printf("Poller: settle %s: %v", order.OrderID, err)
			metrics.PollErrors.Inc()
		case res.AlreadySettled:
			metrics.PaymentsDuplicate.Inc()
		default:
			log.Printf("Poller: order %s settled, +%d days for user %d", order.OrderID, res.Days, res.UserID)
			metrics.PaymentsSettled.Inc()
		}
	}

	metrics.PollCycles.Inc()
}
