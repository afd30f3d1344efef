package payment

import (
	"context"
	"fmt"
	"sync"

	"telegram-llm-bot/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*NoopPaymentGateway)(nil)

// NoopPaymentGateway is a simple in-memory gateway to use in tests.
type NoopPaymentGateway struct {
	mu  sync.Mutex
	seq int64
}

func NewNoopPaymentGateway() *NoopPaymentGateway {
	return &NoopPaymentGateway{}
}

func (g *NoopPaymentGateway) Name() string { return "noop" }

func (g *NoopPaymentGateway) CreateCheckout(ctx context.Context, amount int64, currency, description string) (*adapter.Checkout, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	id := fmt.Sprintf("noop-%d", g.seq)
	return &adapter.Checkout{PaymentID: id, URL: "https://example.test/pay/" + id}, nil
}
