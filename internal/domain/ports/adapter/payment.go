package adapter

import "context"

// Checkout is the gateway's answer to a payment request.
type Checkout struct {
	PaymentID string
	URL       string
}

// PaymentGateway creates hosted checkout sessions. Webhook verification and
// settlement semantics belong to the processor, not to us.
type PaymentGateway interface {
	CreateCheckout(ctx context.Context, amount int64, currency, description string) (*Checkout, error)
}
