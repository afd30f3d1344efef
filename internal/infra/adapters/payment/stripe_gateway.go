// File: internal/infra/adapters/payment/stripe_gateway.go
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"telegram-llm-bot/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*StripeGateway)(nil)

// StripeGateway implements adapter.PaymentGateway over Checkout Sessions.
// Our own ulid travels in the session metadata so the webhook callback can
// name the pending payment it settles.
type StripeGateway struct {
	secretKey   string
	callbackURL string
	base        string
	client      *http.Client
}

func NewStripeGateway(secretKey, callbackURL string) (*StripeGateway, error) {
	if secretKey == "" {
		return nil, errors.New("stripe secret key empty")
	}
	if _, err := url.Parse(callbackURL); err != nil {
		return nil, fmt.Errorf("invalid callback url: %w", err)
	}
	return &StripeGateway{
		secretKey:   secretKey,
		callbackURL: callbackURL,
		base:        "https://api.stripe.com/v1",
		client:      &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (s *StripeGateway) Name() string { return "stripe" }

func (s *StripeGateway) CreateCheckout(ctx context.Context, amount int64, currency, description string) (*adapter.Checkout, error) {
	paymentID := ulid.Make().String()

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", s.callbackURL)
	form.Set("metadata[payment_id]", paymentID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", currency)
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(amount, 10))
	form.Set("line_items[0][price_data][product_data][name]", description)

	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, s.base+"/checkout/sessions", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+s.secretKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out struct {
		ID  string `json:"id"`
		URL string `json:"url"`
		Err *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if out.Err != nil {
		return nil, fmt.Errorf("stripe: %s", out.Err.Message)
	}
	if out.URL == "" {
		return nil, errors.New("stripe: no checkout url")
	}
	return &adapter.Checkout{PaymentID: paymentID, URL: out.URL}, nil
}
