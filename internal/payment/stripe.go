package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"
)

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	// APIURL overrides the API endpoint, e.g. for stripe-mock.
	APIURL string
}

// Stripe implements Processor, Ledger and EventVerifier on Stripe Checkout.
type Stripe struct {
	webhookSecret string
}

func NewStripe(cfg StripeConfig) (*Stripe, error) {
	const op = "payment.NewStripe"

	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("%s: stripe secret key is required", op)
	}

	if cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("%s: stripe webhook secret is required", op)
	}

	stripe.Key = cfg.SecretKey

	if cfg.APIURL != "" {
		retries := int64(0)
		stripe.SetBackend(stripe.APIBackend, stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL:               stripe.String(cfg.APIURL),
			MaxNetworkRetries: &retries,
		}))
	}

	return &Stripe{webhookSecret: cfg.WebhookSecret}, nil
}

func (s *Stripe) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	const op = "payment.Stripe.CreateCheckoutSession"

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		SuccessURL:         stripe.String(req.SuccessURL),
		CancelURL:          stripe.String(req.CancelURL),
		Metadata:           req.Metadata,
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: req.Metadata,
		},
	}
	params.Context = ctx

	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
		params.PaymentIntentData.ReceiptEmail = stripe.String(req.CustomerEmail)
	}

	if !req.ExpiresAt.IsZero() {
		params.ExpiresAt = stripe.Int64(req.ExpiresAt.Unix())
	}

	for _, li := range req.LineItems {
		if li.Quantity <= 0 {
			continue
		}
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(li.Name),
		}
		if li.Description != "" {
			product.Description = stripe.String(li.Description)
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(req.Currency),
				UnitAmount:  stripe.Int64(li.UnitAmount),
				ProductData: product,
			},
			Quantity: stripe.Int64(li.Quantity),
		})
	}

	cs, err := session.New(params)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("%s: %w", op, wrapStripeErr(err))
	}

	return CheckoutSession{ID: cs.ID, URL: cs.URL}, nil
}

// CompletedCheckouts pages through every completed checkout session.
func (s *Stripe) CompletedCheckouts(ctx context.Context) ([]Checkout, error) {
	const op = "payment.Stripe.CompletedCheckouts"

	params := &stripe.CheckoutSessionListParams{
		Status: stripe.String(string(stripe.CheckoutSessionStatusComplete)),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(100)

	var out []Checkout

	it := session.List(params)
	for it.Next() {
		out = append(out, fromStripe(it.CheckoutSession()))
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, wrapStripeErr(err))
	}

	return out, nil
}

func (s *Stripe) VerifyEvent(payload []byte, signature string) (Event, error) {
	const op = "payment.Stripe.VerifyEvent"

	evt, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, fmt.Errorf("%s: %w: %w", op, ErrInvalidSignature, err)
	}

	out := Event{ID: evt.ID, Type: EventType(evt.Type)}

	switch out.Type {
	case EventCheckoutCompleted, EventCheckoutExpired, EventAsyncPaymentFailed:
		if evt.Data == nil {
			return Event{}, fmt.Errorf("%s: %w: missing data", op, ErrMalformedEvent)
		}
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &cs); err != nil {
			return Event{}, fmt.Errorf("%s: %w: %w", op, ErrMalformedEvent, err)
		}
		out.Checkout = fromStripe(&cs)
	}

	return out, nil
}

func fromStripe(cs *stripe.CheckoutSession) Checkout {
	c := Checkout{
		ID:            cs.ID,
		CustomerEmail: cs.CustomerEmail,
		AmountTotal:   cs.AmountTotal,
		Currency:      string(cs.Currency),
		PaymentStatus: string(cs.PaymentStatus),
		Metadata:      cs.Metadata,
	}

	if cs.Created > 0 {
		c.CreatedAt = time.Unix(cs.Created, 0).UTC()
	}

	if cs.CustomerDetails != nil {
		if c.CustomerEmail == "" {
			c.CustomerEmail = cs.CustomerDetails.Email
		}
		c.CustomerName = cs.CustomerDetails.Name
	}

	if c.CustomerName == "" {
		c.CustomerName = cs.Metadata[MetaCustomerName]
	}

	return c
}

func wrapStripeErr(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		return fmt.Errorf("%w: %s (%s)", ErrProcessor, se.Msg, se.Code)
	}
	return fmt.Errorf("%w: %w", ErrProcessor, err)
}
