package payment

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedEvent   = errors.New("malformed webhook event")
	ErrProcessor        = errors.New("payment processor error")
)

type EventType string

const (
	EventCheckoutCompleted  EventType = "checkout.session.completed"
	EventCheckoutExpired    EventType = "checkout.session.expired"
	EventAsyncPaymentFailed EventType = "checkout.session.async_payment_failed"
)

type LineItem struct {
	Name        string
	Description string
	UnitAmount  int64 // minor currency units
	Quantity    int64
}

type CheckoutRequest struct {
	CustomerName  string
	CustomerEmail string
	Currency      string
	LineItems     []LineItem
	Metadata      map[string]string
	SuccessURL    string
	CancelURL     string
	// ExpiresAt asks the processor to expire the session early. Zero keeps
	// the processor default.
	ExpiresAt time.Time
}

// CheckoutSession is a hosted payment page created for one reservation.
type CheckoutSession struct {
	ID  string
	URL string
}

// Checkout is a processor-side checkout session as echoed back by webhooks
// and ledger listings.
type Checkout struct {
	ID            string
	CustomerName  string
	CustomerEmail string
	AmountTotal   int64
	Currency      string
	PaymentStatus string
	CreatedAt     time.Time
	Metadata      map[string]string
}

type Event struct {
	ID       string
	Type     EventType
	Checkout Checkout
}

// Processor creates hosted checkout sessions.
type Processor interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
}

// Ledger lists the processor's completed checkouts. It is the source of
// truth for what was actually paid for.
type Ledger interface {
	CompletedCheckouts(ctx context.Context) ([]Checkout, error)
}

// EventVerifier authenticates a raw webhook payload.
type EventVerifier interface {
	VerifyEvent(payload []byte, signature string) (Event, error)
}
