package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/kirinyoku/tix-nights/internal/catalog"
	"github.com/kirinyoku/tix-nights/internal/domain"
	"github.com/kirinyoku/tix-nights/internal/payment"
	"github.com/kirinyoku/tix-nights/internal/service/reservation"
	"github.com/kirinyoku/tix-nights/internal/service/settlement"
)

var ErrInvalidRequest = errors.New("invalid checkout request")

// Deduper remembers which webhook events were already handled.
type Deduper interface {
	FirstDelivery(ctx context.Context, eventID string) (bool, error)
	ForgetDelivery(ctx context.Context, eventID string) error
}

type Config struct {
	PublicBaseURL string
	Currency      string
	ProductName   string
}

type Request struct {
	Name    string
	Email   string
	Night   string // catalog value or key
	Tickets domain.Quantities
}

type Result struct {
	URL           string `json:"url"`
	CheckoutID    string `json:"checkout_id"`
	CorrelationID string `json:"correlation_id"`
	NightKey      string `json:"night_key"`
}

type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeReleased  Outcome = "released"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
)

type Service struct {
	catalog    *catalog.Catalog
	reserve    *reservation.Service
	settle     *settlement.Service
	processor  payment.Processor
	deduper    Deduper
	logger     *slog.Logger
	cfg        Config
	newSession func() string
}

func New(
	cat *catalog.Catalog,
	reserve *reservation.Service,
	settle *settlement.Service,
	processor payment.Processor,
	deduper Deduper,
	logger *slog.Logger,
	cfg Config,
) *Service {
	if cfg.Currency == "" {
		cfg.Currency = "gbp"
	}

	if cfg.ProductName == "" {
		cfg.ProductName = "Movie Night"
	}

	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")

	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		catalog:    cat,
		reserve:    reserve,
		settle:     settle,
		processor:  processor,
		deduper:    deduper,
		logger:     logger,
		cfg:        cfg,
		newSession: uuid.NewString,
	}
}

// Start reserves tickets and opens a hosted checkout for them. The hold is
// released again if the processor refuses the session.
//
// Parameters:
//   - ctx: request-scoped context.
//   - req: customer details, night selector and per-tier quantities.
//
// Returns:
//   - Result: redirect URL and the ids tying the checkout to its hold.
//   - error: checkout.ErrInvalidRequest for missing customer details.
//   - error: *reservation.RejectionError or *reservation.CapacityError.
//   - error: payment.ErrProcessor if the checkout session cannot be created.
//   - error: repository.ErrUnavailable if the store cannot be used.
func (s *Service) Start(ctx context.Context, req Request) (Result, error) {
	const op = "service.checkout.Start"

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)

	if req.Name == "" || req.Email == "" {
		return Result{}, fmt.Errorf("%s: %w: name and email are required", op, ErrInvalidRequest)
	}

	night, ok := s.catalog.ByValue(req.Night)
	if !ok {
		night, ok = s.catalog.ByKey(req.Night)
	}
	nightKey := req.Night
	if ok {
		nightKey = night.Key
	}

	correlationID := s.newSession()

	hold, err := s.reserve.Reserve(ctx, nightKey, req.Tickets, correlationID)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}

	booking := payment.Booking{
		NightKey:      night.Key,
		NightValue:    night.Value,
		CustomerName:  req.Name,
		CorrelationID: correlationID,
		Quantities:    hold.Quantities,
	}

	cs, err := s.processor.CreateCheckoutSession(ctx, payment.CheckoutRequest{
		CustomerName:  req.Name,
		CustomerEmail: req.Email,
		Currency:      s.cfg.Currency,
		LineItems:     s.lineItems(night, hold.Quantities),
		Metadata:      booking.Metadata(),
		SuccessURL:    s.cfg.PublicBaseURL + "/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     s.cfg.PublicBaseURL + "/?cancelled=1",
	})
	if err != nil {
		if _, rerr := s.settle.Release(context.WithoutCancel(ctx), correlationID, night.Key); rerr != nil {
			s.logger.Error("release hold after processor failure",
				slog.String("correlation_id", correlationID),
				slog.String("night", night.Key),
				slog.Any("err", rerr),
			)
		}
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}

	s.logger.Info("checkout started",
		slog.String("night", night.Key),
		slog.String("correlation_id", correlationID),
		slog.String("checkout_id", cs.ID),
		slog.Int("tickets", hold.Quantities.Total()),
	)

	return Result{
		URL:           cs.URL,
		CheckoutID:    cs.ID,
		CorrelationID: correlationID,
		NightKey:      night.Key,
	}, nil
}

func (s *Service) lineItems(night domain.Night, q domain.Quantities) []payment.LineItem {
	var items []payment.LineItem
	for _, t := range night.Scheme.Tiers {
		n := q[t.ID]
		if n <= 0 {
			continue
		}
		items = append(items, payment.LineItem{
			Name:        fmt.Sprintf("%s - %s ticket", s.cfg.ProductName, t.Label),
			Description: night.DisplayName,
			UnitAmount:  t.UnitAmount,
			Quantity:    int64(n),
		})
	}
	return items
}

// HandleEvent applies a verified payment event to the inventory.
//
// Parameters:
//   - ctx: request-scoped context.
//   - evt: verified processor event.
//
// Returns:
//   - Outcome: what the event did.
//   - error: non-nil when a paid or cancelled checkout could not be settled.
//     The payment itself stands and needs manual reconciliation.
func (s *Service) HandleEvent(ctx context.Context, evt payment.Event) (Outcome, error) {
	const op = "service.checkout.HandleEvent"

	switch evt.Type {
	case payment.EventCheckoutCompleted, payment.EventCheckoutExpired, payment.EventAsyncPaymentFailed:
	default:
		return OutcomeIgnored, nil
	}

	if s.deduper != nil && evt.ID != "" {
		first, err := s.deduper.FirstDelivery(ctx, evt.ID)
		if err != nil {
			s.logger.Warn("webhook dedupe unavailable", slog.String("event_id", evt.ID), slog.Any("err", err))
		} else if !first {
			return OutcomeDuplicate, nil
		}
	}

	outcome, err := s.apply(ctx, evt)
	if err != nil {
		if s.deduper != nil && evt.ID != "" {
			if ferr := s.deduper.ForgetDelivery(context.WithoutCancel(ctx), evt.ID); ferr != nil {
				s.logger.Warn("forget webhook event", slog.String("event_id", evt.ID), slog.Any("err", ferr))
			}
		}
		return outcome, fmt.Errorf("%s: %w", op, err)
	}

	return outcome, nil
}

func (s *Service) apply(ctx context.Context, evt payment.Event) (Outcome, error) {
	booking, err := payment.ParseBooking(evt.Checkout.Metadata)
	if errors.Is(err, payment.ErrNotTickets) {
		return OutcomeIgnored, nil
	}

	switch evt.Type {
	case payment.EventCheckoutCompleted:
		if err != nil {
			return OutcomeIgnored, err
		}
		if err := s.settle.Confirm(ctx, booking.NightKey, booking.Quantities, booking.CorrelationID); err != nil {
			s.logger.Error("payment received but inventory not updated",
				slog.String("checkout_id", evt.Checkout.ID),
				slog.String("night", booking.NightKey),
				slog.Any("quantities", booking.Quantities),
				slog.String("customer_email", evt.Checkout.CustomerEmail),
				slog.Any("err", err),
			)
			return OutcomeIgnored, err
		}
		s.logger.Info("booking confirmed",
			slog.String("checkout_id", evt.Checkout.ID),
			slog.String("night", booking.NightKey),
			slog.Int("tickets", booking.Quantities.Total()),
		)
		return OutcomeConfirmed, nil

	default:
		if err != nil || booking.CorrelationID == "" {
			return OutcomeIgnored, nil
		}
		n, err := s.settle.Release(ctx, booking.CorrelationID, booking.NightKey)
		if err != nil {
			return OutcomeIgnored, err
		}
		s.logger.Info("hold released",
			slog.String("checkout_id", evt.Checkout.ID),
			slog.String("reason", string(evt.Type)),
			slog.Int("holds", n),
		)
		return OutcomeReleased, nil
	}
}
