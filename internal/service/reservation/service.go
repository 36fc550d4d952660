package reservation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirinyoku/tix-nights/internal/catalog"
	"github.com/kirinyoku/tix-nights/internal/clock"
	"github.com/kirinyoku/tix-nights/internal/domain"
	"github.com/kirinyoku/tix-nights/internal/repository"
	"github.com/kirinyoku/tix-nights/internal/service/availability"
)

const (
	DefaultMaxPerTier = 8
	// DefaultStoreGrace keeps a hold in the store past its timeout so the
	// sweep, not the TTL, is the normal release path.
	DefaultStoreGrace = 5 * time.Minute
	DefaultLockTTL    = 5 * time.Second
)

type Config struct {
	MaxPerTier  int
	StoreGrace  time.Duration
	SalesClosed bool
	// Serialize runs the capacity check and the hold write of one night
	// under a lock. Requires a Locker.
	Serialize bool
	LockTTL   time.Duration
}

type Service struct {
	catalog  *catalog.Catalog
	avail    *availability.Service
	store    repository.InventoryStore
	locker   repository.Locker
	notifier repository.Notifier
	clock    clock.Clock
	logger   *slog.Logger
	cfg      Config
}

func New(
	cat *catalog.Catalog,
	avail *availability.Service,
	store repository.InventoryStore,
	locker repository.Locker,
	notifier repository.Notifier,
	clk clock.Clock,
	logger *slog.Logger,
	cfg Config,
) *Service {
	if cfg.MaxPerTier <= 0 {
		cfg.MaxPerTier = DefaultMaxPerTier
	}

	if cfg.StoreGrace <= 0 {
		cfg.StoreGrace = DefaultStoreGrace
	}

	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultLockTTL
	}

	if clk == nil {
		clk = clock.NewSystem()
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		catalog:  cat,
		avail:    avail,
		store:    store,
		locker:   locker,
		notifier: notifier,
		clock:    clk,
		logger:   logger,
		cfg:      cfg,
	}
}

// Reserve validates a ticket request and, if it fits, places a hold for it.
//
// Parameters:
//   - ctx: request-scoped context.
//   - nightKey: identity key of the night.
//   - q: requested quantity per tier.
//   - sessionID: correlation id of the checkout attempt.
//
// Returns:
//   - domain.ReservationHold: the hold that was written.
//   - error: *reservation.RejectionError for a rule violation.
//   - error: *reservation.CapacityError if a pool cannot fit the request.
//   - error: repository.ErrUnavailable if the store cannot be used.
func (s *Service) Reserve(
	ctx context.Context,
	nightKey string,
	q domain.Quantities,
	sessionID string,
) (domain.ReservationHold, error) {
	const op = "service.reservation.Reserve"

	if sessionID == "" {
		return domain.ReservationHold{}, fmt.Errorf("%s: %w", op, ErrMissingSession)
	}

	if s.cfg.SalesClosed {
		return domain.ReservationHold{}, reject(ErrSalesClosed, "Tickets are sold out")
	}

	night, ok := s.catalog.ByKey(nightKey)
	if !ok {
		return domain.ReservationHold{}, reject(ErrNightNotFound, "Unknown night %q", nightKey)
	}

	if err := s.validate(night, q); err != nil {
		return domain.ReservationHold{}, err
	}

	if s.cfg.Serialize && s.locker != nil {
		unlock, err := s.locker.Lock(ctx, "reserve:"+night.Key, s.cfg.LockTTL)
		if err != nil {
			return domain.ReservationHold{}, fmt.Errorf("%s: %w", op, err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("reservation unlock failed", slog.String("night", night.Key), slog.Any("err", err))
			}
		}()
	}

	a, err := s.avail.Night(ctx, night.Key)
	if err != nil {
		return domain.ReservationHold{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := checkCapacity(night, a, q); err != nil {
		return domain.ReservationHold{}, err
	}

	hold := domain.ReservationHold{
		SessionID:  sessionID,
		NightKey:   night.Key,
		Quantities: positive(q),
		CreatedAt:  s.clock.Now(),
	}

	ttl := s.avail.ReservationTimeout() + s.cfg.StoreGrace
	if err := s.store.PutHold(ctx, hold, ttl); err != nil {
		return domain.ReservationHold{}, fmt.Errorf("%s: %w", op, err)
	}

	s.publish(ctx, night.Key)

	return hold, nil
}

func (s *Service) validate(night domain.Night, q domain.Quantities) error {
	scheme := night.Scheme

	for tier, n := range q {
		if _, ok := scheme.Tier(tier); !ok {
			if n == 0 {
				continue
			}
			return reject(ErrInvalidQuantity, "Unknown ticket type %q", tier)
		}
		if n < 0 {
			return reject(ErrInvalidQuantity, "Ticket quantities cannot be negative")
		}
	}

	if night.Restricted() {
		inPool := 0
		for tier, n := range q {
			t, _ := scheme.Tier(tier)
			if n == 0 {
				continue
			}
			if t.Pool != night.RestrictedPool {
				if tier == scheme.Base {
					return reject(ErrRestrictedTier, "This is an %s-only event. %s tickets are not available.",
						night.RestrictedPool, capitalize(t.Label))
				}
				return reject(ErrRestrictedTier, "%s tickets are not available for this night", capitalize(t.Label))
			}
			inPool += n
		}
		if inPool < 1 {
			return reject(ErrNoTickets, "Must book at least 1 %s ticket", restrictedLabel(night))
		}
	} else if q[scheme.Base] < 1 {
		base, _ := scheme.Tier(scheme.Base)
		if q.Total() > 0 {
			return reject(ErrBaseTierRequired, "Must have at least 1 %s ticket to book adult tickets", base.Label)
		}
		return reject(ErrBaseTierRequired, "Must book at least 1 %s ticket", base.Label)
	}

	for _, t := range scheme.Tiers {
		if q[t.ID] > s.cfg.MaxPerTier {
			return reject(ErrQuantityCeiling, "Maximum %d tickets per type", s.cfg.MaxPerTier)
		}
	}

	return nil
}

// checkCapacity compares requests against remaining capacity pool by pool,
// so tiers sharing a pool cannot jointly exceed it.
func checkCapacity(night domain.Night, a domain.Availability, q domain.Quantities) error {
	scheme := night.Scheme

	for _, p := range scheme.Pools {
		tiers := scheme.TiersInPool(p.Name)

		requested := 0
		for _, t := range tiers {
			requested += q[t.ID]
		}
		if requested == 0 {
			continue
		}

		remaining := a.RemainingInPool(p.Name)
		if requested > remaining {
			label := p.Name
			if len(tiers) == 1 {
				label = tiers[0].Label
			}
			return &CapacityError{
				Pool:      p.Name,
				Label:     label,
				Requested: requested,
				Remaining: remaining,
			}
		}
	}

	return nil
}

func (s *Service) publish(ctx context.Context, nightKey string) {
	if s.notifier == nil {
		return
	}

	if err := s.notifier.PublishNightChanged(ctx, nightKey); err != nil {
		s.logger.Warn("publish night changed", slog.String("night", nightKey), slog.Any("err", err))
	}
}

func positive(q domain.Quantities) domain.Quantities {
	out := make(domain.Quantities, len(q))
	for k, v := range q {
		if v > 0 {
			out[k] = v
		}
	}
	return out
}

func restrictedLabel(night domain.Night) string {
	if night.RestrictedPool == catalog.PoolAdults {
		return "adult"
	}
	return night.RestrictedPool
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}

// IsRejection reports whether err is a customer-facing rejection rather than
// an infrastructure failure.
func IsRejection(err error) bool {
	var re *RejectionError
	var ce *CapacityError
	return errors.As(err, &re) || errors.As(err, &ce)
}
