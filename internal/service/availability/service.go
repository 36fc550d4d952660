package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirinyoku/tix-nights/internal/catalog"
	"github.com/kirinyoku/tix-nights/internal/clock"
	"github.com/kirinyoku/tix-nights/internal/domain"
	"github.com/kirinyoku/tix-nights/internal/repository"
)

var ErrNightNotFound = errors.New("night not found")

const DefaultReservationTimeout = 10 * time.Minute

type Config struct {
	// ReservationTimeout is how long a hold counts against availability.
	ReservationTimeout time.Duration
	// SalesClosed reports every night as sold out.
	SalesClosed bool
	// Parallelism bounds concurrent store reads in All.
	Parallelism int
}

type Service struct {
	catalog *catalog.Catalog
	store   repository.InventoryStore
	clock   clock.Clock
	cfg     Config
}

func New(cat *catalog.Catalog, store repository.InventoryStore, clk clock.Clock, cfg Config) *Service {
	if cfg.ReservationTimeout <= 0 {
		cfg.ReservationTimeout = DefaultReservationTimeout
	}

	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}

	if clk == nil {
		clk = clock.NewSystem()
	}

	return &Service{
		catalog: cat,
		store:   store,
		clock:   clk,
		cfg:     cfg,
	}
}

func (s *Service) ReservationTimeout() time.Duration { return s.cfg.ReservationTimeout }

// Night computes the availability snapshot of one night.
//
// Parameters:
//   - ctx: request-scoped context.
//   - nightKey: identity key of a catalog night.
//
// Returns:
//   - domain.Availability: remaining capacity per tier.
//   - error: availability.ErrNightNotFound for a key outside the catalog.
//   - error: repository.ErrUnavailable if the store cannot be read.
func (s *Service) Night(ctx context.Context, nightKey string) (domain.Availability, error) {
	const op = "service.availability.Night"

	night, ok := s.catalog.ByKey(nightKey)
	if !ok {
		return domain.Availability{}, fmt.Errorf("%s: %w: %q", op, ErrNightNotFound, nightKey)
	}

	rec, err := s.store.GetInventory(ctx, nightKey)
	if err != nil {
		return domain.Availability{}, fmt.Errorf("%s: %w", op, err)
	}

	holds, err := s.store.ListHoldsForNight(ctx, nightKey)
	if err != nil {
		return domain.Availability{}, fmt.Errorf("%s: %w", op, err)
	}

	a := Compute(night, rec, holds, s.clock.Now(), s.cfg.ReservationTimeout)
	if s.cfg.SalesClosed {
		a.IsSoldOut = true
	}

	return a, nil
}

// All computes availability for every catalog night, in catalog order.
//
// Parameters:
//   - ctx: request-scoped context.
//
// Returns:
//   - []domain.Availability: one snapshot per night.
//   - error: repository.ErrUnavailable if the store cannot be read.
func (s *Service) All(ctx context.Context) ([]domain.Availability, error) {
	const op = "service.availability.All"

	nights := s.catalog.List()
	out := make([]domain.Availability, len(nights))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Parallelism)

	for i, n := range nights {
		g.Go(func() error {
			a, err := s.Night(gCtx, n.Key)
			if err != nil {
				return err
			}
			out[i] = a
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

// Compute derives availability from confirmed sales and holds. Holds at or
// past timeout are ignored whether or not they were swept yet.
func Compute(
	night domain.Night,
	rec domain.InventoryRecord,
	holds []domain.ReservationHold,
	now time.Time,
	timeout time.Duration,
) domain.Availability {
	scheme := night.Scheme

	used := make(map[string]int, len(scheme.Pools))
	for _, t := range scheme.Tiers {
		used[t.Pool] += rec.Get(t.ID)
	}

	for _, h := range holds {
		if h.NightKey != "" && h.NightKey != night.Key {
			continue
		}
		if !h.Live(now, timeout) {
			continue
		}
		for tier, q := range h.Quantities {
			if t, ok := scheme.Tier(tier); ok {
				used[t.Pool] += q
			}
		}
	}

	remaining := make(map[string]int, len(scheme.Pools))
	for _, p := range scheme.Pools {
		remaining[p.Name] = max(0, p.Capacity-used[p.Name])
	}

	a := domain.Availability{
		NightKey:       night.Key,
		DisplayName:    night.DisplayName,
		Value:          night.Value,
		Tiers:          make([]domain.TierAvailability, 0, len(scheme.Tiers)),
		RestrictedPool: night.RestrictedPool,
	}
	for _, t := range scheme.Tiers {
		a.Tiers = append(a.Tiers, domain.TierAvailability{
			Tier:      t.ID,
			Label:     t.Label,
			Pool:      t.Pool,
			Remaining: remaining[t.Pool],
		})
	}
	a.IsSoldOut = remaining[night.GatingPool()] == 0

	return a
}
