package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kirinyoku/tix-nights/internal/catalog"
	"github.com/kirinyoku/tix-nights/internal/clock"
	"github.com/kirinyoku/tix-nights/internal/domain"
	"github.com/kirinyoku/tix-nights/internal/repository"
)

var (
	ErrNightNotFound     = errors.New("night not found")
	ErrNothingToConfirm  = errors.New("no quantities to confirm")
	ErrInvalidQuantities = errors.New("invalid quantities")
)

type Config struct {
	ReservationTimeout time.Duration
}

// Service moves holds to their terminal states: Confirmed or Released.
type Service struct {
	catalog  *catalog.Catalog
	store    repository.InventoryStore
	notifier repository.Notifier
	clock    clock.Clock
	logger   *slog.Logger
	cfg      Config

	sweeps singleflight.Group
}

func New(
	cat *catalog.Catalog,
	store repository.InventoryStore,
	notifier repository.Notifier,
	clk clock.Clock,
	logger *slog.Logger,
	cfg Config,
) *Service {
	if cfg.ReservationTimeout <= 0 {
		cfg.ReservationTimeout = 10 * time.Minute
	}

	if clk == nil {
		clk = clock.NewSystem()
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		catalog:  cat,
		store:    store,
		notifier: notifier,
		clock:    clk,
		logger:   logger,
		cfg:      cfg,
	}
}

// Confirm adds paid quantities to the night's confirmed sales and drops the
// session's hold.
//
// Parameters:
//   - ctx: request-scoped context.
//   - nightKey: identity key of the night.
//   - q: paid quantity per tier.
//   - sessionID: correlation id echoed back by the payment processor.
//
// Returns:
//   - error: settlement.ErrNightNotFound for a key outside the catalog.
//   - error: settlement.ErrNothingToConfirm if q holds no tickets.
//   - error: repository.ErrUnavailable if the store cannot be used.
func (s *Service) Confirm(ctx context.Context, nightKey string, q domain.Quantities, sessionID string) error {
	const op = "service.settlement.Confirm"

	if _, ok := s.catalog.ByKey(nightKey); !ok {
		return fmt.Errorf("%s: %w: %q", op, ErrNightNotFound, nightKey)
	}

	for _, n := range q {
		if n < 0 {
			return fmt.Errorf("%s: %w", op, ErrInvalidQuantities)
		}
	}

	if q.Total() == 0 {
		return fmt.Errorf("%s: %w", op, ErrNothingToConfirm)
	}

	rec, err := s.store.GetInventory(ctx, nightKey)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	rec.Sold = rec.Sold.Add(q)
	if err := s.store.SetInventory(ctx, nightKey, rec); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if sessionID != "" {
		if err := s.store.DeleteHold(ctx, sessionID, nightKey); err != nil {
			// Sales are recorded; the orphaned hold ages out on its own.
			s.logger.Warn("delete confirmed hold",
				slog.String("session_id", sessionID),
				slog.String("night", nightKey),
				slog.Any("err", err),
			)
		}
	}

	s.publish(ctx, nightKey)

	return nil
}

// Release drops the holds of a session. An empty nightKey releases the
// session's holds on every night. Releasing a missing hold is a no-op.
//
// Returns:
//   - int: number of holds that existed and were deleted.
//   - error: repository.ErrUnavailable if the store cannot be used.
func (s *Service) Release(ctx context.Context, sessionID, nightKey string) (int, error) {
	const op = "service.settlement.Release"

	if sessionID == "" {
		return 0, nil
	}

	var holds []domain.ReservationHold
	if nightKey != "" {
		h, err := s.store.GetHold(ctx, sessionID, nightKey)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return 0, nil
		case err != nil:
			return 0, fmt.Errorf("%s: %w", op, err)
		}
		holds = append(holds, h)
	} else {
		var err error
		holds, err = s.store.ListHoldsForSession(ctx, sessionID)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", op, err)
		}
	}

	n := 0
	for _, h := range holds {
		if err := s.store.DeleteHold(ctx, h.SessionID, h.NightKey); err != nil {
			return n, fmt.Errorf("%s: %w", op, err)
		}
		n++
		s.publish(ctx, h.NightKey)
	}

	return n, nil
}

// SweepExpired deletes every hold at or past the reservation timeout.
// Concurrent callers share one pass and its result.
//
// Returns:
//   - int: number of holds deleted.
//   - error: repository.ErrUnavailable if the store cannot be used.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	const op = "service.settlement.SweepExpired"

	v, err, _ := s.sweeps.Do("sweep", func() (any, error) {
		return s.sweep(context.WithoutCancel(ctx))
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return v.(int), nil
}

func (s *Service) sweep(ctx context.Context) (int, error) {
	holds, err := s.store.ListHolds(ctx)
	if err != nil {
		return 0, err
	}

	now := s.clock.Now()
	changed := make(map[string]struct{})
	n := 0

	for _, h := range holds {
		if h.Live(now, s.cfg.ReservationTimeout) {
			continue
		}
		if err := s.store.DeleteHold(ctx, h.SessionID, h.NightKey); err != nil {
			return n, err
		}
		n++
		changed[h.NightKey] = struct{}{}
	}

	for night := range changed {
		s.publish(ctx, night)
	}

	if n > 0 {
		s.logger.Info("swept expired holds", slog.Int("count", n))
	}

	return n, nil
}

// PurgeStore asks the store to drop rows past their TTL. Stores that expire
// keys on their own report zero.
func (s *Service) PurgeStore(ctx context.Context) (int64, error) {
	const op = "service.settlement.PurgeStore"

	p, ok := s.store.(repository.Purger)
	if !ok {
		return 0, nil
	}

	n, err := p.PurgeExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

func (s *Service) publish(ctx context.Context, nightKey string) {
	if s.notifier == nil {
		return
	}

	if err := s.notifier.PublishNightChanged(ctx, nightKey); err != nil {
		s.logger.Warn("publish night changed", slog.String("night", nightKey), slog.Any("err", err))
	}
}
