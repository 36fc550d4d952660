package reservation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/tix-nights/internal/catalog"
	"github.com/kirinyoku/tix-nights/internal/clock"
	"github.com/kirinyoku/tix-nights/internal/domain"
	"github.com/kirinyoku/tix-nights/internal/repository"
	"github.com/kirinyoku/tix-nights/internal/repository/memory"
	"github.com/kirinyoku/tix-nights/internal/service/availability"
)

var t0 = time.Date(2025, 11, 10, 12, 0, 0, 0, time.UTC)

// smallScheme mirrors a 15 base / 15 shared-senior night.
var smallScheme = &domain.TierScheme{
	Name: "small",
	Base: domain.TierKid,
	Tiers: []domain.Tier{
		{ID: domain.TierKid, Label: "kid", UnitAmount: 1000, Pool: catalog.PoolKids},
		{ID: domain.TierAdultDrink, Label: "adult (drink)", UnitAmount: 500, Pool: catalog.PoolAdults},
		{ID: domain.TierAdultFull, Label: "adult (full treat)", UnitAmount: 1000, Pool: catalog.PoolAdults},
	},
	Pools: []domain.Pool{
		{Name: catalog.PoolKids, Capacity: 15},
		{Name: catalog.PoolAdults, Capacity: 15},
	},
}

func testCatalog() *catalog.Catalog {
	return catalog.MustNew([]domain.Night{
		{Key: "open", DisplayName: "Open night", Value: "open-v", Scheme: smallScheme},
		{Key: "grown", DisplayName: "Adults night", Value: "grown-v", Scheme: smallScheme, RestrictedPool: catalog.PoolAdults},
		{Key: "two", DisplayName: "Two tier night", Value: "two-v", Scheme: catalog.TwoTier},
	})
}

type fixture struct {
	svc   *Service
	avail *availability.Service
	store repository.InventoryStore
	mem   *memory.Store
	clk   *clock.Manual
	pub   *recordingNotifier
}

type recordingNotifier struct {
	mu     sync.Mutex
	nights []string
}

func (n *recordingNotifier) PublishNightChanged(_ context.Context, nightKey string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nights = append(n.nights, nightKey)
	return nil
}

func newFixture(t *testing.T, cfg Config, wrap func(*memory.Store) repository.InventoryStore, locker repository.Locker) *fixture {
	t.Helper()

	clk := clock.NewManual(t0)
	mem := memory.New(clk)

	var store repository.InventoryStore = mem
	if wrap != nil {
		store = wrap(mem)
	}

	cat := testCatalog()
	avail := availability.New(cat, store, clk, availability.Config{ReservationTimeout: 10 * time.Minute})
	pub := &recordingNotifier{}

	return &fixture{
		svc:   New(cat, avail, store, locker, pub, clk, nil, cfg),
		avail: avail,
		store: store,
		mem:   mem,
		clk:   clk,
		pub:   pub,
	}
}

func TestReserve_WritesHold(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{}, nil, nil)

	hold, err := f.svc.Reserve(ctx, "open", domain.Quantities{domain.TierKid: 2, domain.TierAdultDrink: 1, domain.TierAdultFull: 0}, "sess-1")
	require.NoError(t, err)

	assert.Equal(t, t0, hold.CreatedAt)
	assert.Equal(t, domain.Quantities{domain.TierKid: 2, domain.TierAdultDrink: 1}, hold.Quantities)

	stored, err := f.store.GetHold(ctx, "sess-1", "open")
	require.NoError(t, err)
	assert.Equal(t, hold.Quantities, stored.Quantities)
	assert.Equal(t, []string{"open"}, f.pub.nights)
}

func TestReserve_StoreTTLOutlivesTimeout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{}, nil, nil)

	_, err := f.svc.Reserve(ctx, "open", domain.Quantities{domain.TierKid: 1}, "sess-1")
	require.NoError(t, err)

	f.clk.Advance(14 * time.Minute)
	_, err = f.store.GetHold(ctx, "sess-1", "open")
	require.NoError(t, err)

	f.clk.Advance(time.Minute)
	_, err = f.store.GetHold(ctx, "sess-1", "open")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestReserve_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		night  string
		q      domain.Quantities
		code   error
		reason string
	}{
		{
			name:  "unknown night",
			night: "nope",
			q:     domain.Quantities{domain.TierKid: 1},
			code:  ErrNightNotFound,
		},
		{
			name:   "all zero",
			night:  "open",
			q:      domain.Quantities{domain.TierKid: 0, domain.TierAdultDrink: 0},
			code:   ErrBaseTierRequired,
			reason: "Must book at least 1 kid ticket",
		},
		{
			name:   "empty request",
			night:  "open",
			q:      domain.Quantities{},
			code:   ErrBaseTierRequired,
			reason: "Must book at least 1 kid ticket",
		},
		{
			name:   "adults without kid",
			night:  "open",
			q:      domain.Quantities{domain.TierAdultFull: 2},
			code:   ErrBaseTierRequired,
			reason: "Must have at least 1 kid ticket to book adult tickets",
		},
		{
			name:   "kid on adults-only night",
			night:  "grown",
			q:      domain.Quantities{domain.TierKid: 1, domain.TierAdultDrink: 2},
			code:   ErrRestrictedTier,
			reason: "This is an adults-only event. Kid tickets are not available.",
		},
		{
			name:   "nothing on adults-only night",
			night:  "grown",
			q:      domain.Quantities{domain.TierAdultDrink: 0},
			code:   ErrNoTickets,
			reason: "Must book at least 1 adult ticket",
		},
		{
			name:   "over ceiling",
			night:  "open",
			q:      domain.Quantities{domain.TierKid: 9},
			code:   ErrQuantityCeiling,
			reason: "Maximum 8 tickets per type",
		},
		{
			name:  "negative",
			night: "open",
			q:     domain.Quantities{domain.TierKid: 2, domain.TierAdultDrink: -1},
			code:  ErrInvalidQuantity,
		},
		{
			name:  "tier outside scheme",
			night: "two",
			q:     domain.Quantities{domain.TierKid: 1, domain.TierAdultFull: 1},
			code:  ErrInvalidQuantity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{}, nil, nil)

			_, err := f.svc.Reserve(context.Background(), tt.night, tt.q, "sess")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.code)
			assert.True(t, IsRejection(err))

			var re *RejectionError
			require.ErrorAs(t, err, &re)
			if tt.reason != "" {
				assert.Equal(t, tt.reason, re.Reason)
			}

			holds, err := f.store.ListHolds(context.Background())
			require.NoError(t, err)
			assert.Empty(t, holds)
		})
	}
}

func TestReserve_AdultsOnlyNightAcceptsAdults(t *testing.T) {
	f := newFixture(t, Config{}, nil, nil)

	_, err := f.svc.Reserve(context.Background(), "grown", domain.Quantities{domain.TierAdultFull: 3}, "sess")
	require.NoError(t, err)
}

func TestReserve_SalesClosed(t *testing.T) {
	f := newFixture(t, Config{SalesClosed: true}, nil, nil)

	_, err := f.svc.Reserve(context.Background(), "open", domain.Quantities{domain.TierKid: 1}, "sess")
	assert.ErrorIs(t, err, ErrSalesClosed)
}

func TestReserve_MissingSession(t *testing.T) {
	f := newFixture(t, Config{}, nil, nil)

	_, err := f.svc.Reserve(context.Background(), "open", domain.Quantities{domain.TierKid: 1}, "")
	assert.ErrorIs(t, err, ErrMissingSession)
	assert.False(t, IsRejection(err))
}

func TestReserve_LastBaseTicketSellsOut(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{}, nil, nil)

	require.NoError(t, f.store.SetInventory(ctx, "open", domain.InventoryRecord{
		Sold: domain.Quantities{domain.TierKid: 14},
	}))

	_, err := f.svc.Reserve(ctx, "open", domain.Quantities{domain.TierKid: 1}, "sess-1")
	require.NoError(t, err)

	a, err := f.avail.Night(ctx, "open")
	require.NoError(t, err)
	assert.Equal(t, 0, a.Remaining(domain.TierKid))
	assert.True(t, a.IsSoldOut)

	_, err = f.svc.Reserve(ctx, "open", domain.Quantities{domain.TierKid: 1}, "sess-2")
	var ce *CapacityError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 0, ce.Remaining)
	assert.Equal(t, "Only 0 kid ticket(s) remaining for this night", ce.Error())
}

func TestReserve_CapacityReportsRemaining(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{}, nil, nil)

	require.NoError(t, f.store.SetInventory(ctx, "open", domain.InventoryRecord{
		Sold: domain.Quantities{domain.TierKid: 12},
	}))

	_, err := f.svc.Reserve(ctx, "open", domain.Quantities{domain.TierKid: 4}, "sess-1")
	assert.ErrorIs(t, err, ErrInsufficientCapacity)

	var ce *CapacityError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 3, ce.Remaining)
	assert.Equal(t, 4, ce.Requested)
}

func TestReserve_SharedPoolAcrossTiers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{}, nil, nil)

	require.NoError(t, f.store.SetInventory(ctx, "open", domain.InventoryRecord{
		Sold: domain.Quantities{domain.TierAdultDrink: 7, domain.TierAdultFull: 5},
	}))

	_, err := f.svc.Reserve(ctx, "open", domain.Quantities{domain.TierKid: 2, domain.TierAdultDrink: 3}, "sess-a")
	require.NoError(t, err)

	a, err := f.avail.Night(ctx, "open")
	require.NoError(t, err)
	assert.Equal(t, 0, a.Remaining(domain.TierAdultDrink))
	assert.Equal(t, 0, a.Remaining(domain.TierAdultFull))

	_, err = f.svc.Reserve(ctx, "open", domain.Quantities{domain.TierKid: 1, domain.TierAdultFull: 1}, "sess-b")
	var ce *CapacityError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, catalog.PoolAdults, ce.Pool)
	assert.Equal(t, "Only 0 adults ticket(s) remaining for this night", ce.Error())
}

func TestReserve_SharedPoolRequestIsSummed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{}, nil, nil)

	require.NoError(t, f.store.SetInventory(ctx, "open", domain.InventoryRecord{
		Sold: domain.Quantities{domain.TierAdultDrink: 10},
	}))

	// 3 + 3 fits each tier's reported remaining of 5 but not the pool.
	_, err := f.svc.Reserve(ctx, "open", domain.Quantities{domain.TierKid: 1, domain.TierAdultDrink: 3, domain.TierAdultFull: 3}, "sess")
	assert.ErrorIs(t, err, ErrInsufficientCapacity)
}

func TestReserve_ExpiredHoldsFreeCapacity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{}, nil, nil)

	for i, s := range []string{"a", "b"} {
		_, err := f.svc.Reserve(ctx, "open", domain.Quantities{domain.TierKid: 7 + i}, s)
		require.NoError(t, err)
	}

	_, err := f.svc.Reserve(ctx, "open", domain.Quantities{domain.TierKid: 1}, "c")
	assert.ErrorIs(t, err, ErrInsufficientCapacity)

	f.clk.Advance(10 * time.Minute)

	_, err = f.svc.Reserve(ctx, "open", domain.Quantities{domain.TierKid: 8}, "c")
	require.NoError(t, err)
}

func TestReserve_StorageFailure(t *testing.T) {
	f := newFixture(t, Config{}, func(m *memory.Store) repository.InventoryStore {
		return failingStore{Store: m}
	}, nil)

	_, err := f.svc.Reserve(context.Background(), "open", domain.Quantities{domain.TierKid: 1}, "sess")
	assert.ErrorIs(t, err, repository.ErrUnavailable)
	assert.False(t, IsRejection(err))
}

type failingStore struct {
	*memory.Store
}

func (failingStore) GetInventory(context.Context, string) (domain.InventoryRecord, error) {
	return domain.InventoryRecord{}, repository.ErrUnavailable
}

// barrierStore holds every caller inside ListHoldsForNight until n callers
// have read, which forces the read-then-write window open.
type barrierStore struct {
	*memory.Store
	wg *sync.WaitGroup
}

func (s barrierStore) ListHoldsForNight(ctx context.Context, nightKey string) ([]domain.ReservationHold, error) {
	holds, err := s.Store.ListHoldsForNight(ctx, nightKey)
	s.wg.Done()
	s.wg.Wait()
	return holds, err
}

func TestReserve_ConcurrentReservesCanOversell(t *testing.T) {
	ctx := context.Background()

	wg := &sync.WaitGroup{}
	wg.Add(2)
	f := newFixture(t, Config{}, func(m *memory.Store) repository.InventoryStore {
		return barrierStore{Store: m, wg: wg}
	}, nil)

	require.NoError(t, f.mem.SetInventory(ctx, "open", domain.InventoryRecord{
		Sold: domain.Quantities{domain.TierKid: 14},
	}))

	errs := make(chan error, 2)
	for _, s := range []string{"a", "b"} {
		go func() {
			_, err := f.svc.Reserve(ctx, "open", domain.Quantities{domain.TierKid: 1}, s)
			errs <- err
		}()
	}

	require.NoError(t, <-errs)
	require.NoError(t, <-errs)

	holds, err := f.mem.ListHoldsForNight(ctx, "open")
	require.NoError(t, err)
	assert.Len(t, holds, 2, "both requests saw 1 remaining and both held it")
}

func TestReserve_SerializedReservesDoNotOversell(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{Serialize: true}, nil, memory.NewLocker())

	require.NoError(t, f.store.SetInventory(ctx, "open", domain.InventoryRecord{
		Sold: domain.Quantities{domain.TierKid: 14},
	}))

	const n = 8
	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Reserve(ctx, "open", domain.Quantities{domain.TierKid: 1}, string(rune('a'+i)))
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrInsufficientCapacity) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
}
