package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/kirinyoku/tix-nights/internal/catalog"
	"github.com/kirinyoku/tix-nights/internal/clock"
	"github.com/kirinyoku/tix-nights/internal/domain"
	"github.com/kirinyoku/tix-nights/internal/payment"
	"github.com/kirinyoku/tix-nights/internal/repository"
)

var ErrLedgerUnavailable = errors.New("payment ledger unavailable")

type NightReport struct {
	NightKey       string            `json:"night_key"`
	DisplayName    string            `json:"display_name"`
	Derived        domain.Quantities `json:"derived"`
	Stored         domain.Quantities `json:"stored"`
	Difference     domain.Quantities `json:"difference"`
	HasDiscrepancy bool              `json:"has_discrepancy"`
	Orders         int               `json:"orders"`
}

type Report struct {
	GeneratedAt      time.Time     `json:"generated_at"`
	CheckoutsScanned int           `json:"checkouts_scanned"`
	CheckoutsSkipped int           `json:"checkouts_skipped"`
	Nights           []NightReport `json:"nights"`
}

func (r Report) Discrepancies() int {
	n := 0
	for _, nr := range r.Nights {
		if nr.HasDiscrepancy {
			n++
		}
	}
	return n
}

type SyncResult struct {
	NightKey string            `json:"night_key"`
	Previous domain.Quantities `json:"previous"`
	Current  domain.Quantities `json:"current"`
}

type Order struct {
	CheckoutID    string            `json:"checkout_id"`
	NightKey      string            `json:"night_key"`
	NightName     string            `json:"night_name"`
	CustomerName  string            `json:"customer_name"`
	CustomerEmail string            `json:"customer_email"`
	Quantities    domain.Quantities `json:"quantities"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	CreatedAt     time.Time         `json:"created_at"`
}

// Service compares the processor's ledger of completed checkouts with the
// stored confirmed sales and can force the store to match it.
type Service struct {
	catalog *catalog.Catalog
	store   repository.InventoryStore
	ledger  payment.Ledger
	clock   clock.Clock
	logger  *slog.Logger
}

func New(
	cat *catalog.Catalog,
	store repository.InventoryStore,
	ledger payment.Ledger,
	clk clock.Clock,
	logger *slog.Logger,
) *Service {
	if clk == nil {
		clk = clock.NewSystem()
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		catalog: cat,
		store:   store,
		ledger:  ledger,
		clock:   clk,
		logger:  logger,
	}
}

// ComputeDiscrepancies compares ledger-derived sales with stored sales.
//
// Parameters:
//   - ctx: request-scoped context.
//
// Returns:
//   - Report: one entry per catalog night, in catalog order.
//   - error: reconcile.ErrLedgerUnavailable if the ledger cannot be read.
//   - error: repository.ErrUnavailable if the store cannot be read.
func (s *Service) ComputeDiscrepancies(ctx context.Context) (Report, error) {
	const op = "service.reconcile.ComputeDiscrepancies"

	orders, skipped, err := s.orders(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("%s: %w", op, err)
	}

	derived, counts := tally(orders)

	report := Report{
		GeneratedAt:      s.clock.Now(),
		CheckoutsScanned: len(orders) + skipped,
		CheckoutsSkipped: skipped,
	}

	for _, n := range s.catalog.List() {
		rec, err := s.store.GetInventory(ctx, n.Key)
		if err != nil {
			return Report{}, fmt.Errorf("%s: %w", op, err)
		}

		nr := NightReport{
			NightKey:    n.Key,
			DisplayName: n.DisplayName,
			Derived:     nonNil(derived[n.Key]),
			Stored:      nonNil(rec.Sold),
			Orders:      counts[n.Key],
		}
		nr.Difference = difference(nr.Derived, nr.Stored)
		nr.HasDiscrepancy = len(nr.Difference) > 0

		report.Nights = append(report.Nights, nr)
	}

	return report, nil
}

// ForceSync overwrites every night's confirmed sales with the ledger-derived
// totals. Nights with no completed checkouts are reset to zero.
//
// Returns:
//   - []SyncResult: previous and new sales per night, in catalog order.
//   - error: reconcile.ErrLedgerUnavailable if the ledger cannot be read.
//   - error: repository.ErrUnavailable if the store cannot be used.
func (s *Service) ForceSync(ctx context.Context) ([]SyncResult, error) {
	const op = "service.reconcile.ForceSync"

	orders, _, err := s.orders(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	derived, _ := tally(orders)

	next := make(map[string]domain.InventoryRecord, s.catalog.Len())
	for _, n := range s.catalog.List() {
		next[n.Key] = domain.InventoryRecord{Sold: nonNil(derived[n.Key]).Clone()}
	}

	prev, err := s.replace(ctx, next)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := make([]SyncResult, 0, len(next))
	for _, n := range s.catalog.List() {
		out = append(out, SyncResult{
			NightKey: n.Key,
			Previous: nonNil(prev[n.Key].Sold),
			Current:  next[n.Key].Sold,
		})
	}

	s.logger.Info("inventory force-synced from ledger",
		slog.Int("nights", len(out)),
		slog.Int("orders", len(orders)),
	)

	return out, nil
}

// replace overwrites every record in next, atomically when the store
// supports it, and returns the previous records.
func (s *Service) replace(ctx context.Context, next map[string]domain.InventoryRecord) (map[string]domain.InventoryRecord, error) {
	if r, ok := s.store.(repository.Replacer); ok {
		return r.ReplaceInventory(ctx, next)
	}

	prev := make(map[string]domain.InventoryRecord, len(next))
	for _, n := range s.catalog.List() {
		rec, ok := next[n.Key]
		if !ok {
			continue
		}
		old, err := s.store.GetInventory(ctx, n.Key)
		if err != nil {
			return nil, err
		}
		prev[n.Key] = old
		if err := s.store.SetInventory(ctx, n.Key, rec); err != nil {
			return nil, err
		}
	}
	return prev, nil
}

// InitializeInventory writes an all-zero record for every night. Unless
// overwrite is set, nights that already have sales are left alone.
//
// Returns:
//   - int: number of nights written.
//   - error: repository.ErrUnavailable if the store cannot be used.
func (s *Service) InitializeInventory(ctx context.Context, overwrite bool) (int, error) {
	const op = "service.reconcile.InitializeInventory"

	n := 0
	for _, night := range s.catalog.List() {
		if !overwrite {
			rec, err := s.store.GetInventory(ctx, night.Key)
			if err != nil {
				return n, fmt.Errorf("%s: %w", op, err)
			}
			if rec.Sold.Total() > 0 {
				continue
			}
		}

		zero := domain.InventoryRecord{Sold: domain.Quantities{}}
		for _, t := range night.Scheme.Tiers {
			zero.Sold[t.ID] = 0
		}

		if err := s.store.SetInventory(ctx, night.Key, zero); err != nil {
			return n, fmt.Errorf("%s: %w", op, err)
		}
		n++
	}

	return n, nil
}

// Orders lists completed ticket checkouts, grouped by night in catalog order
// and oldest first within a night.
func (s *Service) Orders(ctx context.Context) ([]Order, error) {
	const op = "service.reconcile.Orders"

	orders, _, err := s.orders(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pos := make(map[string]int, s.catalog.Len())
	for i, n := range s.catalog.List() {
		pos[n.Key] = i
	}

	sort.SliceStable(orders, func(i, j int) bool {
		if pi, pj := pos[orders[i].NightKey], pos[orders[j].NightKey]; pi != pj {
			return pi < pj
		}
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})

	return orders, nil
}

// orders reads the ledger and keeps checkouts that map to a catalog night.
func (s *Service) orders(ctx context.Context) ([]Order, int, error) {
	checkouts, err := s.ledger.CompletedCheckouts(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrLedgerUnavailable, err)
	}

	seen := make(map[string]struct{}, len(checkouts))
	out := make([]Order, 0, len(checkouts))
	skipped := 0

	for _, c := range checkouts {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}

		b, err := payment.ParseBooking(c.Metadata)
		if err != nil {
			if !errors.Is(err, payment.ErrNotTickets) {
				s.logger.Warn("skipping checkout", slog.String("checkout_id", c.ID), slog.Any("err", err))
			}
			skipped++
			continue
		}

		night, ok := s.catalog.ByKey(b.NightKey)
		if !ok {
			s.logger.Warn("checkout for unknown night", slog.String("checkout_id", c.ID), slog.String("night", b.NightKey))
			skipped++
			continue
		}

		name := c.CustomerName
		if b.CustomerName != "" {
			name = b.CustomerName
		}

		out = append(out, Order{
			CheckoutID:    c.ID,
			NightKey:      night.Key,
			NightName:     night.DisplayName,
			CustomerName:  name,
			CustomerEmail: c.CustomerEmail,
			Quantities:    b.Quantities,
			AmountTotal:   c.AmountTotal,
			Currency:      c.Currency,
			CreatedAt:     c.CreatedAt,
		})
	}

	return out, skipped, nil
}

func tally(orders []Order) (map[string]domain.Quantities, map[string]int) {
	totals := make(map[string]domain.Quantities)
	counts := make(map[string]int)

	for _, o := range orders {
		totals[o.NightKey] = nonNil(totals[o.NightKey]).Add(o.Quantities)
		counts[o.NightKey]++
	}

	return totals, counts
}

// difference returns derived - stored for every tier where they differ.
func difference(derived, stored domain.Quantities) domain.Quantities {
	out := domain.Quantities{}
	for t, n := range derived {
		if d := n - stored[t]; d != 0 {
			out[t] = d
		}
	}
	for t, n := range stored {
		if _, ok := derived[t]; !ok && n != 0 {
			out[t] = -n
		}
	}
	return out
}

func nonNil(q domain.Quantities) domain.Quantities {
	if q == nil {
		return domain.Quantities{}
	}
	return q
}
