package service

import (
	"log/slog"

	"github.com/kirinyoku/tix-nights/internal/catalog"
	"github.com/kirinyoku/tix-nights/internal/clock"
	"github.com/kirinyoku/tix-nights/internal/payment"
	"github.com/kirinyoku/tix-nights/internal/repository"
	"github.com/kirinyoku/tix-nights/internal/service/availability"
	"github.com/kirinyoku/tix-nights/internal/service/checkout"
	"github.com/kirinyoku/tix-nights/internal/service/reconcile"
	"github.com/kirinyoku/tix-nights/internal/service/reservation"
	"github.com/kirinyoku/tix-nights/internal/service/settlement"
)

type Services struct {
	Catalog      *catalog.Catalog
	Availability *availability.Service
	Reservation  *reservation.Service
	Settlement   *settlement.Service
	Reconcile    *reconcile.Service
	Checkout     *checkout.Service
}

// Deps are the shared collaborators of the services. Locker, Notifier and
// Deduper may be nil.
type Deps struct {
	Catalog   *catalog.Catalog
	Store     repository.InventoryStore
	Locker    repository.Locker
	Notifier  repository.Notifier
	Processor payment.Processor
	Ledger    payment.Ledger
	Deduper   checkout.Deduper
	Clock     clock.Clock
	Logger    *slog.Logger
}

type Config struct {
	Availability availability.Config
	Reservation  reservation.Config
	Checkout     checkout.Config
}

func NewServices(deps Deps, cfg Config) *Services {
	avail := availability.New(deps.Catalog, deps.Store, deps.Clock, cfg.Availability)

	// Settlement must expire holds on the same clock as availability.
	settle := settlement.New(deps.Catalog, deps.Store, deps.Notifier, deps.Clock, deps.Logger, settlement.Config{
		ReservationTimeout: avail.ReservationTimeout(),
	})

	reserve := reservation.New(deps.Catalog, avail, deps.Store, deps.Locker, deps.Notifier, deps.Clock, deps.Logger, cfg.Reservation)

	return &Services{
		Catalog:      deps.Catalog,
		Availability: avail,
		Reservation:  reserve,
		Settlement:   settle,
		Reconcile:    reconcile.New(deps.Catalog, deps.Store, deps.Ledger, deps.Clock, deps.Logger),
		Checkout:     checkout.New(deps.Catalog, reserve, settle, deps.Processor, deps.Deduper, deps.Logger, cfg.Checkout),
	}
}
