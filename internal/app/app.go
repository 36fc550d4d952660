package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/kirinyoku/tix-nights/internal/catalog"
	"github.com/kirinyoku/tix-nights/internal/clock"
	"github.com/kirinyoku/tix-nights/internal/config"
	"github.com/kirinyoku/tix-nights/internal/payment"
	"github.com/kirinyoku/tix-nights/internal/postgres"
	"github.com/kirinyoku/tix-nights/internal/redis"
	"github.com/kirinyoku/tix-nights/internal/repository"
	"github.com/kirinyoku/tix-nights/internal/repository/memory"
	postgresrepo "github.com/kirinyoku/tix-nights/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/tix-nights/internal/repository/redis"
	"github.com/kirinyoku/tix-nights/internal/service"
	"github.com/kirinyoku/tix-nights/internal/service/availability"
	"github.com/kirinyoku/tix-nights/internal/service/checkout"
	"github.com/kirinyoku/tix-nights/internal/service/reservation"
	httpgin "github.com/kirinyoku/tix-nights/internal/transport/http/gin"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	services   *service.Services
	httpServer *http.Server
	closers    []func()
}

// backend is the storage flavour selected by STORE_DRIVER.
type backend struct {
	store       repository.InventoryStore
	locker      repository.Locker
	notifier    repository.Notifier
	deduper     checkout.Deduper
	idempotency httpgin.IdempotencyStore
	limiter     httpgin.RateLimiter
	changes     httpgin.ChangeFeed
	closers     []func()
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx := context.Background()
	clk := clock.NewSystem()

	be, err := newBackend(ctx, cfg, clk, logger)
	if err != nil {
		return nil, err
	}

	stripe, err := payment.NewStripe(payment.StripeConfig{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		APIURL:        cfg.Stripe.APIURL,
	})
	if err != nil {
		be.close()
		return nil, fmt.Errorf("failed to initialize stripe: %w", err)
	}

	adminHash, err := adminPasswordHash(cfg.Admin, logger)
	if err != nil {
		be.close()
		return nil, fmt.Errorf("failed to hash admin password: %w", err)
	}

	// Initialize services
	services := service.NewServices(service.Deps{
		Catalog:   catalog.Season(),
		Store:     be.store,
		Locker:    be.locker,
		Notifier:  be.notifier,
		Processor: stripe,
		Ledger:    stripe,
		Deduper:   be.deduper,
		Clock:     clk,
		Logger:    logger,
	}, service.Config{
		Availability: availability.Config{
			ReservationTimeout: cfg.Reservation.Timeout,
			SalesClosed:        cfg.Shop.SoldOut,
		},
		Reservation: reservation.Config{
			SalesClosed: cfg.Shop.SoldOut,
			Serialize:   cfg.Reservation.Serialize && be.locker != nil,
		},
		Checkout: checkout.Config{
			PublicBaseURL: cfg.Shop.PublicBaseURL,
			Currency:      cfg.Shop.Currency,
			ProductName:   cfg.Shop.ProductName,
		},
	})

	// Initialize Gin router
	router := httpgin.NewRouter(httpgin.Deps{
		Services:          services,
		Verifier:          stripe,
		Idempotency:       be.idempotency,
		Limiter:           be.limiter,
		Changes:           be.changes,
		AdminPasswordHash: adminHash,
	}, logger)

	return &App{
		cfg:      cfg,
		logger:   logger,
		services: services,
		closers:  be.closers,
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func newBackend(ctx context.Context, cfg *config.Config, clk clock.Clock, logger *slog.Logger) (*backend, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := postgres.New(ctx, postgres.Config{DSN: cfg.Postgres.DSN()})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres: %w", err)
		}
		if err := postgresrepo.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to migrate postgres: %w", err)
		}

		store := postgresrepo.NewStore(pool)
		feed := memory.NewBroadcaster()
		logger.Info("using postgres inventory store", "host", cfg.Postgres.Host, "db", cfg.Postgres.Name)

		return &backend{
			store:    store.Inventory(),
			locker:   store.Locker(),
			notifier: feed,
			deduper:  memory.NewDeliveries(),
			changes:  feed,
			closers:  []func(){pool.Close},
		}, nil

	case config.DriverMemory:
		feed := memory.NewBroadcaster()
		logger.Warn("using in-memory inventory store; sales are lost on restart")

		return &backend{
			store:    memory.New(clk),
			locker:   memory.NewLocker(),
			notifier: feed,
			deduper:  memory.NewDeliveries(),
			changes:  feed,
		}, nil
	}

	rdb, err := redis.New(ctx, redis.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	locks := redisrepo.NewLockStore(rdb)
	pubsub := redisrepo.NewNightsPubSub(rdb)

	be := &backend{
		store:       redisrepo.NewInventoryStore(rdb),
		locker:      locks,
		notifier:    pubsub,
		deduper:     locks,
		idempotency: locks,
		changes:     pubsub,
		closers:     []func(){func() { _ = rdb.Close() }},
	}
	if cfg.Shop.RateLimitPerMinute > 0 {
		be.limiter = redisrepo.NewSlidingWindowLimiter(rdb, "checkout", cfg.Shop.RateLimitPerMinute, time.Minute)
	}

	return be, nil
}

func (b *backend) close() {
	for _, c := range b.closers {
		c()
	}
}

func adminPasswordHash(cfg config.AdminConfig, logger *slog.Logger) ([]byte, error) {
	if cfg.PasswordHash != "" {
		return []byte(cfg.PasswordHash), nil
	}
	if cfg.Password == "changeme" {
		logger.Warn("ADMIN_PASSWORD not set; using the default admin password")
	}
	return bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	defer func() {
		for _, c := range a.closers {
			c()
		}
	}()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Expired hold janitor
	g.Go(func() error {
		a.runJanitor(gCtx)
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}

func (a *App) runJanitor(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Reservation.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			released, err := a.services.Settlement.SweepExpired(ctx)
			if err != nil {
				a.logger.Warn("sweep expired holds", "error", err)
				continue
			}
			purged, err := a.services.Settlement.PurgeStore(ctx)
			if err != nil {
				a.logger.Warn("purge expired holds", "error", err)
			}
			if released > 0 || purged > 0 {
				a.logger.Info("expired holds cleaned up", "released", released, "purged", purged)
			}
		}
	}
}
