package httpgin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/kirinyoku/tix-nights/internal/payment"
	"github.com/kirinyoku/tix-nights/internal/repository"
	"github.com/kirinyoku/tix-nights/internal/service"
	"github.com/kirinyoku/tix-nights/internal/service/availability"
	"github.com/kirinyoku/tix-nights/internal/service/checkout"
	"github.com/kirinyoku/tix-nights/internal/service/reconcile"
	"github.com/kirinyoku/tix-nights/internal/service/reservation"
)

// IdempotencyStore replays the first response of a retried request.
type IdempotencyStore interface {
	BeginIdempotent(ctx context.Context, key string, lockTTL time.Duration) (payload string, done, claimed bool, err error)
	CompleteIdempotent(ctx context.Context, key, payload string, ttl time.Duration) error
	Forget(ctx context.Context, key string) error
}

type RateLimiter interface {
	Allow(ctx context.Context, id string) (allowed bool, retryAfter time.Duration, err error)
}

// ChangeFeed delivers night-changed notifications to live streams.
type ChangeFeed interface {
	Subscribe(ctx context.Context, handler func(ctx context.Context, nightKey string)) error
}

// Deps are the collaborators of the HTTP surface. Idempotency, Limiter and
// Changes are optional; their features switch off when nil.
type Deps struct {
	Services          *service.Services
	Verifier          payment.EventVerifier
	Idempotency       IdempotencyStore
	Limiter           RateLimiter
	Changes           ChangeFeed
	AdminPasswordHash []byte
}

func NewRouter(
	deps Deps,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	svcs := deps.Services

	api := r.Group("/api")
	{
		api.GET("/nights", handleListNights(svcs))
		api.GET("/availability", handleGetAvailability(svcs, logger))
		api.GET("/availability/stream", handleAvailabilityStream(svcs, deps.Changes, logger))

		api.POST("/checkout", handleCreateCheckout(svcs, deps.Idempotency, deps.Limiter, logger))
		api.POST("/webhooks/stripe", handleStripeWebhook(svcs, deps.Verifier, logger))
	}

	admin := api.Group("/admin", AdminAuth(deps.AdminPasswordHash, logger))
	{
		admin.GET("/sync-inventory", handleGetDiscrepancies(svcs))
		admin.POST("/sync-inventory", handleForceSync(svcs))
		admin.POST("/init-inventory", handleInitInventory(svcs))
		admin.GET("/orders", handleListOrders(svcs))
		admin.GET("/orders.csv", handleExportOrdersCSV(svcs))
	}

	return r
}

// --- Helpers ---

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

var rejectionCodes = map[error]string{
	reservation.ErrNightNotFound:    "night_not_found",
	reservation.ErrSalesClosed:      "sales_closed",
	reservation.ErrInvalidQuantity:  "invalid_quantity",
	reservation.ErrRestrictedTier:   "restricted_tier",
	reservation.ErrNoTickets:        "no_tickets",
	reservation.ErrBaseTierRequired: "base_tier_required",
	reservation.ErrQuantityCeiling:  "quantity_ceiling",
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	var (
		capErr *reservation.CapacityError
		rejErr *reservation.RejectionError
	)

	switch {
	// reservation rules
	case errors.As(err, &capErr):
		remaining := capErr.Remaining
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:     capErr.Error(),
			Code:      "insufficient_capacity",
			Remaining: &remaining,
		})
		return
	case errors.As(err, &rejErr):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: rejErr.Reason,
			Code:  rejectionCodes[rejErr.Code],
		})
		return
	case errors.Is(err, checkout.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "name and email are required", Code: "invalid_request"})
		return
	case errors.Is(err, availability.ErrNightNotFound):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unknown night", Code: "night_not_found"})
		return
	// upstreams
	case errors.Is(err, payment.ErrProcessor), errors.Is(err, reconcile.ErrLedgerUnavailable):
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "payment provider unavailable"})
		return
	case errors.Is(err, repository.ErrUnavailable), errors.Is(err, repository.ErrCorrupt):
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "storage unavailable"})
		return
	}

	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}
