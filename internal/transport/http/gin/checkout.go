package httpgin

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	redisrepo "github.com/kirinyoku/tix-nights/internal/repository/redis"
	"github.com/kirinyoku/tix-nights/internal/service"
	"github.com/kirinyoku/tix-nights/internal/service/checkout"
)

const (
	idemLockTTL   = 60 * time.Second
	idemResultTTL = 2 * time.Hour
)

// @Summary  Start checkout (idempotent)
// @Description  Reserves tickets and returns the hosted payment page URL.
// @Param    req  body  CheckoutRequest  true  "booking"
// @Param    Idempotency-Key  header  string  false  "replays the first response"
// @Success  200  {object}  CheckoutResponse
// @Failure  400  {object}  ErrorResponse
// @Failure  409  {object}  ErrorResponse  "insufficient capacity / idem in progress"
// @Failure  429  {object}  ErrorResponse  "rate limited"
// @Failure  502  {object}  ErrorResponse
// @Router   /api/checkout [post]
func handleCreateCheckout(
	svcs *service.Services,
	idem IdempotencyStore,
	limiter RateLimiter,
	logger *slog.Logger,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if limiter != nil {
			allowed, retry, err := limiter.Allow(ctx, c.ClientIP())
			if err != nil {
				logger.Warn("rate limiter unavailable", slog.Any("err", err))
			} else if !allowed {
				c.Header("Retry-After", strconv.Itoa(int(retry.Round(time.Second).Seconds())+1))
				c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "too many requests", Code: "rate_limited"})
				return
			}
		}

		var req CheckoutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemCheckout(idemKey)

			payload, done, claimed, err := idem.BeginIdempotent(ctx, idemStorageKey, idemLockTTL)
			if err != nil {
				respondErr(c, err)
				return
			}
			if done {
				c.Header("Idempotency-Key", idemKey)
				c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(payload))
				return
			}
			if !claimed {
				c.Header("Retry-After", "1")
				c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
				return
			}
		}

		res, err := svcs.Checkout.Start(ctx, checkout.Request{
			Name:    req.Name,
			Email:   req.Email,
			Night:   req.Night,
			Tickets: req.quantities(),
		})
		if err != nil {
			if idemStorageKey != "" {
				_ = idem.Forget(ctx, idemStorageKey)
			}
			respondErr(c, err)
			return
		}

		resp := CheckoutResponse{URL: res.URL}

		if idemStorageKey != "" {
			b, _ := json.Marshal(resp)
			if err := idem.CompleteIdempotent(ctx, idemStorageKey, string(b), idemResultTTL); err != nil {
				logger.Warn("store idempotent response", slog.Any("err", err))
			}
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusOK, resp)
	}
}
