package httpgin

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kirinyoku/tix-nights/internal/service"
)

const streamHeartbeat = 25 * time.Second

// @Summary  List nights
// @Success  200  {array}  NightResponse
// @Router   /api/nights [get]
func handleListNights(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		nights := svcs.Catalog.List()
		out := make([]NightResponse, 0, len(nights))
		for _, n := range nights {
			out = append(out, toNightResponse(n))
		}
		writeJSONWithETag(c, http.StatusOK, out, "public, max-age=300")
	}
}

// @Summary  Get availability
// @Param    night  query  string  false  "Night value or key; all nights when omitted"
// @Success  200  {array}   domain.Availability
// @Failure  400  {object}  ErrorResponse
// @Failure  503  {object}  ErrorResponse
// @Router   /api/availability [get]
func handleGetAvailability(svcs *service.Services, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if _, err := svcs.Settlement.SweepExpired(ctx); err != nil {
			logger.Warn("sweep before availability read", slog.Any("err", err))
		}

		if sel := c.Query("night"); sel != "" {
			night, ok := svcs.Catalog.ByValue(sel)
			if !ok {
				night, ok = svcs.Catalog.ByKey(sel)
			}
			if !ok {
				c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unknown night", Code: "night_not_found"})
				return
			}

			a, err := svcs.Availability.Night(ctx, night.Key)
			if err != nil {
				respondErr(c, err)
				return
			}
			writeJSONWithETag(c, http.StatusOK, a, "no-cache")
			return
		}

		all, err := svcs.Availability.All(ctx)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithETag(c, http.StatusOK, all, "no-cache")
	}
}

// @Summary  Stream availability (server-sent events)
// @Description  Sends "availability" with every night on connect, then "night" whenever a night changes.
// @Produce  text/event-stream
// @Success  200
// @Failure  501  {object}  ErrorResponse
// @Router   /api/availability/stream [get]
func handleAvailabilityStream(svcs *service.Services, changes ChangeFeed, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if changes == nil {
			c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "live updates unavailable"})
			return
		}

		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()

		updates := make(chan string, 32)
		go func() {
			err := changes.Subscribe(ctx, func(_ context.Context, nightKey string) {
				select {
				case updates <- nightKey:
				default:
				}
			})
			if err != nil && ctx.Err() == nil {
				logger.Warn("availability stream subscription ended", slog.Any("err", err))
				cancel()
			}
		}()

		all, err := svcs.Availability.All(ctx)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.Header("Cache-Control", "no-cache")
		c.Header("X-Accel-Buffering", "no")
		c.SSEvent("availability", all)
		c.Writer.Flush()

		heartbeat := time.NewTicker(streamHeartbeat)
		defer heartbeat.Stop()

		c.Stream(func(io.Writer) bool {
			select {
			case <-ctx.Done():
				return false
			case nightKey := <-updates:
				a, err := svcs.Availability.Night(ctx, nightKey)
				if err != nil {
					logger.Warn("availability stream refresh", slog.String("night", nightKey), slog.Any("err", err))
					return true
				}
				c.SSEvent("night", a)
				return true
			case t := <-heartbeat.C:
				c.SSEvent("ping", t.Unix())
				return true
			}
		})
	}
}
