package httpgin

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kirinyoku/tix-nights/internal/payment"
	"github.com/kirinyoku/tix-nights/internal/service"
)

const maxWebhookBody = 1 << 16

// @Summary  Stripe webhook
// @Description  Verifies the Stripe-Signature header and settles checkout events.
// @Accept   json
// @Param    Stripe-Signature  header  string  true  "webhook signature"
// @Success  200  {object}  WebhookResponse
// @Failure  400  {object}  ErrorResponse
// @Router   /api/webhooks/stripe [post]
func handleStripeWebhook(svcs *service.Services, verifier payment.EventVerifier, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
		if err != nil {
			badRequest(c, "unreadable body")
			return
		}
		if len(payload) > maxWebhookBody {
			c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "payload too large"})
			return
		}

		sig := c.GetHeader("Stripe-Signature")
		if sig == "" {
			logger.Error("webhook without signature", slog.String("ip", c.ClientIP()))
			badRequest(c, "missing Stripe-Signature header")
			return
		}

		evt, err := verifier.VerifyEvent(payload, sig)
		if err != nil {
			logger.Error("webhook signature rejected", slog.String("ip", c.ClientIP()), slog.Any("err", err))
			badRequest(c, "invalid signature")
			return
		}

		outcome, err := svcs.Checkout.HandleEvent(c.Request.Context(), evt)
		if err != nil {
			// The processor must not retry: the payment stands either way.
			logger.Error("webhook settlement failed",
				slog.String("event_id", evt.ID),
				slog.String("type", string(evt.Type)),
				slog.String("checkout_id", evt.Checkout.ID),
				slog.Any("err", err),
			)
		}

		c.JSON(http.StatusOK, WebhookResponse{Received: true, Outcome: string(outcome)})
	}
}
