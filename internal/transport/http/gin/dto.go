package httpgin

import (
	"github.com/kirinyoku/tix-nights/internal/domain"
	"github.com/kirinyoku/tix-nights/internal/service/reconcile"
)

type CheckoutRequest struct {
	Name    string         `json:"name" binding:"required,max=200"`
	Email   string         `json:"email" binding:"required,email"`
	Night   string         `json:"night" binding:"required"`
	Tickets map[string]int `json:"tickets" binding:"required"`
}

func (r CheckoutRequest) quantities() domain.Quantities {
	q := make(domain.Quantities, len(r.Tickets))
	for tier, n := range r.Tickets {
		q[domain.TierID(tier)] = n
	}
	return q
}

type CheckoutResponse struct {
	URL string `json:"url"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Remaining *int   `json:"remaining,omitempty"`
}

type WebhookResponse struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome,omitempty"`
}

type NightResponse struct {
	Key            string         `json:"key"`
	DisplayName    string         `json:"display_name"`
	Value          string         `json:"value"`
	Movie          string         `json:"movie,omitempty"`
	RestrictedPool string         `json:"restricted_pool,omitempty"`
	Tiers          []TierResponse `json:"tiers"`
}

type TierResponse struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	UnitAmount int64  `json:"unit_amount"`
	Pool       string `json:"pool"`
	Capacity   int    `json:"capacity"`
}

func toNightResponse(n domain.Night) NightResponse {
	out := NightResponse{
		Key:            n.Key,
		DisplayName:    n.DisplayName,
		Value:          n.Value,
		Movie:          n.Movie,
		RestrictedPool: n.RestrictedPool,
	}

	for _, t := range n.Scheme.Tiers {
		if n.Restricted() && t.Pool != n.RestrictedPool {
			continue
		}
		p, _ := n.Scheme.Pool(t.Pool)
		out.Tiers = append(out.Tiers, TierResponse{
			ID:         string(t.ID),
			Label:      t.Label,
			UnitAmount: t.UnitAmount,
			Pool:       t.Pool,
			Capacity:   p.Capacity,
		})
	}

	return out
}

type SyncResponse struct {
	Updated []reconcile.SyncResult `json:"updated"`
}

type InitInventoryResponse struct {
	Initialized int `json:"initialized"`
}

type OrdersResponse struct {
	Orders []reconcile.Order `json:"orders"`
	Count  int               `json:"count"`
}
