package domain

import (
	"time"
)

type TierID string

const (
	TierKid        TierID = "kid"
	TierAdult      TierID = "adult"
	TierAdultDrink TierID = "adult_drink"
	TierAdultFull  TierID = "adult_full"
)

// Tier is a ticket class sold for a night. Tiers that name the same Pool
// draw from one shared capacity.
type Tier struct {
	ID         TierID `json:"id"`
	Label      string `json:"label"`
	UnitAmount int64  `json:"unit_amount"` // minor currency units
	Pool       string `json:"pool"`
}

type Pool struct {
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
}

// TierScheme describes the gated multi-tier capacity model of a night.
type TierScheme struct {
	Name  string `json:"name"`
	Base  TierID `json:"base"`
	Tiers []Tier `json:"tiers"`
	Pools []Pool `json:"pools"`
}

func (s *TierScheme) Tier(id TierID) (Tier, bool) {
	for _, t := range s.Tiers {
		if t.ID == id {
			return t, true
		}
	}
	return Tier{}, false
}

func (s *TierScheme) Pool(name string) (Pool, bool) {
	for _, p := range s.Pools {
		if p.Name == name {
			return p, true
		}
	}
	return Pool{}, false
}

// TiersInPool returns the tiers sharing the named pool, in scheme order.
func (s *TierScheme) TiersInPool(name string) []Tier {
	var out []Tier
	for _, t := range s.Tiers {
		if t.Pool == name {
			out = append(out, t)
		}
	}
	return out
}

// Night is a bookable event occurrence. Nights are configured at deploy time
// and never mutated.
type Night struct {
	Key         string      `json:"key"`
	DisplayName string      `json:"display_name"`
	Value       string      `json:"value"`
	Movie       string      `json:"movie,omitempty"`
	Scheme      *TierScheme `json:"-"`

	// RestrictedPool, when set, limits bookings to the tiers of that pool.
	RestrictedPool string `json:"restricted_pool,omitempty"`
}

func (n Night) Restricted() bool { return n.RestrictedPool != "" }

// GatingPool is the pool whose exhaustion marks the night as sold out.
func (n Night) GatingPool() string {
	if n.Restricted() {
		return n.RestrictedPool
	}
	base, _ := n.Scheme.Tier(n.Scheme.Base)
	return base.Pool
}

// Quantities maps a tier to a ticket count.
type Quantities map[TierID]int

func (q Quantities) Total() int {
	var n int
	for _, v := range q {
		n += v
	}
	return n
}

func (q Quantities) Clone() Quantities {
	out := make(Quantities, len(q))
	for k, v := range q {
		out[k] = v
	}
	return out
}

// Add returns q + other without mutating either.
func (q Quantities) Add(other Quantities) Quantities {
	out := q.Clone()
	for k, v := range other {
		out[k] += v
	}
	return out
}

// InventoryRecord holds the permanently confirmed sales of one night.
type InventoryRecord struct {
	Sold Quantities `json:"sold"`
}

func (r InventoryRecord) Get(tier TierID) int {
	if r.Sold == nil {
		return 0
	}
	return r.Sold[tier]
}

// ReservationHold is a time-boxed claim on capacity placed at checkout start.
type ReservationHold struct {
	SessionID  string     `json:"session_id"`
	NightKey   string     `json:"night_key"`
	Quantities Quantities `json:"quantities"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Live reports whether the hold still counts against availability.
func (h ReservationHold) Live(now time.Time, timeout time.Duration) bool {
	return now.Sub(h.CreatedAt) < timeout
}

type TierAvailability struct {
	Tier      TierID `json:"tier"`
	Label     string `json:"label"`
	Pool      string `json:"pool"`
	Remaining int    `json:"remaining"`
}

// Availability is derived on demand from the inventory record and the live
// holds of a night. It is never stored.
type Availability struct {
	NightKey       string             `json:"night_key"`
	DisplayName    string             `json:"display_name"`
	Value          string             `json:"value"`
	Tiers          []TierAvailability `json:"tiers"`
	IsSoldOut      bool               `json:"is_sold_out"`
	RestrictedPool string             `json:"restricted_pool,omitempty"`
}

func (a Availability) Remaining(tier TierID) int {
	for _, t := range a.Tiers {
		if t.Tier == tier {
			return t.Remaining
		}
	}
	return 0
}

// RemainingInPool returns the shared remaining value of a pool.
func (a Availability) RemainingInPool(pool string) int {
	for _, t := range a.Tiers {
		if t.Pool == pool {
			return t.Remaining
		}
	}
	return 0
}
