package payment

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kirinyoku/tix-nights/internal/domain"
)

const (
	MetaNightKey      = "night_key"
	MetaNightValue    = "event_night"
	MetaCustomerName  = "customer_name"
	MetaCorrelationID = "temp_session_id"
	MetaProductType   = "product_type"

	ticketsSuffix = "_tickets"

	// ProductTickets marks checkouts created by this service. Checkouts of
	// other products share the account and are skipped.
	ProductTickets = "movie_night"
)

var (
	ErrNoBooking  = errors.New("checkout carries no booking metadata")
	ErrNotTickets = errors.New("checkout is not a ticket sale")
)

// Booking is what a checkout session carries in its metadata so that the
// webhook can settle it without any local state.
type Booking struct {
	NightKey      string
	NightValue    string
	CustomerName  string
	CorrelationID string
	Quantities    domain.Quantities
}

func MetaTickets(tier domain.TierID) string {
	return string(tier) + ticketsSuffix
}

func (b Booking) Metadata() map[string]string {
	md := map[string]string{
		MetaNightKey:      b.NightKey,
		MetaNightValue:    b.NightValue,
		MetaCustomerName:  b.CustomerName,
		MetaCorrelationID: b.CorrelationID,
		MetaProductType:   ProductTickets,
	}

	for tier, n := range b.Quantities {
		md[MetaTickets(tier)] = strconv.Itoa(n)
	}

	return md
}

// ParseBooking recovers a Booking from checkout metadata. Checkouts created
// before product_type was stamped are treated as ticket sales.
func ParseBooking(md map[string]string) (Booking, error) {
	const op = "payment.ParseBooking"

	if pt, ok := md[MetaProductType]; ok && pt != ProductTickets {
		return Booking{}, fmt.Errorf("%s: %w: %q", op, ErrNotTickets, pt)
	}

	b := Booking{
		NightKey:      md[MetaNightKey],
		NightValue:    md[MetaNightValue],
		CustomerName:  md[MetaCustomerName],
		CorrelationID: md[MetaCorrelationID],
		Quantities:    domain.Quantities{},
	}

	if b.NightKey == "" {
		return Booking{}, fmt.Errorf("%s: %w", op, ErrNoBooking)
	}

	for k, v := range md {
		tier, ok := strings.CutSuffix(k, ticketsSuffix)
		if !ok || tier == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Booking{}, fmt.Errorf("%s: %w: %s=%q", op, ErrMalformedEvent, k, v)
		}
		if n > 0 {
			b.Quantities[domain.TierID(tier)] = n
		}
	}

	return b, nil
}

// SortedTiers returns the tiers of q in a stable order for display.
func SortedTiers(q domain.Quantities) []domain.TierID {
	out := make([]domain.TierID, 0, len(q))
	for t := range q {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
