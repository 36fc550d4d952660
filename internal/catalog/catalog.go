package catalog

import (
	"errors"
	"fmt"

	"github.com/kirinyoku/tix-nights/internal/domain"
)

var ErrInvalidCatalog = errors.New("invalid catalog")

// Catalog is an immutable, ordered table of bookable nights.
type Catalog struct {
	nights  []domain.Night
	byKey   map[string]int
	byValue map[string]int
}

// New validates the table and returns a catalog over a private copy of it.
func New(nights []domain.Night) (*Catalog, error) {
	const op = "catalog.New"

	c := &Catalog{
		nights:  make([]domain.Night, len(nights)),
		byKey:   make(map[string]int, len(nights)),
		byValue: make(map[string]int, len(nights)),
	}
	copy(c.nights, nights)

	for i, n := range c.nights {
		if n.Key == "" || n.Value == "" {
			return nil, fmt.Errorf("%s: %w: night %d has empty key or value", op, ErrInvalidCatalog, i)
		}
		if n.Scheme == nil {
			return nil, fmt.Errorf("%s: %w: night %q has no tier scheme", op, ErrInvalidCatalog, n.Key)
		}
		if err := validateScheme(n.Scheme); err != nil {
			return nil, fmt.Errorf("%s: %w: night %q: %v", op, ErrInvalidCatalog, n.Key, err)
		}
		if n.Restricted() {
			if _, ok := n.Scheme.Pool(n.RestrictedPool); !ok {
				return nil, fmt.Errorf("%s: %w: night %q restricted to unknown pool %q", op, ErrInvalidCatalog, n.Key, n.RestrictedPool)
			}
		}
		if _, dup := c.byKey[n.Key]; dup {
			return nil, fmt.Errorf("%s: %w: duplicate key %q", op, ErrInvalidCatalog, n.Key)
		}
		if _, dup := c.byValue[n.Value]; dup {
			return nil, fmt.Errorf("%s: %w: duplicate value %q", op, ErrInvalidCatalog, n.Value)
		}
		c.byKey[n.Key] = i
		c.byValue[n.Value] = i
	}

	return c, nil
}

// MustNew is New for statically known tables.
func MustNew(nights []domain.Night) *Catalog {
	c, err := New(nights)
	if err != nil {
		panic(err)
	}
	return c
}

func validateScheme(s *domain.TierScheme) error {
	if len(s.Tiers) == 0 {
		return errors.New("no tiers")
	}
	if _, ok := s.Tier(s.Base); !ok {
		return fmt.Errorf("base tier %q not defined", s.Base)
	}
	seen := make(map[domain.TierID]bool, len(s.Tiers))
	for _, t := range s.Tiers {
		if seen[t.ID] {
			return fmt.Errorf("duplicate tier %q", t.ID)
		}
		seen[t.ID] = true
		if _, ok := s.Pool(t.Pool); !ok {
			return fmt.Errorf("tier %q uses unknown pool %q", t.ID, t.Pool)
		}
	}
	for _, p := range s.Pools {
		if p.Capacity < 0 {
			return fmt.Errorf("pool %q has negative capacity", p.Name)
		}
	}
	return nil
}

// List returns the nights in catalog order.
func (c *Catalog) List() []domain.Night {
	out := make([]domain.Night, len(c.nights))
	copy(out, c.nights)
	return out
}

func (c *Catalog) ByKey(key string) (domain.Night, bool) {
	i, ok := c.byKey[key]
	if !ok {
		return domain.Night{}, false
	}
	return c.nights[i], true
}

// ByValue resolves the booking-form value of a night.
func (c *Catalog) ByValue(value string) (domain.Night, bool) {
	i, ok := c.byValue[value]
	if !ok {
		return domain.Night{}, false
	}
	return c.nights[i], true
}

func (c *Catalog) Len() int { return len(c.nights) }
