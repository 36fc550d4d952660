package catalog

import "github.com/kirinyoku/tix-nights/internal/domain"

const (
	PoolKids   = "kids"
	PoolAdults = "adults"
)

// TwoTier sells kid and adult tickets from separate pools.
var TwoTier = &domain.TierScheme{
	Name: "two-tier",
	Base: domain.TierKid,
	Tiers: []domain.Tier{
		{ID: domain.TierKid, Label: "kid", UnitAmount: 1000, Pool: PoolKids},
		{ID: domain.TierAdult, Label: "adult", UnitAmount: 500, Pool: PoolAdults},
	},
	Pools: []domain.Pool{
		{Name: PoolKids, Capacity: 20},
		{Name: PoolAdults, Capacity: 15},
	},
}

// ThreeTier splits adults into a drink-only and a full-treat ticket that
// share one adult cap.
var ThreeTier = &domain.TierScheme{
	Name: "three-tier",
	Base: domain.TierKid,
	Tiers: []domain.Tier{
		{ID: domain.TierKid, Label: "kid", UnitAmount: 1000, Pool: PoolKids},
		{ID: domain.TierAdultDrink, Label: "adult (drink)", UnitAmount: 500, Pool: PoolAdults},
		{ID: domain.TierAdultFull, Label: "adult (full treat)", UnitAmount: 1000, Pool: PoolAdults},
	},
	Pools: []domain.Pool{
		{Name: PoolKids, Capacity: 20},
		{Name: PoolAdults, Capacity: 15},
	},
}

func night(key, display, value, movie string) domain.Night {
	return domain.Night{Key: key, DisplayName: display, Value: value, Movie: movie, Scheme: ThreeTier}
}

func adultsOnly(n domain.Night) domain.Night {
	n.RestrictedPool = PoolAdults
	return n
}

// Season returns the festive movie-night season.
func Season() *Catalog {
	return MustNew([]domain.Night{
		night("11-nov", "Tue 11 Nov - Home Alone 2 - 5:00PM", "Tuesday 11 Nov — 5:00pm", "Home Alone 2"),
		night("18-nov", "Tue 18 Nov - Grinch - 5:00PM", "Tuesday 18 Nov — 5:00pm", "Grinch"),
		night("19-nov", "Wed 19 Nov - Arthur Christmas - 5:00PM", "Wednesday 19 Nov — 5:00pm", "Arthur Christmas"),
		adultsOnly(night("26-nov", "Wed 26 Nov - Polar Express - 6:30PM arrival (6:45PM start) - ADULTS ONLY", "Wednesday 26 Nov — 6:30pm arrival (6:45pm start)", "Polar Express")),
		adultsOnly(night("27-nov", "Thu 27 Nov - Elf - 6:30PM arrival (6:45PM start) - ADULTS ONLY", "Thursday 27 Nov — 6:30pm arrival (6:45pm start)", "Elf")),
		night("3-dec", "Wed 3 Dec - Christmas Chronicles - 5:00PM", "Wednesday 3 Dec — 5:00pm", "Christmas Chronicles"),
		night("4-dec", "Thu 4 Dec - The Santa Clause - 5:00PM", "Thursday 4 Dec — 5:00pm", "The Santa Clause"),
		night("10-dec", "Wed 10 Dec - Jingle Jangle - 5:00PM", "Wednesday 10 Dec — 5:00pm", "Jingle Jangle"),
		night("16-dec", "Tue 16 Dec - Cartoon Grinch - 5:00PM", "Tuesday 16 Dec — 5:00pm", "Cartoon Grinch"),
		night("18-dec", "Thu 18 Dec - Home Alone - 5:00PM", "Thursday 18 Dec — 5:00pm", "Home Alone"),
		night("22-dec", "Mon 22 Dec - Home Alone 2 - 5:00PM", "Monday 22 Dec — 5:00pm", "Home Alone 2"),
		night("23-dec", "Tue 23 Dec - Polar Express - 5:00PM", "Tuesday 23 Dec — 5:00pm", "Polar Express"),
		night("29-dec", "Mon 29 Dec - Elf - 5:00PM", "Monday 29 Dec — 5:00pm", "Elf"),
		night("30-dec", "Tue 30 Dec - Jingle all the Way - 5:00PM", "Tuesday 30 Dec — 5:00pm", "Jingle all the Way"),
	})
}
