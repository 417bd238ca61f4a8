package classifier

import (
	"cmp"
	"slices"

	"github.com/umputun/lotwatch/pkg/domain"
	"github.com/umputun/lotwatch/pkg/identity"
)

// Sort orders decisions by tier, then category (listings first), then ascending price, then key
func Sort(ds []Decision) {
	slices.SortStableFunc(ds, compare)
}

func compare(a, b Decision) int {
	if c := cmp.Compare(a.Tier, b.Tier); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Item.Category.Rank(), b.Item.Category.Rank()); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Item.Price, b.Item.Price); c != 0 {
		return c
	}
	return cmp.Compare(a.Key, b.Key)
}

// Rank builds ordered allowed decisions from deferred snapshots, for the quiet-hours summary.
func Rank(items []domain.DeferredItem, bands domain.PriceBands) []Decision {
	res := make([]Decision, 0, len(items))
	for _, di := range items {
		res = append(res, Decision{
			Item:        di.Item,
			Key:         identity.KeyOf(di.Item.URL),
			Disposition: DispositionAllowed,
			Tier:        domain.TierForPrice(di.Item.Price, bands),
			Reason:      "deferred",
		})
	}
	Sort(res)
	return res
}
