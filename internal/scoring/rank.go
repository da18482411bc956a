package scoring

import (
	"cmp"
	"slices"
)

// RankStable sorts items by key descending in place. Equal keys keep their
// input order.
func RankStable[T any](items []T, key func(T) float64) {
	slices.SortStableFunc(items, func(a, b T) int {
		return cmp.Compare(key(b), key(a))
	})
}
