package makerworld

import (
	"makerworld-stats/internal/snapshot"
	"slices"
)

// LimitModels applies the "max models to scan" option. Refs are ordered by
// ascending model id and the first max are kept, max <= 0 keeps all of them.
func LimitModels(refs []snapshot.ModelRef, max int) []snapshot.ModelRef {
	out := slices.Clone(refs)
	slices.SortStableFunc(out, func(a, b snapshot.ModelRef) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}
