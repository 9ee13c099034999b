// Package moniker orders a range's monikers by how likely they are to
// produce a useful cross-dump lookup (spec.md §4.2, §8 invariant 4).
package moniker

import (
	"sort"

	"github.com/sourcegraph/precise-code-intel-core/internal/codeintel/types"
)

// kindRank orders monikers by kind: import first, then export, then local;
// a local moniker carries no cross-dump information at all.
var kindRank = map[types.MonikerKind]int{
	types.MonikerKindImport: 0,
	types.MonikerKindExport: 1,
	types.MonikerKindLocal:  2,
}

// schemeRank gives a handful of well-known moniker schemes priority over an
// unrecognized one, so that e.g. a "tsc" moniker is preferred to a "npm"
// moniker of the same kind when both are attached to the same range.
var schemePriority = []string{"tsc", "npm", "go", "pip", "cargo"}

var schemeRank = func() map[string]int {
	m := make(map[string]int, len(schemePriority))
	for i, scheme := range schemePriority {
		m[scheme] = i
	}
	return m
}()

func rankScheme(scheme string) int {
	if rank, ok := schemeRank[scheme]; ok {
		return rank
	}
	return len(schemePriority)
}

// SortMonikers orders monikers import-first, then export, then local;
// ties within a kind are broken by scheme preference, then lexicographic
// scheme and identifier. The result is total and idempotent: sorting an
// already-sorted slice returns the same order.
func SortMonikers(monikers []types.MonikerData) []types.MonikerData {
	sorted := make([]types.MonikerData, len(monikers))
	copy(sorted, monikers)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]

		if ak, bk := kindRank[a.Kind], kindRank[b.Kind]; ak != bk {
			return ak < bk
		}

		if ar, br := rankScheme(a.Scheme), rankScheme(b.Scheme); ar != br {
			return ar < br
		}

		if a.Scheme != b.Scheme {
			return a.Scheme < b.Scheme
		}

		return a.Identifier < b.Identifier
	})

	return sorted
}
