package store

import (
	"sort"

	"github.com/sourcegraph/precise-code-intel-core/internal/codeintel/types"
)

// findRanges returns every range in ranges that covers (line, character),
// ordered innermost first (smallest span wins ties). Coverage is half-open:
// start is inclusive, end is exclusive (spec.md §4.2, §8 boundary
// behaviours).
func findRanges(ranges map[types.ID]types.RangeData, line, character int) []types.RangeData {
	var filtered []types.RangeData
	for _, r := range ranges {
		if comparePosition(r, line, character) == 0 {
			filtered = append(filtered, r)
		}
	}

	sort.Slice(filtered, func(i, j int) bool {
		return spanLess(filtered[i], filtered[j])
	})

	return filtered
}

// spanLess reports whether a covers strictly less than b — i.e. a is the
// more deeply nested (innermost) of the two.
func spanLess(a, b types.RangeData) bool {
	aLines, aChars := a.EndLine-a.StartLine, a.EndCharacter-a.StartCharacter
	bLines, bChars := b.EndLine-b.StartLine, b.EndCharacter-b.StartCharacter

	if aLines != bLines {
		return aLines < bLines
	}
	return aChars < bChars
}

// comparePosition reports how (line, character) relates to r's span: 0 if
// covered (start inclusive, end exclusive), +1 if the position precedes the
// range, -1 if it follows it.
func comparePosition(r types.RangeData, line, character int) int {
	if line < r.StartLine {
		return 1
	}
	if line > r.EndLine {
		return -1
	}

	if line == r.StartLine && character < r.StartCharacter {
		return 1
	}
	if line == r.EndLine && character >= r.EndCharacter {
		return -1
	}

	return 0
}

func toRange(startLine, startCharacter, endLine, endCharacter int) types.Range {
	return types.Range{
		Start: types.Position{Line: startLine, Character: startCharacter},
		End:   types.Position{Line: endLine, Character: endCharacter},
	}
}
