package api

import (
	"context"

	"github.com/sourcegraph/precise-code-intel-core/internal/codeintel/moniker"
	"github.com/sourcegraph/precise-code-intel-core/internal/codeintel/store"
	"github.com/sourcegraph/precise-code-intel-core/internal/codeintel/types"
)

// Definitions resolves the definition site of the symbol at (path, line,
// character) in repositoryID at commit (spec.md §4.4). It returns
// ErrNoDumpFound if no dump covers path; an empty, non-nil slice means a
// dump was found but no definition exists.
func (b *Backend) Definitions(ctx context.Context, repositoryID int, commit, path string, line, character int) ([]types.ResolvedLocation, error) {
	dump, err := b.findClosestDump(ctx, repositoryID, commit, path)
	if err != nil {
		return nil, err
	}

	dbPath := pathInDump(dump, path)

	locations := []types.ResolvedLocation{}
	err = b.withDatabase(ctx, dump, func(db *store.Database) error {
		local, err := db.Definitions(ctx, dbPath, line, character)
		if err != nil {
			return err
		}
		if len(local) > 0 {
			locations = resolveLocations(dump, local)
			return nil
		}

		document, ranges, exists, err := db.GetRangeByPosition(ctx, dbPath, line, character)
		if err != nil || !exists {
			return err
		}

		for _, r := range ranges {
			for _, m := range moniker.SortMonikers(monikersForRange(document, r)) {
				if m.Kind == types.MonikerKindImport {
					resolved, err := b.lookupMoniker(ctx, document, m, store.DefinitionModel)
					if err != nil {
						return err
					}
					if len(resolved) > 0 {
						locations = resolved
						return nil
					}
					continue
				}

				internal, _, err := db.MonikerResults(ctx, store.DefinitionModel, m.Scheme, m.Identifier, 0, 0)
				if err != nil {
					return err
				}
				if len(internal) > 0 {
					locations = resolveLocations(dump, internal)
					return nil
				}
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return locations, nil
}
