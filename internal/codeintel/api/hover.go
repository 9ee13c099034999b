package api

import (
	"context"

	"github.com/sourcegraph/precise-code-intel-core/internal/codeintel/store"
	"github.com/sourcegraph/precise-code-intel-core/internal/codeintel/types"
)

// Hover resolves the hover text and triggering range at (path, line,
// character) (spec.md §4.8). When the local dump has no hover result for
// the position, it falls back to asking the definition's owning dump,
// since some indexers record monikers without hover text — the
// definition's home dump is authoritative.
func (b *Backend) Hover(ctx context.Context, repositoryID int, commit, path string, line, character int) (string, types.Range, bool, error) {
	dump, err := b.findClosestDump(ctx, repositoryID, commit, path)
	if err != nil {
		return "", types.Range{}, false, err
	}

	dbPath := pathInDump(dump, path)

	var text string
	var rng types.Range
	var found bool

	err = b.withDatabase(ctx, dump, func(db *store.Database) error {
		text, rng, found, err = db.Hover(ctx, dbPath, line, character)
		return err
	})
	if err != nil {
		return "", types.Range{}, false, err
	}
	if found {
		return text, rng, true, nil
	}

	definitions, err := b.Definitions(ctx, repositoryID, commit, path, line, character)
	if err != nil {
		return "", types.Range{}, false, err
	}
	if len(definitions) == 0 {
		return "", types.Range{}, false, nil
	}

	def := definitions[0]
	defDBPath := pathInDump(def.Dump, def.Path)

	err = b.withDatabase(ctx, def.Dump, func(db *store.Database) error {
		text, rng, found, err = db.Hover(ctx, defDBPath, def.Range.Start.Line, def.Range.Start.Character)
		return err
	})
	if err != nil {
		return "", types.Range{}, false, err
	}

	return text, rng, found, nil
}
