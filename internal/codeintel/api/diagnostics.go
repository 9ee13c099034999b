package api

import (
	"context"

	"github.com/sourcegraph/precise-code-intel-core/internal/codeintel/store"
	"github.com/sourcegraph/precise-code-intel-core/internal/codeintel/types"
)

// Diagnostics lists dumpID's diagnostics filtered by a path prefix,
// paginated by limit/offset (SPEC_FULL.md §4.8). Diagnostics are
// dump-local by construction, so unlike Definitions/References this never
// fans out across dumps.
func (b *Backend) Diagnostics(ctx context.Context, dumpID int, prefix string, limit, offset int) ([]types.ResolvedDiagnostic, int, error) {
	dump, exists, err := b.metadataStore.GetDumpByID(ctx, dumpID)
	if err != nil {
		return nil, 0, err
	}
	if !exists {
		return nil, 0, ErrNoDumpFound
	}

	var diagnostics []types.ResolvedDiagnostic
	var total int

	err = b.withDatabase(ctx, dump, func(db *store.Database) error {
		page, count, err := db.Diagnostics(ctx, prefix, limit, offset)
		if err != nil {
			return err
		}

		total = count
		for _, d := range page {
			diagnostics = append(diagnostics, types.ResolvedDiagnostic{
				Dump:       dump,
				Path:       repoRelativePath(dump, d.Path),
				Diagnostic: d.Diagnostic,
			})
		}

		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	return diagnostics, total, nil
}
