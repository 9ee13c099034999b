package api

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/sourcegraph/precise-code-intel-core/internal/codeintel/store"
	"github.com/sourcegraph/precise-code-intel-core/internal/codeintel/types"
)

// FindClosestDumps resolves candidate dumps from the metadata store, then
// fans out an Exists check against each one in parallel, preserving the
// metadata store's order among those that pass (spec.md §4.7, §8
// invariant 5).
func (b *Backend) FindClosestDumps(ctx context.Context, repositoryID int, commit, path string) ([]types.Dump, error) {
	candidates, err := b.metadataStore.FindClosestDumps(ctx, repositoryID, commit, path)
	if err != nil {
		return nil, errors.Wrap(err, "metadataStore.FindClosestDumps")
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	exists := make([]bool, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	for i, dump := range candidates {
		i, dump := i, dump
		g.Go(func() error {
			ok, err := b.exists(gctx, dump, path)
			if err != nil {
				return err
			}
			exists[i] = ok
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	filtered := make([]types.Dump, 0, len(candidates))
	for i, dump := range candidates {
		if exists[i] {
			filtered = append(filtered, dump)
		}
	}

	return filtered, nil
}

func (b *Backend) exists(ctx context.Context, dump types.Dump, repoPath string) (bool, error) {
	var ok bool
	err := b.withDatabase(ctx, dump, func(db *store.Database) error {
		found, err := db.Exists(ctx, pathInDump(dump, repoPath))
		ok = found
		return err
	})
	return ok, err
}

// findClosestDump resolves to the single nearest dump, if any, returning
// ErrNoDumpFound when there is none (spec.md §4.4 step 1, §7).
func (b *Backend) findClosestDump(ctx context.Context, repositoryID int, commit, path string) (types.Dump, error) {
	dumps, err := b.FindClosestDumps(ctx, repositoryID, commit, path)
	if err != nil {
		return types.Dump{}, err
	}
	if len(dumps) == 0 {
		return types.Dump{}, ErrNoDumpFound
	}

	return dumps[0], nil
}
