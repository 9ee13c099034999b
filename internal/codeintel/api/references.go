package api

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sourcegraph/precise-code-intel-core/internal/codeintel/cursor"
	"github.com/sourcegraph/precise-code-intel-core/internal/codeintel/moniker"
	"github.com/sourcegraph/precise-code-intel-core/internal/codeintel/store"
	"github.com/sourcegraph/precise-code-intel-core/internal/codeintel/types"
)

// References resolves the reference sites of the symbol at (path, line,
// character) (spec.md §4.5). Pass cur == nil for the initial request; pass
// the cursor returned by a previous call to resume pagination. The initial
// request's locations are deduplicated by value equality; a continuation
// returns only its own page and leaves merging to the caller (spec.md §3
// invariant 3, §4.6 "Deduplication").
func (b *Backend) References(ctx context.Context, repositoryID int, commit, path string, line, character, limit int, cur *cursor.Cursor) ([]types.ResolvedLocation, *cursor.Cursor, error) {
	if limit <= 0 {
		limit = b.config.RemotePageSize
	}

	if cur != nil {
		return b.referencesContinuation(ctx, repositoryID, commit, *cur, limit)
	}

	return b.referencesInitial(ctx, repositoryID, commit, path, line, character, limit)
}

func (b *Backend) referencesContinuation(ctx context.Context, repositoryID int, commit string, cur cursor.Cursor, limit int) ([]types.ResolvedLocation, *cursor.Cursor, error) {
	_, exists, err := b.metadataStore.GetDumpByID(ctx, cur.DumpID)
	if err != nil {
		return nil, nil, err
	}
	if !exists {
		// DumpGone (spec.md §3 invariant 5, §7): not an error.
		return nil, nil, nil
	}

	return b.runPaginationStateMachine(ctx, repositoryID, commit, cur, limit)
}

func (b *Backend) referencesInitial(ctx context.Context, repositoryID int, commit, path string, line, character, limit int) ([]types.ResolvedLocation, *cursor.Cursor, error) {
	dump, err := b.findClosestDump(ctx, repositoryID, commit, path)
	if err != nil {
		return nil, nil, err
	}

	dbPath := pathInDump(dump, path)

	var locations []types.ResolvedLocation
	var newCursor *cursor.Cursor

	err = b.withDatabase(ctx, dump, func(db *store.Database) error {
		local, err := db.References(ctx, dbPath, line, character)
		if err != nil {
			return err
		}
		locations = resolveLocations(dump, local)

		document, ranges, exists, err := db.GetRangeByPosition(ctx, dbPath, line, character)
		if err != nil || !exists {
			return err
		}

	rangesLoop:
		for _, r := range ranges {
			monikers := moniker.SortMonikers(monikersForRange(document, r))

			for _, m := range monikers {
				internal, _, err := db.MonikerResults(ctx, store.ReferenceModel, m.Scheme, m.Identifier, 0, 0)
				if err != nil {
					return err
				}
				locations = append(locations, resolveLocations(dump, internal)...)
			}

			var importMoniker *types.MonikerData
			var pkgInfo types.PackageInformationData
			for i := range monikers {
				if monikers[i].Kind != types.MonikerKindImport {
					continue
				}
				if info, ok := document.PackageInformation[monikers[i].PackageInformationID]; ok {
					importMoniker = &monikers[i]
					pkgInfo = info
					break
				}
			}

			if importMoniker == nil {
				continue
			}

			resolved, err := b.lookupMoniker(ctx, document, *importMoniker, store.ReferenceModel)
			if err != nil {
				return err
			}
			locations = append(locations, resolved...)

			initial := cursor.Cursor{
				DumpID:     dump.ID,
				Path:       path,
				Line:       line,
				Character:  character,
				Scheme:     importMoniker.Scheme,
				Identifier: importMoniker.Identifier,
				Name:       pkgInfo.Name,
				Version:    pkgInfo.Version,
				Phase:      cursor.PhaseSameRepo,
				Offset:     0,
			}

			pageLocations, nc, err := b.runPaginationStateMachine(ctx, repositoryID, commit, initial, limit)
			if err != nil {
				return err
			}

			locations = append(locations, pageLocations...)
			newCursor = nc
			break rangesLoop
		}

		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return dedupeLocations(locations), newCursor, nil
}

// runPaginationStateMachine drives cur's phase forward, recursing into the
// next phase/offset whenever a page comes back empty but a valid newCursor
// was produced, so a client never sees an empty page with more data behind
// it (spec.md §4.6 "skip-empty-page rule").
func (b *Backend) runPaginationStateMachine(ctx context.Context, repositoryID int, commit string, cur cursor.Cursor, limit int) ([]types.ResolvedLocation, *cursor.Cursor, error) {
	for {
		var locations []types.ResolvedLocation
		var next *cursor.Cursor
		var err error

		switch cur.Phase {
		case cursor.PhaseSameRepo:
			locations, next, err = b.sameRepoPage(ctx, repositoryID, commit, cur, limit)
		default:
			locations, next, err = b.remoteRepoPage(ctx, repositoryID, cur, limit)
		}
		if err != nil {
			return nil, nil, err
		}

		if len(locations) == 0 && next != nil {
			cur = *next
			continue
		}

		return locations, next, nil
	}
}

func (b *Backend) sameRepoPage(ctx context.Context, repositoryID int, commit string, cur cursor.Cursor, limit int) ([]types.ResolvedLocation, *cursor.Cursor, error) {
	refs, total, err := b.metadataStore.GetSameRepoRemoteReferences(ctx, repositoryID, cur.DumpID, commit, cur.Scheme, cur.Name, cur.Version, limit, cur.Offset)
	if err != nil {
		return nil, nil, err
	}

	locations, err := b.gatherReferenceLocations(ctx, refs, cur.Scheme, cur.Identifier)
	if err != nil {
		return nil, nil, err
	}

	newOffset := cur.Offset + len(refs)
	if newOffset < total {
		next := cur
		next.Offset = newOffset
		return locations, &next, nil
	}

	hasRemote, err := b.hasRemoteReferences(ctx, repositoryID, cur)
	if err != nil {
		return nil, nil, err
	}
	if !hasRemote {
		return locations, nil, nil
	}

	next := cur
	next.Phase = cursor.PhaseRemoteRepo
	next.Offset = 0
	return locations, &next, nil
}

func (b *Backend) remoteRepoPage(ctx context.Context, repositoryID int, cur cursor.Cursor, limit int) ([]types.ResolvedLocation, *cursor.Cursor, error) {
	refs, total, err := b.metadataStore.GetPackageReferences(ctx, repositoryID, cur.Scheme, cur.Name, cur.Version, limit, cur.Offset)
	if err != nil {
		return nil, nil, err
	}

	locations, err := b.gatherReferenceLocations(ctx, refs, cur.Scheme, cur.Identifier)
	if err != nil {
		return nil, nil, err
	}

	newOffset := cur.Offset + len(refs)
	if newOffset < total {
		next := cur
		next.Offset = newOffset
		return locations, &next, nil
	}

	return locations, nil, nil
}

func (b *Backend) hasRemoteReferences(ctx context.Context, repositoryID int, cur cursor.Cursor) (bool, error) {
	_, total, err := b.metadataStore.GetPackageReferences(ctx, repositoryID, cur.Scheme, cur.Name, cur.Version, 1, 0)
	if err != nil {
		return false, err
	}
	return total > 0, nil
}

// gatherReferenceLocations opens every referenced dump in parallel and
// scans its reference table for (scheme, identifier). The reference row's
// bloom filter (types.PackageReference.Filter) is not consulted here: it
// is a pure pre-filtering optimization produced by the ingestion pipeline
// (out of this core's scope, spec.md §1) and every candidate dump is
// correct, if not maximally cheap, to open unconditionally.
func (b *Backend) gatherReferenceLocations(ctx context.Context, refs []types.PackageReference, scheme, identifier string) ([]types.ResolvedLocation, error) {
	var (
		mu  sync.Mutex
		all []types.ResolvedLocation
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, ref := range refs {
		ref := ref
		g.Go(func() error {
			dump, exists, err := b.metadataStore.GetDumpByID(gctx, ref.DumpID)
			if err != nil {
				return err
			}
			if !exists {
				return nil
			}

			var locations []types.ResolvedLocation
			err = b.withDatabase(gctx, dump, func(db *store.Database) error {
				internal, _, err := db.MonikerResults(gctx, store.ReferenceModel, scheme, identifier, 0, 0)
				if err != nil {
					return err
				}
				locations = resolveLocations(dump, internal)
				return nil
			})
			if err != nil {
				return err
			}

			mu.Lock()
			all = append(all, locations...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	return all, nil
}
