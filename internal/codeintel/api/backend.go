// Package api is the backend resolver: it orchestrates closest-dump
// selection, local per-dump lookups, moniker-based cross-dump resolution,
// and reference pagination on top of the store and metadata packages
// (spec.md §4.4–§4.8).
package api

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/sourcegraph/precise-code-intel-core/internal/codeintel/cache"
	"github.com/sourcegraph/precise-code-intel-core/internal/codeintel/metadata"
	"github.com/sourcegraph/precise-code-intel-core/internal/codeintel/store"
	"github.com/sourcegraph/precise-code-intel-core/internal/codeintel/types"
)

// Config holds the tunables the teacher's env.go exposes as
// PRECISE_CODE_INTEL_* settings.
type Config struct {
	// RemotePageSize bounds how many dumps are consulted per page of the
	// same-repo/remote-repo pagination phases.
	RemotePageSize int

	// BundleDir is the root directory dump.Filename is resolved against,
	// mirroring the teacher's bundle-manager dbFilename convention.
	BundleDir string
}

// Backend is the query-serving core. It is constructed once per process
// and is safe for concurrent use by many in-flight requests.
type Backend struct {
	metadataStore    metadata.Store
	connectionCache  *cache.ConnectionCache
	documentCache    *cache.DocumentCache
	resultChunkCache *cache.ResultChunkCache
	config           Config
}

func New(metadataStore metadata.Store, connectionCache *cache.ConnectionCache, documentCache *cache.DocumentCache, resultChunkCache *cache.ResultChunkCache, config Config) *Backend {
	return &Backend{
		metadataStore:    metadataStore,
		connectionCache:  connectionCache,
		documentCache:    documentCache,
		resultChunkCache: resultChunkCache,
		config:           config,
	}
}

// withDatabase borrows the per-dump Database for dump for the duration of
// body, opening it on first use and pinning it against eviction for as
// long as body runs (cache.ConnectionCache.WithConnection).
func (b *Backend) withDatabase(ctx context.Context, dump types.Dump, body func(db *store.Database) error) error {
	path := filepath.Join(b.config.BundleDir, dump.Filename)

	return b.connectionCache.WithConnection(path, func() (cache.ConnectionHandle, error) {
		return store.Open(path, dump.ID, b.documentCache, b.resultChunkCache)
	}, func(h cache.ConnectionHandle) error {
		return body(h.(*store.Database))
	})
}

// pathInDump converts a repo-relative path to the path stored inside dump
// (spec.md §3 invariant 1).
func pathInDump(dump types.Dump, repoPath string) string {
	return strings.TrimPrefix(repoPath, dump.Root)
}

// repoRelativePath is pathInDump's inverse.
func repoRelativePath(dump types.Dump, dumpPath string) string {
	return dump.Root + dumpPath
}

func resolveLocations(dump types.Dump, locations []types.InternalLocation) []types.ResolvedLocation {
	resolved := make([]types.ResolvedLocation, 0, len(locations))
	for _, l := range locations {
		resolved = append(resolved, types.ResolvedLocation{
			Dump:  dump,
			Path:  repoRelativePath(dump, l.Path),
			Range: l.Range,
		})
	}
	return resolved
}

// dedupeLocations removes value-equal (dump.id, path, range) duplicates,
// preserving the first occurrence's order (spec.md §3 invariant 3, §8
// invariant 2).
func dedupeLocations(locations []types.ResolvedLocation) []types.ResolvedLocation {
	type key struct {
		dumpID int
		path   string
		rng    types.Range
	}

	seen := make(map[key]struct{}, len(locations))
	out := make([]types.ResolvedLocation, 0, len(locations))

	for _, l := range locations {
		k := key{l.Dump.ID, l.Path, l.Range}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, l)
	}

	return out
}

func monikersForRange(document types.DocumentData, r types.RangeData) []types.MonikerData {
	monikers := make([]types.MonikerData, 0, len(r.MonikerIDs))
	for _, id := range r.MonikerIDs {
		if m, ok := document.Monikers[id]; ok {
			monikers = append(monikers, m)
		}
	}
	return monikers
}
