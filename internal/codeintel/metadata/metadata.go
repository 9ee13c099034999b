// Package metadata is the cross-dump bookkeeping store: which dumps exist,
// which commit lineage makes a dump visible from a given commit, and which
// dumps reference a given package (spec.md §4.3–4.6).
package metadata

import (
	"context"

	"github.com/sourcegraph/precise-code-intel-core/internal/codeintel/types"
)

// Store is the metadata store's interface, as consumed by the backend
// resolver. A Postgres-backed implementation lives in postgres.go; tests
// use the in-memory fake in fake.go.
type Store interface {
	// GetDumpByID returns the dump with the given id.
	GetDumpByID(ctx context.Context, id int) (types.Dump, bool, error)

	// FindClosestDumps returns the dumps visible from (repositoryID,
	// commit) whose root is a prefix of path, ordered nearest commit
	// first.
	FindClosestDumps(ctx context.Context, repositoryID int, commit, path string) ([]types.Dump, error)

	// GetPackage returns the dump that exports the given package, if any.
	GetPackage(ctx context.Context, scheme, name, version string) (types.Dump, bool, error)

	// GetSameRepoRemoteReferences returns dumps, other than the one
	// identified by excludeDumpID, in the given repository that
	// reference the given package, along with the total count available
	// (for pagination).
	GetSameRepoRemoteReferences(ctx context.Context, repositoryID, excludeDumpID int, commit, scheme, name, version string, limit, offset int) ([]types.PackageReference, int, error)

	// GetPackageReferences returns dumps outside of repositoryID that
	// reference the given package, along with the total count available.
	GetPackageReferences(ctx context.Context, repositoryID int, scheme, name, version string, limit, offset int) ([]types.PackageReference, int, error)
}
