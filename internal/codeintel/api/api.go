package api

import (
	"context"

	"github.com/sourcegraph/precise-code-intel-core/internal/codeintel/cursor"
	"github.com/sourcegraph/precise-code-intel-core/internal/codeintel/types"
)

// CodeIntelAPI is the backend resolver's public surface. Backend is the
// concrete, unobserved implementation; ObservedCodeIntelAPI wraps any
// CodeIntelAPI with tracing, metrics, and logging.
type CodeIntelAPI interface {
	FindClosestDumps(ctx context.Context, repositoryID int, commit, path string) ([]types.Dump, error)
	Definitions(ctx context.Context, repositoryID int, commit, path string, line, character int) ([]types.ResolvedLocation, error)
	References(ctx context.Context, repositoryID int, commit, path string, line, character, limit int, cur *cursor.Cursor) ([]types.ResolvedLocation, *cursor.Cursor, error)
	Hover(ctx context.Context, repositoryID int, commit, path string, line, character int) (string, types.Range, bool, error)
	Diagnostics(ctx context.Context, dumpID int, prefix string, limit, offset int) ([]types.ResolvedDiagnostic, int, error)
}

var _ CodeIntelAPI = (*Backend)(nil)
