package api

import (
	"github.com/pkg/errors"

	"github.com/sourcegraph/precise-code-intel-core/internal/codeintel/cursor"
)

// ErrNoDumpFound signals that the system has no dump to answer a query
// from, as distinct from a dump answering with zero results. Callers
// should check for it with errors.Is rather than compare locations to nil.
var ErrNoDumpFound = errors.New("no dump found")

// ErrCursorInvalid is re-exported so api callers don't need to import the
// cursor package just to compare errors.
var ErrCursorInvalid = cursor.ErrCursorInvalid
