// Package cursor implements the opaque pagination token handed back from a
// references request and accepted on the next page (spec.md §4.6, §6).
package cursor

import (
	"encoding/base64"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Phase names which half of the two-phase references walk a cursor resumes.
type Phase string

const (
	// PhaseSameRepo resumes scanning package references recorded against
	// the requesting repository.
	PhaseSameRepo Phase = "same-repo"

	// PhaseRemoteRepo resumes scanning package references recorded
	// against every other repository that depends on the same package.
	PhaseRemoteRepo Phase = "remote-repo"
)

// schemaName identifies the current Cursor shape. It is hashed into a UUID
// below rather than compared as a raw string so that a schema change can be
// rolled out by bumping the name to anything new — bump it whenever
// Cursor's shape changes incompatibly. Decode rejects any cursor stamped
// with a UUID it does not recognize rather than guess at a best-effort
// interpretation.
const schemaName = "precise-code-intel-core/cursor/same-remote-repo/v1"

var schemaVersion = uuid.NewSHA1(uuid.NameSpaceOID, []byte(schemaName)).String()

// ErrCursorInvalid is returned by Decode for a malformed token or one
// stamped with a schema version this build doesn't understand.
var ErrCursorInvalid = errors.New("invalid cursor")

// Cursor carries everything the references resolver needs to resume a
// paginated walk without re-deriving it from the initial request.
type Cursor struct {
	// DumpID and Path/Line/Character identify the original request, so a
	// resumed page can be validated against the request that presented it.
	DumpID    int    `json:"dumpId"`
	Path      string `json:"path"`
	Line      int    `json:"line"`
	Character int    `json:"character"`

	// Scheme/Identifier/Name/Version pin the moniker and package being
	// walked across dumps.
	Scheme     string `json:"scheme"`
	Identifier string `json:"identifier"`
	Name       string `json:"name"`
	Version    string `json:"version"`

	// Phase and Offset resume the two-phase walk: first package references
	// recorded for the requesting repository, then every other repository
	// that depends on the same package.
	Phase  Phase `json:"phase"`
	Offset int   `json:"offset"`
}

type envelope struct {
	Version string `json:"version"`
	Cursor  Cursor `json:"cursor"`
}

// Encode serializes a Cursor to an opaque string safe for embedding in a
// URL query parameter.
func Encode(c Cursor) (string, error) {
	data, err := json.Marshal(envelope{Version: schemaVersion, Cursor: c})
	if err != nil {
		return "", errors.Wrap(err, "marshalling cursor")
	}

	return base64.URLEncoding.EncodeToString(data), nil
}

// Decode parses a cursor previously produced by Encode. It returns
// ErrCursorInvalid for anything that isn't a well-formed, current-version
// cursor — callers must treat this as equivalent to a bad request, never
// retry it, and never attempt to recover a partial cursor.
func Decode(s string) (Cursor, error) {
	data, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, ErrCursorInvalid
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Cursor{}, ErrCursorInvalid
	}

	if env.Version != schemaVersion {
		return Cursor{}, ErrCursorInvalid
	}

	return env.Cursor, nil
}
