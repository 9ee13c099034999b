// Package types holds the data model shared across the code-intel query
// core: the shapes that flow from a dump's on-disk tables up through the
// backend resolver to the API surface.
package types

import "encoding/json"

// ID is the identifier of a row inside a single dump. Dumps serialize ids as
// either a JSON string or a JSON number depending on the indexer that wrote
// them, so it is kept as an opaque string rather than an int.
type ID string

// UnmarshalJSON accepts either a JSON string or a JSON number.
func (id *ID) UnmarshalJSON(raw []byte) error {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// MonikerKind classifies how a moniker participates in cross-file or
// cross-repository symbol resolution.
type MonikerKind string

const (
	MonikerKindLocal  MonikerKind = "local"
	MonikerKindImport MonikerKind = "import"
	MonikerKindExport MonikerKind = "export"
)

// Position is a zero-based line/character pair, matching LSP.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is a half-open span [Start, End) over Positions.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// MonikerData describes a single moniker attached to a range.
type MonikerData struct {
	Kind                 MonikerKind `json:"kind"`
	Scheme               string      `json:"scheme"`
	Identifier           string      `json:"identifier"`
	PackageInformationID ID          `json:"packageInformationId"`
}

// PackageInformationData ties a moniker to the dependency it was imported
// from or exported as.
type PackageInformationData struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// DiagnosticData is a single diagnostic recorded against a range, carried
// over from the original indexer's bundle format (see SPEC_FULL.md §3).
type DiagnosticData struct {
	Severity       int    `json:"severity"`
	Code           string `json:"code"`
	Message        string `json:"message"`
	Source         string `json:"source"`
	StartLine      int    `json:"startLine"`
	StartCharacter int    `json:"startCharacter"`
	EndLine        int    `json:"endLine"`
	EndCharacter   int    `json:"endCharacter"`
}

// RangeData is a single range loaded from a dump's document payload.
type RangeData struct {
	StartLine          int
	StartCharacter     int
	EndLine            int
	EndCharacter       int
	DefinitionResultID ID
	ReferenceResultID  ID
	HoverResultID      ID
	MonikerIDs         []ID
}

// DocumentData is the decoded contents of a single path within a dump.
type DocumentData struct {
	Ranges             map[ID]RangeData
	HoverResults       map[ID]string
	Monikers           map[ID]MonikerData
	PackageInformation map[ID]PackageInformationData
	Diagnostics        []DiagnosticData
}

// DocumentIDRangeID is an entry of a result chunk's reverse index: the
// document (by internal chunk-local id) and range that a result id expands
// to.
type DocumentIDRangeID struct {
	DocumentID ID
	RangeID    ID
}

// ResultChunkData is a decoded page of the definition/reference result
// table, keyed by result id at load time.
type ResultChunkData struct {
	DocumentPaths      map[ID]string
	DocumentIDRangeIDs map[ID][]DocumentIDRangeID
}

// DocumentPathRangeID names a range by the (repo-relative-to-dump) path of
// its owning document and its id within that document.
type DocumentPathRangeID struct {
	Path    string
	RangeID ID
}

// InternalLocation is a location inside a single dump, prior to being
// resolved against the dump's root to a repo-relative path.
type InternalLocation struct {
	Path  string `json:"path"`
	Range Range  `json:"range"`
}

// Dump is a single LSIF-shaped index bundle, as tracked by the metadata
// store.
type Dump struct {
	ID           int    `json:"id"`
	RepositoryID int    `json:"repositoryId"`
	Commit       string `json:"commit"`
	Root         string `json:"root"`
	Indexer      string `json:"indexer"`
	Filename     string `json:"-"`
}

// Package identifies a single dependency as recorded by a dump's package
// table.
type Package struct {
	Scheme  string
	Name    string
	Version string
}

// PackageReference is a row of the metadata store's reference table: a dump
// that depends on a package, with a bloom filter over the identifiers it
// references so callers can cheaply skip dumps that can't possibly contain
// a hit.
type PackageReference struct {
	DumpID int
	Filter []byte
}

// ResolvedLocation is an InternalLocation resolved against its owning dump,
// with Path made repo-relative.
type ResolvedLocation struct {
	Dump  Dump  `json:"dump"`
	Path  string `json:"path"`
	Range Range `json:"range"`
}

// ResolvedDiagnostic is a Diagnostic resolved against its owning dump.
type ResolvedDiagnostic struct {
	Dump       Dump           `json:"dump"`
	Path       string         `json:"path"`
	Diagnostic DiagnosticData `json:"diagnostic"`
}
