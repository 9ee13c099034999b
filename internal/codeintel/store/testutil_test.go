package store

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"os"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/klauspost/compress/gzip"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sourcegraph/precise-code-intel-core/internal/codeintel/cache"
)

// rangeFixture mirrors the JSON shape unmarshalWrappedRanges expects for a
// single range's value half.
type rangeFixture struct {
	StartLine          int      `json:"startLine"`
	StartCharacter     int      `json:"startCharacter"`
	EndLine            int      `json:"endLine"`
	EndCharacter       int      `json:"endCharacter"`
	DefinitionResultID string   `json:"definitionResultID"`
	ReferenceResultID  string   `json:"referenceResultID"`
	HoverResultID      string   `json:"hoverResultID"`
	MonikerIDs         []string `json:"-"`
}

type monikerFixture struct {
	Kind                 string `json:"kind"`
	Scheme               string `json:"scheme"`
	Identifier           string `json:"identifier"`
	PackageInformationID string `json:"packageInformationID"`
}

type packageInformationFixture struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type documentFixtureIDRangeID struct {
	DocumentID string `json:"documentId"`
	RangeID    string `json:"rangeId"`
}

func wrapPairs(t *testing.T, pairs [][2]interface{}) map[string]interface{} {
	t.Helper()

	raw := make([]json.RawMessage, 0, len(pairs))
	for _, pair := range pairs {
		data, err := json.Marshal([]interface{}{pair[0], pair[1]})
		if err != nil {
			t.Fatalf("marshalling pair: %s", err)
		}
		raw = append(raw, data)
	}

	return map[string]interface{}{"value": raw}
}

func gzipJSON(t *testing.T, v interface{}) []byte {
	t.Helper()

	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshalling fixture: %s", err)
	}

	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("gzipping fixture: %s", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("closing gzip writer: %s", err)
	}

	return buf.Bytes()
}

type documentBuilder struct {
	ranges             [][2]interface{}
	hoverResults       [][2]interface{}
	monikers           [][2]interface{}
	packageInformation [][2]interface{}
	diagnostics        []json.RawMessage
}

func (b *documentBuilder) addRange(id string, r rangeFixture) *documentBuilder {
	monikerIDs := make([]json.RawMessage, 0, len(r.MonikerIDs))
	for _, m := range r.MonikerIDs {
		data, _ := json.Marshal(m)
		monikerIDs = append(monikerIDs, data)
	}

	value := map[string]interface{}{
		"startLine":          r.StartLine,
		"startCharacter":     r.StartCharacter,
		"endLine":            r.EndLine,
		"endCharacter":       r.EndCharacter,
		"definitionResultID": r.DefinitionResultID,
		"referenceResultID":  r.ReferenceResultID,
		"hoverResultID":      r.HoverResultID,
		"monikerIDs":         map[string]interface{}{"value": monikerIDs},
	}

	b.ranges = append(b.ranges, [2]interface{}{id, value})
	return b
}

func (b *documentBuilder) addHover(id, text string) *documentBuilder {
	b.hoverResults = append(b.hoverResults, [2]interface{}{id, text})
	return b
}

func (b *documentBuilder) addMoniker(id string, m monikerFixture) *documentBuilder {
	b.monikers = append(b.monikers, [2]interface{}{id, m})
	return b
}

func (b *documentBuilder) addPackageInformation(id string, p packageInformationFixture) *documentBuilder {
	b.packageInformation = append(b.packageInformation, [2]interface{}{id, p})
	return b
}

func (b *documentBuilder) build(t *testing.T) []byte {
	t.Helper()

	payload := map[string]interface{}{
		"ranges":             wrapPairs(t, b.ranges),
		"hoverResults":        wrapPairs(t, b.hoverResults),
		"monikers":           wrapPairs(t, b.monikers),
		"packageInformation": wrapPairs(t, b.packageInformation),
		"diagnosticResults":  b.diagnostics,
	}

	return gzipJSON(t, payload)
}

type resultChunkBuilder struct {
	documentPaths      [][2]interface{}
	documentIDRangeIDs [][2]interface{}
}

func (b *resultChunkBuilder) addDocumentPath(id, path string) *resultChunkBuilder {
	b.documentPaths = append(b.documentPaths, [2]interface{}{id, path})
	return b
}

func (b *resultChunkBuilder) addResult(resultID string, entries ...documentFixtureIDRangeID) *resultChunkBuilder {
	b.documentIDRangeIDs = append(b.documentIDRangeIDs, [2]interface{}{resultID, entries})
	return b
}

func (b *resultChunkBuilder) build(t *testing.T) []byte {
	t.Helper()

	payload := map[string]interface{}{
		"documentPaths":      wrapPairs(t, b.documentPaths),
		"documentIdRangeIds": wrapPairs(t, b.documentIDRangeIDs),
	}

	return gzipJSON(t, payload)
}

// newFixtureDatabase creates a temp SQLite file with the schema
// Database expects, lets setup populate it, and returns an opened
// Database along with a cleanup func.
func newFixtureDatabase(t *testing.T, dumpID int, numResultChunks int, setup func(db *sqlx.DB)) (*Database, func()) {
	t.Helper()

	f, err := ioutil.TempFile("", "precise-code-intel-core-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db file: %s", err)
	}
	f.Close()

	raw, err := sqlx.Open("sqlite3", f.Name())
	if err != nil {
		t.Fatalf("opening fixture db: %s", err)
	}

	raw.MustExec(`CREATE TABLE meta (numResultChunks INTEGER NOT NULL)`)
	raw.MustExec(`CREATE TABLE documents (path TEXT NOT NULL, data BLOB NOT NULL)`)
	raw.MustExec(`CREATE TABLE resultChunks (id INTEGER NOT NULL, data BLOB NOT NULL)`)
	raw.MustExec(`CREATE TABLE definitions (scheme TEXT NOT NULL, identifier TEXT NOT NULL, documentPath TEXT NOT NULL, startLine INTEGER NOT NULL, startCharacter INTEGER NOT NULL, endLine INTEGER NOT NULL, endCharacter INTEGER NOT NULL)`)
	raw.MustExec(`CREATE TABLE "references" (scheme TEXT NOT NULL, identifier TEXT NOT NULL, documentPath TEXT NOT NULL, startLine INTEGER NOT NULL, startCharacter INTEGER NOT NULL, endLine INTEGER NOT NULL, endCharacter INTEGER NOT NULL)`)

	raw.MustExec(`INSERT INTO meta (numResultChunks) VALUES (?)`, numResultChunks)

	if setup != nil {
		setup(raw)
	}

	if err := raw.Close(); err != nil {
		t.Fatalf("closing fixture setup connection: %s", err)
	}

	docCache, err := cache.NewDocumentCache(100)
	if err != nil {
		t.Fatalf("creating document cache: %s", err)
	}
	chunkCache, err := cache.NewResultChunkCache(100)
	if err != nil {
		t.Fatalf("creating result chunk cache: %s", err)
	}

	db, err := Open(f.Name(), dumpID, docCache, chunkCache)
	if err != nil {
		t.Fatalf("opening fixture database: %s", err)
	}

	return db, func() {
		db.Close()
		os.Remove(f.Name())
	}
}
