package api

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/klauspost/compress/gzip"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sourcegraph/precise-code-intel-core/internal/codeintel/cache"
)

// rangeFixture/documentBuilder mirror the fixtures in the store package's
// own test suite: the JSON shape unmarshalDocumentData/unmarshalResultChunkData
// expect, built here independently since store's fixtures are test-only and
// unexported.
type rangeFixture struct {
	StartLine          int
	StartCharacter     int
	EndLine            int
	EndCharacter       int
	DefinitionResultID string
	ReferenceResultID  string
	MonikerIDs         []string
}

type monikerFixture struct {
	Kind                 string
	Scheme               string
	Identifier           string
	PackageInformationID string
}

type packageInformationFixture struct {
	Name    string
	Version string
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
	monikers           [][2]interface{}
	packageInformation [][2]interface{}
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
		"hoverResultID":      "",
		"monikerIDs":         map[string]interface{}{"value": monikerIDs},
	}
	b.ranges = append(b.ranges, [2]interface{}{id, value})
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
		"hoverResults":       wrapPairs(t, nil),
		"monikers":           wrapPairs(t, b.monikers),
		"packageInformation": wrapPairs(t, b.packageInformation),
		"diagnosticResults":  []json.RawMessage{},
	}
	return gzipJSON(t, payload)
}

type resultChunkBuilder struct {
	documentPaths      [][2]interface{}
	documentIDRangeIDs [][2]interface{}
}

type documentFixtureIDRangeID struct {
	DocumentID string `json:"documentId"`
	RangeID    string `json:"rangeId"`
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

// newFixtureDump creates a temp SQLite file at bundleDir/<dumpID>.lsif.db
// with the schema store.Database expects, populated by setup.
func newFixtureDump(t *testing.T, bundleDir string, dumpID int, numResultChunks int, setup func(db *sqlx.DB)) func() {
	t.Helper()

	path := filepath.Join(bundleDir, filenameForDump(dumpID))

	raw, err := sqlx.Open("sqlite3", path)
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

	return func() { os.Remove(path) }
}

func filenameForDump(id int) string {
	return strconv.Itoa(id) + ".lsif.db"
}

func newTestCaches(t *testing.T) (*cache.ConnectionCache, *cache.DocumentCache, *cache.ResultChunkCache) {
	t.Helper()

	connectionCache, err := cache.NewConnectionCache(10)
	if err != nil {
		t.Fatalf("creating connection cache: %s", err)
	}
	documentCache, err := cache.NewDocumentCache(10)
	if err != nil {
		t.Fatalf("creating document cache: %s", err)
	}
	resultChunkCache, err := cache.NewResultChunkCache(10)
	if err != nil {
		t.Fatalf("creating result chunk cache: %s", err)
	}
	return connectionCache, documentCache, resultChunkCache
}

func newTempBundleDir(t *testing.T) (string, func()) {
	t.Helper()
	dir, err := ioutil.TempDir("", "precise-code-intel-core-api-test-*")
	if err != nil {
		t.Fatalf("creating temp bundle dir: %s", err)
	}
	return dir, func() { os.RemoveAll(dir) }
}
