// Package store implements the per-dump "Database" reader described in
// spec.md §4.2: it opens a single dump by filename and answers exists,
// definitions, references, hover, getRangeByPosition and monikerResults
// queries against the dump's on-disk tables.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/inconshreveable/log15"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/sourcegraph/precise-code-intel-core/internal/codeintel/cache"
	"github.com/sourcegraph/precise-code-intel-core/internal/codeintel/types"
)

// Model selects which table monikerResults scans (spec.md §4.2, §9 "dynamic
// class references").
type Model int

const (
	DefinitionModel Model = iota
	ReferenceModel
)

func (m Model) tableName() string {
	if m == ReferenceModel {
		return "references"
	}
	return "definitions"
}

// maxResultChunkTraversal bounds the visited-result-id set used while
// dereferencing a result through its chunk, guarding against a cyclic graph
// emitted by a buggy indexer (spec.md §9).
const maxResultChunkTraversal = 1024

// Database is a read-only reader over a single dump file.
type Database struct {
	db         *sqlx.DB
	dumpID     int
	filename   string
	docCache   *cache.DocumentCache
	chunkCache *cache.ResultChunkCache
}

// Open opens the dump at filename for reading. docCache and chunkCache are
// shared, process-wide caches (spec.md §4.1) — callers are expected to pass
// the same instances for every dump so document/result-chunk decodes are
// reused across the whole process, not just within one dump's lifetime.
func Open(filename string, dumpID int, docCache *cache.DocumentCache, chunkCache *cache.ResultChunkCache) (*Database, error) {
	db, err := sqlx.Open("sqlite3", filename)
	if err != nil {
		return nil, errors.Wrapf(err, "opening dump %s", filename)
	}

	return &Database{
		db:         db,
		dumpID:     dumpID,
		filename:   filename,
		docCache:   docCache,
		chunkCache: chunkCache,
	}, nil
}

// Close releases the underlying connection. It does not invalidate this
// dump's entries in the shared document/result-chunk caches: they stay
// cached, keyed by dumpID, and a later Open of the same dump id reuses them.
func (d *Database) Close() error {
	return d.db.Close()
}

// Exists reports whether the dump contains a Document at path.
func (d *Database) Exists(ctx context.Context, path string) (bool, error) {
	_, exists, err := d.getDocumentData(ctx, path)
	return exists, err
}

// Definitions finds the innermost range covering (line, character) with a
// definition result and dereferences it to locations.
func (d *Database) Definitions(ctx context.Context, path string, line, character int) ([]types.InternalLocation, error) {
	document, ranges, exists, err := d.getRangeByPosition(ctx, path, line, character)
	if err != nil || !exists {
		return nil, err
	}

	for _, r := range ranges {
		if r.DefinitionResultID == "" {
			continue
		}

		results, err := d.getResultByID(ctx, r.DefinitionResultID)
		if err != nil {
			return nil, err
		}

		return d.convertRangesToInternalLocations(ctx, document, results)
	}

	return nil, nil
}

// References finds every range covering (line, character) with a reference
// result and dereferences each to locations, unioning across ranges — a
// references query must also surface the defining site if it is reachable
// from the same range (spec.md §4.2).
func (d *Database) References(ctx context.Context, path string, line, character int) ([]types.InternalLocation, error) {
	document, ranges, exists, err := d.getRangeByPosition(ctx, path, line, character)
	if err != nil || !exists {
		return nil, err
	}

	var all []types.InternalLocation
	for _, r := range ranges {
		if r.ReferenceResultID != "" {
			results, err := d.getResultByID(ctx, r.ReferenceResultID)
			if err != nil {
				return nil, err
			}

			locations, err := d.convertRangesToInternalLocations(ctx, document, results)
			if err != nil {
				return nil, err
			}

			all = append(all, locations...)
		}

		if r.DefinitionResultID != "" {
			results, err := d.getResultByID(ctx, r.DefinitionResultID)
			if err != nil {
				return nil, err
			}

			locations, err := d.convertRangesToInternalLocations(ctx, document, results)
			if err != nil {
				return nil, err
			}

			all = append(all, locations...)
		}
	}

	return all, nil
}

// Hover returns the hover text and triggering range of the first range
// (innermost) covering (line, character) that has a hover result.
func (d *Database) Hover(ctx context.Context, path string, line, character int) (string, types.Range, bool, error) {
	document, ranges, exists, err := d.getRangeByPosition(ctx, path, line, character)
	if err != nil || !exists {
		return "", types.Range{}, false, err
	}

	for _, r := range ranges {
		if r.HoverResultID == "" {
			continue
		}

		text, ok := document.HoverResults[r.HoverResultID]
		if !ok {
			return "", types.Range{}, false, errors.Errorf("unknown hover result %s", r.HoverResultID)
		}

		return text, toRange(r.StartLine, r.StartCharacter, r.EndLine, r.EndCharacter), true, nil
	}

	return "", types.Range{}, false, nil
}

// Diagnostics returns the dump-local diagnostics recorded against paths
// with the given prefix, paginated by limit/offset (SPEC_FULL.md §4.8).
func (d *Database) Diagnostics(ctx context.Context, prefix string, limit, offset int) ([]types.ResolvedDiagnostic, int, error) {
	paths, err := d.listPaths(ctx, prefix)
	if err != nil {
		return nil, 0, err
	}

	var all []types.ResolvedDiagnostic
	for _, path := range paths {
		document, exists, err := d.getDocumentData(ctx, path)
		if err != nil {
			return nil, 0, err
		}
		if !exists {
			continue
		}

		for _, diag := range document.Diagnostics {
			all = append(all, types.ResolvedDiagnostic{
				Path: path,
				Diagnostic: diag,
			})
		}
	}

	total := len(all)
	if offset >= total {
		return nil, total, nil
	}

	end := offset + limit
	if end > total || limit <= 0 {
		end = total
	}

	return all[offset:end], total, nil
}

// GetRangeByPosition returns every range covering (line, character),
// innermost first, and the Document they belong to (spec.md §4.2).
func (d *Database) GetRangeByPosition(ctx context.Context, path string, line, character int) (types.DocumentData, []types.RangeData, bool, error) {
	return d.getRangeByPosition(ctx, path, line, character)
}

// MonikerResults scans the dump's definitions or references table (selected
// by model) for rows matching (scheme, identifier), with pagination.
func (d *Database) MonikerResults(ctx context.Context, model Model, scheme, identifier string, skip, take int) ([]types.InternalLocation, int, error) {
	var rows []struct {
		DocumentPath   string `db:"documentPath"`
		StartLine      int    `db:"startLine"`
		StartCharacter int    `db:"startCharacter"`
		EndLine        int    `db:"endLine"`
		EndCharacter   int    `db:"endCharacter"`
	}

	query := fmt.Sprintf(`
		SELECT documentPath, startLine, startCharacter, endLine, endCharacter
		FROM "%s"
		WHERE scheme = ? AND identifier = ?
		ORDER BY documentPath, startLine, startCharacter
	`, model.tableName())

	if take > 0 {
		query += " LIMIT ? OFFSET ?"
		if err := d.db.SelectContext(ctx, &rows, d.db.Rebind(query), scheme, identifier, take, skip); err != nil {
			return nil, 0, errors.Wrap(err, "querying moniker results")
		}
	} else {
		if err := d.db.SelectContext(ctx, &rows, d.db.Rebind(query), scheme, identifier); err != nil {
			return nil, 0, errors.Wrap(err, "querying moniker results")
		}
	}

	var locations []types.InternalLocation
	for _, row := range rows {
		locations = append(locations, types.InternalLocation{
			Path:  row.DocumentPath,
			Range: toRange(row.StartLine, row.StartCharacter, row.EndLine, row.EndCharacter),
		})
	}

	var total int
	countQuery := fmt.Sprintf(`SELECT COUNT(1) FROM "%s" WHERE scheme = ? AND identifier = ?`, model.tableName())
	if err := d.db.GetContext(ctx, &total, d.db.Rebind(countQuery), scheme, identifier); err != nil {
		return nil, 0, errors.Wrap(err, "counting moniker results")
	}

	return locations, total, nil
}

// PackageInformation resolves a moniker's packageInformationId against the
// document it was found in.
func (d *Database) PackageInformation(ctx context.Context, path string, id types.ID) (types.PackageInformationData, bool, error) {
	document, exists, err := d.getDocumentData(ctx, path)
	if err != nil || !exists {
		return types.PackageInformationData{}, false, err
	}

	pkg, ok := document.PackageInformation[id]
	return pkg, ok, nil
}

//
// internals
//

func (d *Database) listPaths(ctx context.Context, prefix string) ([]string, error) {
	var paths []string
	query := d.db.Rebind("SELECT path FROM documents WHERE path LIKE ?")
	if err := d.db.SelectContext(ctx, &paths, query, prefix+"%"); err != nil {
		return nil, errors.Wrap(err, "listing paths")
	}
	return paths, nil
}

func (d *Database) getDocumentData(ctx context.Context, path string) (types.DocumentData, bool, error) {
	cacheKey := fmt.Sprintf("%d:%s", d.dumpID, path)

	raw, err := d.docCache.Get(cacheKey, func() (interface{}, error) {
		var data []byte
		query := d.db.Rebind("SELECT data FROM documents WHERE path = ?")
		if err := d.db.GetContext(ctx, &data, query, path); err != nil {
			if err == sql.ErrNoRows {
				return documentMiss{}, nil
			}
			return nil, err
		}

		document, err := unmarshalDocumentData(data)
		if err != nil {
			return nil, err
		}

		return document, nil
	})
	if err != nil {
		return types.DocumentData{}, false, errors.Wrapf(err, "loading document %s", path)
	}

	if _, miss := raw.(documentMiss); miss {
		return types.DocumentData{}, false, nil
	}

	return raw.(types.DocumentData), true, nil
}

// documentMiss is cached in place of a positive result so a request for a
// path that does not exist in this dump does not re-query on every call
// within the cache's lifetime (spec.md's non-goal on negative-lookup
// caching is scoped to cross-request caching of query results, not this
// dump-local existence fact, which is immutable for the life of the dump).
type documentMiss struct{}

func (d *Database) getRangeByPosition(ctx context.Context, path string, line, character int) (types.DocumentData, []types.RangeData, bool, error) {
	document, exists, err := d.getDocumentData(ctx, path)
	if err != nil || !exists {
		return types.DocumentData{}, nil, false, err
	}

	return document, findRanges(document.Ranges, line, character), true, nil
}

func (d *Database) getResultByID(ctx context.Context, id types.ID) ([]types.DocumentPathRangeID, error) {
	visited := map[types.ID]struct{}{}
	return d.resolveResult(ctx, id, visited)
}

func (d *Database) resolveResult(ctx context.Context, id types.ID, visited map[types.ID]struct{}) ([]types.DocumentPathRangeID, error) {
	if _, seen := visited[id]; seen {
		return nil, nil
	}
	if len(visited) >= maxResultChunkTraversal {
		log15.Warn("result traversal limit reached", "dumpID", d.dumpID, "resultID", id)
		return nil, nil
	}
	visited[id] = struct{}{}

	chunk, exists, err := d.getResultChunkByResultID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errors.Errorf("unknown result chunk for result %s", id)
	}

	documentIDRangeIDs, ok := chunk.DocumentIDRangeIDs[id]
	if !ok {
		return nil, errors.Errorf("unknown result %s", id)
	}

	var out []types.DocumentPathRangeID
	for _, pair := range documentIDRangeIDs {
		path, ok := chunk.DocumentPaths[pair.DocumentID]
		if !ok {
			return nil, errors.Errorf("unknown document path for id %s", pair.DocumentID)
		}

		out = append(out, types.DocumentPathRangeID{Path: path, RangeID: pair.RangeID})
	}

	return out, nil
}

func (d *Database) getResultChunkByResultID(ctx context.Context, id types.ID) (types.ResultChunkData, bool, error) {
	numResultChunks, err := d.getNumResultChunks(ctx)
	if err != nil {
		return types.ResultChunkData{}, false, err
	}
	if numResultChunks == 0 {
		return types.ResultChunkData{}, false, nil
	}

	chunkID := hashKey(id, numResultChunks)
	cacheKey := fmt.Sprintf("%d:%d", d.dumpID, chunkID)

	raw, err := d.chunkCache.Get(cacheKey, func() (interface{}, error) {
		var data []byte
		query := d.db.Rebind("SELECT data FROM resultChunks WHERE id = ?")
		if err := d.db.GetContext(ctx, &data, query, chunkID); err != nil {
			if err == sql.ErrNoRows {
				return chunkMiss{}, nil
			}
			return nil, err
		}

		return unmarshalResultChunkData(data)
	})
	if err != nil {
		return types.ResultChunkData{}, false, errors.Wrapf(err, "loading result chunk %d", chunkID)
	}

	if _, miss := raw.(chunkMiss); miss {
		return types.ResultChunkData{}, false, nil
	}

	return raw.(types.ResultChunkData), true, nil
}

type chunkMiss struct{}

func (d *Database) getNumResultChunks(ctx context.Context) (int, error) {
	var n int
	query := d.db.Rebind("SELECT numResultChunks FROM meta LIMIT 1")
	if err := d.db.GetContext(ctx, &n, query); err != nil {
		return 0, errors.Wrap(err, "reading meta.numResultChunks")
	}
	return n, nil
}

// hashKey maps a result id to one of maxIndex result-chunk buckets. Must
// match the hash the indexer used when partitioning results into chunks.
func hashKey(id types.ID, maxIndex int) int {
	var hash int32
	for _, c := range string(id) {
		hash = (hash << 5) - hash + int32(c)
	}
	h := int(hash)
	if h < 0 {
		h = -h
	}
	return h % maxIndex
}

func (d *Database) convertRangesToInternalLocations(ctx context.Context, owning types.DocumentData, resultData []types.DocumentPathRangeID) ([]types.InternalLocation, error) {
	var locations []types.InternalLocation

	// Fast path: a range id that belongs to the document we already have
	// loaded needn't be fetched again.
	loadedDocuments := map[string]types.DocumentData{}

	for _, pair := range resultData {
		document := owning
		if pair.Path != "" {
			if cached, ok := loadedDocuments[pair.Path]; ok {
				document = cached
			} else {
				loaded, exists, err := d.getDocumentData(ctx, pair.Path)
				if err != nil {
					return nil, err
				}
				if !exists {
					return nil, errors.Errorf("unknown document %s", pair.Path)
				}
				loadedDocuments[pair.Path] = loaded
				document = loaded
			}
		}

		r, ok := document.Ranges[pair.RangeID]
		if !ok {
			return nil, errors.Errorf("unknown range %s", pair.RangeID)
		}

		locations = append(locations, types.InternalLocation{
			Path:  pair.Path,
			Range: toRange(r.StartLine, r.StartCharacter, r.EndLine, r.EndCharacter),
		})
	}

	return locations, nil
}
