package metadata

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/keegancsmith/sqlf"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/sourcegraph/precise-code-intel-core/internal/codeintel/types"
)

// maxTraversalLimit bounds how many commits a lineage walk will visit
// before giving up, so a pathological repository graph can't turn a single
// request into an unbounded recursive query.
const maxTraversalLimit = 100

// bidirectionalLineage walks the commit graph in both directions from the
// requested commit, tagging each row with which direction it was reached
// from so a later join can correlate commits to dumps regardless of
// whether the dump was made at an ancestor or a descendant commit.
var bidirectionalLineage = `
	RECURSIVE lineage(id, commit, parent_commit, repository_id, direction) AS (
		SELECT l.* FROM (
			SELECT c.*, 'A' FROM lsif_commits c WHERE c.repository_id = $1 AND c.commit = $2
			UNION
			SELECT c.*, 'D' FROM lsif_commits c WHERE c.repository_id = $1 AND c.commit = $2
		) l

		UNION

		SELECT * FROM (
			WITH l_inner AS (SELECT * FROM lineage)
			SELECT c.*, 'A' FROM l_inner l JOIN lsif_commits c ON l.direction = 'A' AND c.repository_id = l.repository_id AND c.commit = l.parent_commit
			UNION
			SELECT c.*, 'D' FROM l_inner l JOIN lsif_commits c ON l.direction = 'D' AND c.repository_id = l.repository_id AND c.parent_commit = l.commit
		) subquery
	)
`

var lineageWithDumps = fmt.Sprintf(`
	limited_lineage AS (
		SELECT a.*, row_number() OVER () as n FROM lineage a LIMIT %d
	),
	lineage_with_dumps AS (
		SELECT a.*, d.root, d.indexer, d.id as dump_id FROM limited_lineage a
		JOIN lsif_dumps d ON d.repository_id = a.repository_id AND d.commit = a.commit
	)
`, maxTraversalLimit)

// visibleDumps removes dumps shadowed by another dump of smaller depth
// with an overlapping root from the same indexer — such a dump would not
// be returned by a closest-commit query, so it is excluded here too.
var visibleDumps = lineageWithDumps + `,
	visible_ids AS (
		SELECT DISTINCT t1.dump_id as id FROM lineage_with_dumps t1 WHERE NOT EXISTS (
			SELECT 1 FROM lineage_with_dumps t2
			WHERE t2.n < t1.n AND t1.indexer = t2.indexer AND (
				t2.root LIKE (t1.root || '%') OR
				t1.root LIKE (t2.root || '%')
			)
		)
	)
`

const dumpColumns = `
	u.id,
	u.commit,
	u.root,
	u.indexer,
	u.repository_id
`

// Postgres is the Store implementation backed by the same Postgres
// database the upload pipeline writes into.
type Postgres struct {
	db *sql.DB
}

var _ Store = (*Postgres)(nil)

// NewPostgres wraps an already-open connection pool.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func scanDump(scan func(dest ...interface{}) error) (types.Dump, error) {
	var d types.Dump
	if err := scan(&d.ID, &d.Commit, &d.Root, &d.Indexer, &d.RepositoryID); err != nil {
		return types.Dump{}, err
	}

	d.Filename = filenameForDump(d.ID)
	return d, nil
}

// filenameForDump derives the on-disk dump filename from its id. Dumps are
// written by the upload pipeline under this convention at conversion time.
func filenameForDump(id int) string {
	return fmt.Sprintf("%d.lsif.db", id)
}

func (p *Postgres) GetDumpByID(ctx context.Context, id int) (types.Dump, bool, error) {
	query := sqlf.Sprintf(`SELECT `+dumpColumns+` FROM lsif_dumps u WHERE u.id = %s`, id)

	row := p.db.QueryRowContext(ctx, query.Query(sqlf.PostgresBindVar), query.Args()...)
	dump, err := scanDump(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return types.Dump{}, false, nil
		}
		return types.Dump{}, false, errors.Wrap(err, "scanning dump")
	}

	return dump, true, nil
}

func (p *Postgres) FindClosestDumps(ctx context.Context, repositoryID int, commit, path string) ([]types.Dump, error) {
	query := "WITH " + bidirectionalLineage + ", " + visibleDumps + `
		SELECT d.dump_id FROM lineage_with_dumps d
		WHERE $3 LIKE (d.root || '%') AND d.dump_id IN (SELECT id FROM visible_ids)
		ORDER BY d.n
	`

	rows, err := p.db.QueryContext(ctx, query, repositoryID, commit, path)
	if err != nil {
		return nil, errors.Wrap(err, "querying lineage")
	}

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scanning dump id")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(ids) == 0 {
		return nil, nil
	}

	return p.getDumpsOrdered(ctx, ids)
}

func (p *Postgres) getDumpsOrdered(ctx context.Context, ids []int) ([]types.Dump, error) {
	dumpsByID, err := p.getDumps(ctx, ids)
	if err != nil {
		return nil, err
	}

	seen := map[int]bool{}
	var ordered []types.Dump
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		if dump, ok := dumpsByID[id]; ok {
			ordered = append(ordered, dump)
		}
	}

	return ordered, nil
}

func (p *Postgres) getDumps(ctx context.Context, ids []int) (map[int]types.Dump, error) {
	var qs []*sqlf.Query
	for _, id := range ids {
		qs = append(qs, sqlf.Sprintf("%d", id))
	}

	query := sqlf.Sprintf(`SELECT `+dumpColumns+` FROM lsif_dumps u WHERE u.id IN (%s)`, sqlf.Join(qs, ", "))

	rows, err := p.db.QueryContext(ctx, query.Query(sqlf.PostgresBindVar), query.Args()...)
	if err != nil {
		return nil, errors.Wrap(err, "querying dumps")
	}
	defer rows.Close()

	dumpsByID := map[int]types.Dump{}
	for rows.Next() {
		dump, err := scanDump(rows.Scan)
		if err != nil {
			return nil, errors.Wrap(err, "scanning dump")
		}
		dumpsByID[dump.ID] = dump
	}

	return dumpsByID, rows.Err()
}

func (p *Postgres) GetPackage(ctx context.Context, scheme, name, version string) (types.Dump, bool, error) {
	query := `
		SELECT ` + dumpColumns + `
		FROM lsif_packages p
		JOIN lsif_dumps u ON p.dump_id = u.id
		WHERE p.scheme = $1 AND p.name = $2 AND p.version = $3
		LIMIT 1
	`

	row := p.db.QueryRowContext(ctx, query, scheme, name, version)
	dump, err := scanDump(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return types.Dump{}, false, nil
		}
		return types.Dump{}, false, errors.Wrap(err, "scanning package dump")
	}

	return dump, true, nil
}

func (p *Postgres) GetSameRepoRemoteReferences(ctx context.Context, repositoryID, excludeDumpID int, commit, scheme, name, version string, limit, offset int) ([]types.PackageReference, int, error) {
	visibleIDs, err := p.getVisibleIDs(ctx, repositoryID, commit)
	if err != nil {
		return nil, 0, err
	}

	var filtered []int
	for _, id := range visibleIDs {
		if id != excludeDumpID {
			filtered = append(filtered, id)
		}
	}
	if len(filtered) == 0 {
		return nil, 0, nil
	}

	var idArgs []*sqlf.Query
	for _, id := range filtered {
		idArgs = append(idArgs, sqlf.Sprintf("%d", id))
	}

	countQuery := sqlf.Sprintf(`
		SELECT COUNT(1) FROM lsif_references r
		WHERE r.scheme = %s AND r.name = %s AND r.version = %s AND r.dump_id IN (%s)
	`, scheme, name, version, sqlf.Join(idArgs, ", "))

	var total int
	if err := p.db.QueryRowContext(ctx, countQuery.Query(sqlf.PostgresBindVar), countQuery.Args()...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "counting same-repo package references")
	}

	query := sqlf.Sprintf(`
		SELECT d.id, r.filter FROM lsif_references r
		JOIN lsif_dumps d ON r.dump_id = d.id
		WHERE r.scheme = %s AND r.name = %s AND r.version = %s AND r.dump_id IN (%s)
		ORDER BY d.root
		OFFSET %s LIMIT %s
	`, scheme, name, version, sqlf.Join(idArgs, ", "), offset, limit)

	refs, err := p.queryReferences(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	return refs, total, nil
}

func (p *Postgres) GetPackageReferences(ctx context.Context, repositoryID int, scheme, name, version string, limit, offset int) ([]types.PackageReference, int, error) {
	countQuery := `
		SELECT COUNT(1) FROM lsif_references r
		JOIN lsif_dumps d ON r.dump_id = d.id
		WHERE r.scheme = $1 AND r.name = $2 AND r.version = $3 AND d.repository_id != $4
	`

	var total int
	if err := p.db.QueryRowContext(ctx, countQuery, scheme, name, version, repositoryID).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "counting package references")
	}

	query := `
		SELECT d.id, r.filter FROM lsif_references r
		JOIN lsif_dumps d ON r.dump_id = d.id
		WHERE r.scheme = $1 AND r.name = $2 AND r.version = $3 AND d.repository_id != $4
		ORDER BY d.repository_id, d.root
		LIMIT $5
		OFFSET $6
	`

	rows, err := p.db.QueryContext(ctx, query, scheme, name, version, repositoryID, limit, offset)
	if err != nil {
		return nil, 0, errors.Wrap(err, "querying package references")
	}
	defer rows.Close()

	var refs []types.PackageReference
	for rows.Next() {
		var ref types.PackageReference
		var filter []byte
		if err := rows.Scan(&ref.DumpID, &filter); err != nil {
			return nil, 0, errors.Wrap(err, "scanning package reference")
		}
		ref.Filter = filter
		refs = append(refs, ref)
	}

	return refs, total, rows.Err()
}

func (p *Postgres) queryReferences(ctx context.Context, query *sqlf.Query) ([]types.PackageReference, error) {
	rows, err := p.db.QueryContext(ctx, query.Query(sqlf.PostgresBindVar), query.Args()...)
	if err != nil {
		return nil, errors.Wrap(err, "querying references")
	}
	defer rows.Close()

	var refs []types.PackageReference
	for rows.Next() {
		var ref types.PackageReference
		var filter []byte
		if err := rows.Scan(&ref.DumpID, &filter); err != nil {
			return nil, errors.Wrap(err, "scanning reference")
		}
		ref.Filter = filter
		refs = append(refs, ref)
	}

	return refs, rows.Err()
}

func (p *Postgres) getVisibleIDs(ctx context.Context, repositoryID int, commit string) ([]int, error) {
	query := "WITH " + bidirectionalLineage + ", " + visibleDumps + " SELECT id FROM visible_ids"

	rows, err := p.db.QueryContext(ctx, query, repositoryID, commit)
	if err != nil {
		return nil, errors.Wrap(err, "querying visible dumps")
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scanning visible dump id")
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
