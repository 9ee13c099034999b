package api

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/sourcegraph/precise-code-intel-core/internal/codeintel/cursor"
	"github.com/sourcegraph/precise-code-intel-core/internal/codeintel/metadata"
	"github.com/sourcegraph/precise-code-intel-core/internal/codeintel/types"
)

func newTestBackend(t *testing.T, store metadata.Store, bundleDir string) *Backend {
	t.Helper()
	connectionCache, documentCache, resultChunkCache := newTestCaches(t)
	return New(store, connectionCache, documentCache, resultChunkCache, Config{RemotePageSize: 2, BundleDir: bundleDir})
}

func TestFindClosestDumpsFiltersByRootAndChecksExistence(t *testing.T) {
	bundleDir, cleanup := newTempBundleDir(t)
	defer cleanup()

	defer newFixtureDump(t, bundleDir, 1, 1, func(raw *sqlx.DB) {
		raw.MustExec(`INSERT INTO documents (path, data) VALUES (?, ?)`, "a.go", (&documentBuilder{}).build(t))
	})()
	defer newFixtureDump(t, bundleDir, 2, 1, func(raw *sqlx.DB) {
		raw.MustExec(`INSERT INTO documents (path, data) VALUES (?, ?)`, "other.go", (&documentBuilder{}).build(t))
	})()

	fake := metadata.NewFake()
	fake.Dumps = []types.Dump{
		{ID: 1, RepositoryID: 10, Commit: "deadbeef", Root: "", Filename: filenameForDump(1)},
		{ID: 2, RepositoryID: 10, Commit: "deadbeef", Root: "sub/", Filename: filenameForDump(2)},
	}

	backend := newTestBackend(t, fake, bundleDir)

	dumps, err := backend.FindClosestDumps(context.Background(), 10, "deadbeef", "a.go")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	// dump 2's root doesn't contain a.go, so only dump 1 should exist for it.
	if len(dumps) != 1 || dumps[0].ID != 1 {
		t.Fatalf("unexpected dumps: %+v", dumps)
	}
}

func TestDefinitionsLocalHit(t *testing.T) {
	bundleDir, cleanup := newTempBundleDir(t)
	defer cleanup()

	defer newFixtureDump(t, bundleDir, 1, 1, func(raw *sqlx.DB) {
		doc := (&documentBuilder{}).
			addRange("r1", rangeFixture{StartLine: 5, StartCharacter: 0, EndLine: 5, EndCharacter: 3, DefinitionResultID: "def1"}).
			build(t)
		raw.MustExec(`INSERT INTO documents (path, data) VALUES (?, ?)`, "a.go", doc)

		chunk := (&resultChunkBuilder{}).
			addDocumentPath("d1", "a.go").
			addResult("def1", documentFixtureIDRangeID{DocumentID: "d1", RangeID: "r1"}).
			build(t)
		raw.MustExec(`INSERT INTO resultChunks (id, data) VALUES (?, ?)`, 0, chunk)
	})()

	fake := metadata.NewFake()
	fake.Dumps = []types.Dump{
		{ID: 1, RepositoryID: 10, Commit: "deadbeef", Root: "", Filename: filenameForDump(1)},
	}

	backend := newTestBackend(t, fake, bundleDir)

	locations, err := backend.Definitions(context.Background(), 10, "deadbeef", "a.go", 5, 1)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(locations) != 1 || locations[0].Path != "a.go" {
		t.Fatalf("unexpected locations: %+v", locations)
	}
}

func TestDefinitionsMonikerFallbackAcrossDumps(t *testing.T) {
	bundleDir, cleanup := newTempBundleDir(t)
	defer cleanup()

	// Dump 1 has a range with an import moniker but no local definition.
	defer newFixtureDump(t, bundleDir, 1, 1, func(raw *sqlx.DB) {
		doc := (&documentBuilder{}).
			addRange("r1", rangeFixture{StartLine: 5, StartCharacter: 0, EndLine: 5, EndCharacter: 3, MonikerIDs: []string{"m1"}}).
			addMoniker("m1", monikerFixture{Kind: "import", Scheme: "go", Identifier: "fmt.Println", PackageInformationID: "p1"}).
			addPackageInformation("p1", packageInformationFixture{Name: "fmt", Version: "v1"}).
			build(t)
		raw.MustExec(`INSERT INTO documents (path, data) VALUES (?, ?)`, "a.go", doc)
	})()

	// Dump 2 is the exporting package, with the real definition row.
	defer newFixtureDump(t, bundleDir, 2, 1, func(raw *sqlx.DB) {
		raw.MustExec(
			`INSERT INTO definitions (scheme, identifier, documentPath, startLine, startCharacter, endLine, endCharacter) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			"go", "fmt.Println", "fmt.go", 100, 0, 100, 7,
		)
	})()

	fake := metadata.NewFake()
	fake.Dumps = []types.Dump{
		{ID: 1, RepositoryID: 10, Commit: "deadbeef", Root: "", Filename: filenameForDump(1)},
		{ID: 2, RepositoryID: 10, Commit: "deadbeef", Root: "vendor/fmt/", Filename: filenameForDump(2)},
	}
	fake.AddPackage("go", "fmt", "v1", fake.Dumps[1])

	backend := newTestBackend(t, fake, bundleDir)

	locations, err := backend.Definitions(context.Background(), 10, "deadbeef", "a.go", 5, 1)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(locations) != 1 {
		t.Fatalf("expected 1 location, got %d: %+v", len(locations), locations)
	}
	if locations[0].Path != "vendor/fmt/fmt.go" {
		t.Errorf("unexpected resolved path: %s", locations[0].Path)
	}
}

func TestHoverFallbackWithoutDefinition(t *testing.T) {
	bundleDir, cleanup := newTempBundleDir(t)
	defer cleanup()

	defer newFixtureDump(t, bundleDir, 1, 1, func(raw *sqlx.DB) {
		doc := (&documentBuilder{}).
			addRange("r1", rangeFixture{StartLine: 5, StartCharacter: 0, EndLine: 5, EndCharacter: 3}).
			build(t)
		raw.MustExec(`INSERT INTO documents (path, data) VALUES (?, ?)`, "a.go", doc)
	})()

	fake := metadata.NewFake()
	fake.Dumps = []types.Dump{
		{ID: 1, RepositoryID: 10, Commit: "deadbeef", Root: "", Filename: filenameForDump(1)},
	}

	backend := newTestBackend(t, fake, bundleDir)

	// a.go has no hover result of its own, so Hover falls through to
	// Definitions; r1 has no definition result and no monikers either, so no
	// definition site is found and the net result is a clean "not found".
	_, _, exists, err := backend.Hover(context.Background(), 10, "deadbeef", "a.go", 5, 1)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if exists {
		t.Errorf("expected no hover result")
	}
}

func TestReferencesPaginatesAcrossSameRepoAndRemoteRepo(t *testing.T) {
	bundleDir, cleanup := newTempBundleDir(t)
	defer cleanup()

	// Origin dump: a reference site with an import moniker.
	defer newFixtureDump(t, bundleDir, 1, 1, func(raw *sqlx.DB) {
		doc := (&documentBuilder{}).
			addRange("r1", rangeFixture{StartLine: 5, StartCharacter: 0, EndLine: 5, EndCharacter: 3, MonikerIDs: []string{"m1"}}).
			addMoniker("m1", monikerFixture{Kind: "import", Scheme: "go", Identifier: "fmt.Println", PackageInformationID: "p1"}).
			addPackageInformation("p1", packageInformationFixture{Name: "fmt", Version: "v1"}).
			build(t)
		raw.MustExec(`INSERT INTO documents (path, data) VALUES (?, ?)`, "a.go", doc)
	})()

	// Two same-repo dumps and one remote-repo dump each with one reference row.
	for id, path := range map[int]string{2: "s1.go", 3: "s2.go"} {
		id, path := id, path
		defer newFixtureDump(t, bundleDir, id, 1, func(raw *sqlx.DB) {
			raw.MustExec(
				`INSERT INTO "references" (scheme, identifier, documentPath, startLine, startCharacter, endLine, endCharacter) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				"go", "fmt.Println", path, 1, 0, 1, 3,
			)
		})()
	}
	defer newFixtureDump(t, bundleDir, 4, 1, func(raw *sqlx.DB) {
		raw.MustExec(
			`INSERT INTO "references" (scheme, identifier, documentPath, startLine, startCharacter, endLine, endCharacter) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			"go", "fmt.Println", "remote.go", 2, 0, 2, 3,
		)
	})()

	fake := metadata.NewFake()
	fake.Dumps = []types.Dump{
		{ID: 1, RepositoryID: 10, Commit: "deadbeef", Root: "", Filename: filenameForDump(1)},
		{ID: 2, RepositoryID: 10, Commit: "deadbeef", Root: "s1/", Filename: filenameForDump(2)},
		{ID: 3, RepositoryID: 10, Commit: "deadbeef", Root: "s2/", Filename: filenameForDump(3)},
		{ID: 4, RepositoryID: 20, Commit: "cafebabe", Root: "", Filename: filenameForDump(4)},
	}
	fake.AddPackage("go", "fmt", "v1", fake.Dumps[0])
	fake.AddReferences("go", "fmt", "v1", types.PackageReference{DumpID: 2}, types.PackageReference{DumpID: 3}, types.PackageReference{DumpID: 4})

	backend := newTestBackend(t, fake, bundleDir)

	locations, cur, err := backend.References(context.Background(), 10, "deadbeef", "a.go", 5, 1, 1, nil)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if cur == nil {
		t.Fatalf("expected a continuation cursor (more same-repo dumps remain)")
	}
	if len(locations) == 0 {
		t.Fatalf("expected at least one location in the first page")
	}

	var all []string
	for _, l := range locations {
		all = append(all, l.Path)
	}

	// Drain every remaining page, following the returned cursor each time.
	for cur != nil {
		var page []types.ResolvedLocation
		page, cur, err = backend.References(context.Background(), 10, "deadbeef", "a.go", 5, 1, 1, cur)
		if err != nil {
			t.Fatalf("unexpected error on continuation: %s", err)
		}
		for _, l := range page {
			all = append(all, l.Path)
		}
	}

	if len(all) != 3 {
		t.Fatalf("expected 3 total reference locations across all pages, got %d: %v", len(all), all)
	}
}

func TestReferencesContinuationDumpGone(t *testing.T) {
	bundleDir, cleanup := newTempBundleDir(t)
	defer cleanup()

	fake := metadata.NewFake()
	backend := newTestBackend(t, fake, bundleDir)

	gone := &cursor.Cursor{DumpID: 999, Phase: cursor.PhaseSameRepo}
	locations, next, err := backend.References(context.Background(), 10, "deadbeef", "a.go", 5, 1, 1, gone)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if locations != nil || next != nil {
		t.Errorf("expected a clean empty result for a gone dump, got locations=%v next=%v", locations, next)
	}
}
