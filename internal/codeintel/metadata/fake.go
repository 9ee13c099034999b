package metadata

import (
	"context"
	"sort"
	"strings"

	"github.com/sourcegraph/precise-code-intel-core/internal/codeintel/types"
)

// Fake is an in-memory Store used by api package tests; it approximates
// FindClosestDumps by the same root-prefix rule Postgres applies, without
// modelling commit lineage (tests pin every dump to the requested commit).
type Fake struct {
	Dumps      []types.Dump
	Packages   map[packageKey]types.Dump
	References map[packageKey][]types.PackageReference
}

type packageKey struct {
	scheme, name, version string
}

func NewFake() *Fake {
	return &Fake{
		Packages:   map[packageKey]types.Dump{},
		References: map[packageKey][]types.PackageReference{},
	}
}

var _ Store = (*Fake)(nil)

// AddPackage registers dump as the exporter of (scheme, name, version), for
// GetPackage to resolve an import moniker against.
func (f *Fake) AddPackage(scheme, name, version string, dump types.Dump) {
	f.Packages[packageKey{scheme, name, version}] = dump
}

// AddReferences registers refs as the dumps that depend on (scheme, name,
// version), for GetSameRepoRemoteReferences/GetPackageReferences to page
// through.
func (f *Fake) AddReferences(scheme, name, version string, refs ...types.PackageReference) {
	f.References[packageKey{scheme, name, version}] = append(f.References[packageKey{scheme, name, version}], refs...)
}

func (f *Fake) GetDumpByID(ctx context.Context, id int) (types.Dump, bool, error) {
	for _, d := range f.Dumps {
		if d.ID == id {
			return d, true, nil
		}
	}
	return types.Dump{}, false, nil
}

func (f *Fake) FindClosestDumps(ctx context.Context, repositoryID int, commit, path string) ([]types.Dump, error) {
	var matches []types.Dump
	for _, d := range f.Dumps {
		if d.RepositoryID != repositoryID || d.Commit != commit {
			continue
		}

		if strings.HasPrefix(path, d.Root) {
			matches = append(matches, d)
		}
	}

	sort.Slice(matches, func(i, j int) bool { return len(matches[i].Root) > len(matches[j].Root) })
	return matches, nil
}

func (f *Fake) GetPackage(ctx context.Context, scheme, name, version string) (types.Dump, bool, error) {
	d, ok := f.Packages[packageKey{scheme, name, version}]
	return d, ok, nil
}

func (f *Fake) GetSameRepoRemoteReferences(ctx context.Context, repositoryID, excludeDumpID int, commit, scheme, name, version string, limit, offset int) ([]types.PackageReference, int, error) {
	all := f.References[packageKey{scheme, name, version}]

	var filtered []types.PackageReference
	for _, ref := range all {
		dump, ok, _ := f.GetDumpByID(ctx, ref.DumpID)
		if !ok || dump.RepositoryID != repositoryID || dump.ID == excludeDumpID {
			continue
		}
		filtered = append(filtered, ref)
	}

	return paginate(filtered, limit, offset)
}

func (f *Fake) GetPackageReferences(ctx context.Context, repositoryID int, scheme, name, version string, limit, offset int) ([]types.PackageReference, int, error) {
	all := f.References[packageKey{scheme, name, version}]

	var filtered []types.PackageReference
	for _, ref := range all {
		dump, ok, _ := f.GetDumpByID(ctx, ref.DumpID)
		if !ok || dump.RepositoryID == repositoryID {
			continue
		}
		filtered = append(filtered, ref)
	}

	return paginate(filtered, limit, offset)
}

func paginate(refs []types.PackageReference, limit, offset int) ([]types.PackageReference, int, error) {
	total := len(refs)
	if offset >= total {
		return nil, total, nil
	}

	end := offset + limit
	if end > total || limit <= 0 {
		end = total
	}

	return refs[offset:end], total, nil
}
