package api

import (
	"context"

	"github.com/pkg/errors"

	"github.com/sourcegraph/precise-code-intel-core/internal/codeintel/store"
	"github.com/sourcegraph/precise-code-intel-core/internal/codeintel/types"
)

// lookupMoniker resolves an import moniker to the dump that exports the
// package it names, then scans that dump's definitions/references table
// for the moniker (spec.md §4.4 step 3, §4.5 step 4c).
func (b *Backend) lookupMoniker(ctx context.Context, document types.DocumentData, m types.MonikerData, model store.Model) ([]types.ResolvedLocation, error) {
	if m.PackageInformationID == "" {
		return nil, nil
	}

	pkgInfo, ok := document.PackageInformation[m.PackageInformationID]
	if !ok {
		return nil, errors.Errorf("unknown package information %s", m.PackageInformationID)
	}

	dump, exists, err := b.metadataStore.GetPackage(ctx, m.Scheme, pkgInfo.Name, pkgInfo.Version)
	if err != nil {
		return nil, errors.Wrap(err, "metadataStore.GetPackage")
	}
	if !exists {
		return nil, nil
	}

	var locations []types.ResolvedLocation
	err = b.withDatabase(ctx, dump, func(db *store.Database) error {
		internal, _, err := db.MonikerResults(ctx, model, m.Scheme, m.Identifier, 0, 0)
		if err != nil {
			return err
		}
		locations = resolveLocations(dump, internal)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return locations, nil
}
