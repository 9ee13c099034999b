package store

import (
	"bytes"
	"encoding/json"
	"io/ioutil"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"

	"github.com/sourcegraph/precise-code-intel-core/internal/codeintel/types"
)

// wrappedMapValue and wrappedSetValue mirror the shape the indexer's
// serializer writes JS Map/Set values as: {"value": [[key, val], ...]}.
type wrappedMapValue struct {
	Value []json.RawMessage `json:"value"`
}

type wrappedSetValue struct {
	Value []json.RawMessage `json:"value"`
}

func unmarshalDocumentData(data []byte) (types.DocumentData, error) {
	payload := struct {
		Ranges             wrappedMapValue   `json:"ranges"`
		HoverResults       wrappedMapValue   `json:"hoverResults"`
		Monikers           wrappedMapValue   `json:"monikers"`
		PackageInformation wrappedMapValue   `json:"packageInformation"`
		Diagnostics        []json.RawMessage `json:"diagnosticResults"`
	}{}

	if err := unmarshalGzippedJSON(data, &payload); err != nil {
		return types.DocumentData{}, errors.Wrap(err, "unmarshalling document payload")
	}

	ranges, err := unmarshalWrappedRanges(payload.Ranges.Value)
	if err != nil {
		return types.DocumentData{}, errors.Wrap(err, "unmarshalling ranges")
	}

	hoverResults, err := unmarshalWrappedHoverResults(payload.HoverResults.Value)
	if err != nil {
		return types.DocumentData{}, errors.Wrap(err, "unmarshalling hover results")
	}

	monikers, err := unmarshalWrappedMonikers(payload.Monikers.Value)
	if err != nil {
		return types.DocumentData{}, errors.Wrap(err, "unmarshalling monikers")
	}

	packageInformation, err := unmarshalWrappedPackageInformation(payload.PackageInformation.Value)
	if err != nil {
		return types.DocumentData{}, errors.Wrap(err, "unmarshalling package information")
	}

	diagnostics, err := unmarshalDiagnostics(payload.Diagnostics)
	if err != nil {
		return types.DocumentData{}, errors.Wrap(err, "unmarshalling diagnostics")
	}

	return types.DocumentData{
		Ranges:             ranges,
		HoverResults:       hoverResults,
		Monikers:           monikers,
		PackageInformation: packageInformation,
		Diagnostics:        diagnostics,
	}, nil
}

func unmarshalWrappedRanges(pairs []json.RawMessage) (map[types.ID]types.RangeData, error) {
	m := map[types.ID]types.RangeData{}
	for _, pair := range pairs {
		var id types.ID
		var value struct {
			StartLine          int             `json:"startLine"`
			StartCharacter     int             `json:"startCharacter"`
			EndLine            int             `json:"endLine"`
			EndCharacter       int             `json:"endCharacter"`
			DefinitionResultID types.ID        `json:"definitionResultID"`
			ReferenceResultID  types.ID        `json:"referenceResultID"`
			HoverResultID      types.ID        `json:"hoverResultID"`
			MonikerIDs         wrappedSetValue `json:"monikerIDs"`
		}

		target := []interface{}{&id, &value}
		if err := json.Unmarshal(pair, &target); err != nil {
			return nil, err
		}

		var monikerIDs []types.ID
		for _, raw := range value.MonikerIDs.Value {
			var monikerID types.ID
			if err := json.Unmarshal(raw, &monikerID); err != nil {
				return nil, err
			}

			monikerIDs = append(monikerIDs, monikerID)
		}

		m[id] = types.RangeData{
			StartLine:          value.StartLine,
			StartCharacter:     value.StartCharacter,
			EndLine:            value.EndLine,
			EndCharacter:       value.EndCharacter,
			DefinitionResultID: value.DefinitionResultID,
			ReferenceResultID:  value.ReferenceResultID,
			HoverResultID:      value.HoverResultID,
			MonikerIDs:         monikerIDs,
		}
	}

	return m, nil
}

func unmarshalWrappedHoverResults(pairs []json.RawMessage) (map[types.ID]string, error) {
	m := map[types.ID]string{}
	for _, pair := range pairs {
		var id types.ID
		var value string

		target := []interface{}{&id, &value}
		if err := json.Unmarshal(pair, &target); err != nil {
			return nil, err
		}

		m[id] = value
	}

	return m, nil
}

func unmarshalWrappedMonikers(pairs []json.RawMessage) (map[types.ID]types.MonikerData, error) {
	m := map[types.ID]types.MonikerData{}
	for _, pair := range pairs {
		var id types.ID
		var value struct {
			Kind                 types.MonikerKind `json:"kind"`
			Scheme               string            `json:"scheme"`
			Identifier           string            `json:"identifier"`
			PackageInformationID types.ID          `json:"packageInformationID"`
		}

		target := []interface{}{&id, &value}
		if err := json.Unmarshal(pair, &target); err != nil {
			return nil, err
		}

		m[id] = types.MonikerData{
			Kind:                 value.Kind,
			Scheme:               value.Scheme,
			Identifier:           value.Identifier,
			PackageInformationID: value.PackageInformationID,
		}
	}

	return m, nil
}

func unmarshalWrappedPackageInformation(pairs []json.RawMessage) (map[types.ID]types.PackageInformationData, error) {
	m := map[types.ID]types.PackageInformationData{}
	for _, pair := range pairs {
		var id types.ID
		var value struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		}

		target := []interface{}{&id, &value}
		if err := json.Unmarshal(pair, &target); err != nil {
			return nil, err
		}

		m[id] = types.PackageInformationData{
			Name:    value.Name,
			Version: value.Version,
		}
	}

	return m, nil
}

func unmarshalDiagnostics(raw []json.RawMessage) ([]types.DiagnosticData, error) {
	var diagnostics []types.DiagnosticData
	for _, r := range raw {
		var d types.DiagnosticData
		if err := json.Unmarshal(r, &d); err != nil {
			return nil, err
		}
		diagnostics = append(diagnostics, d)
	}

	return diagnostics, nil
}

func unmarshalResultChunkData(data []byte) (types.ResultChunkData, error) {
	payload := struct {
		DocumentPaths      wrappedMapValue `json:"documentPaths"`
		DocumentIDRangeIDs wrappedMapValue `json:"documentIdRangeIds"`
	}{}

	if err := unmarshalGzippedJSON(data, &payload); err != nil {
		return types.ResultChunkData{}, errors.Wrap(err, "unmarshalling result chunk payload")
	}

	documentPaths, err := unmarshalWrappedDocumentPaths(payload.DocumentPaths.Value)
	if err != nil {
		return types.ResultChunkData{}, errors.Wrap(err, "unmarshalling document paths")
	}

	documentIDRangeIDs, err := unmarshalWrappedDocumentIDRangeIDs(payload.DocumentIDRangeIDs.Value)
	if err != nil {
		return types.ResultChunkData{}, errors.Wrap(err, "unmarshalling document/range ids")
	}

	return types.ResultChunkData{
		DocumentPaths:      documentPaths,
		DocumentIDRangeIDs: documentIDRangeIDs,
	}, nil
}

func unmarshalWrappedDocumentPaths(pairs []json.RawMessage) (map[types.ID]string, error) {
	m := map[types.ID]string{}
	for _, pair := range pairs {
		var id types.ID
		var value string

		target := []interface{}{&id, &value}
		if err := json.Unmarshal(pair, &target); err != nil {
			return nil, err
		}

		m[id] = value
	}

	return m, nil
}

func unmarshalWrappedDocumentIDRangeIDs(pairs []json.RawMessage) (map[types.ID][]types.DocumentIDRangeID, error) {
	m := map[types.ID][]types.DocumentIDRangeID{}
	for _, pair := range pairs {
		var id types.ID
		var value []struct {
			DocumentID types.ID `json:"documentId"`
			RangeID    types.ID `json:"rangeId"`
		}

		target := []interface{}{&id, &value}
		if err := json.Unmarshal(pair, &target); err != nil {
			return nil, err
		}

		var documentIDRangeIDs []types.DocumentIDRangeID
		for _, v := range value {
			documentIDRangeIDs = append(documentIDRangeIDs, types.DocumentIDRangeID{
				DocumentID: v.DocumentID,
				RangeID:    v.RangeID,
			})
		}

		m[id] = documentIDRangeIDs
	}

	return m, nil
}

func unmarshalGzippedJSON(data []byte, payload interface{}) error {
	gzipReader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer gzipReader.Close()

	decompressed, err := ioutil.ReadAll(gzipReader)
	if err != nil {
		return err
	}

	return json.Unmarshal(decompressed, payload)
}
