package api

import (
	"context"

	"github.com/sourcegraph/precise-code-intel-core/internal/codeintel/cursor"
	"github.com/sourcegraph/precise-code-intel-core/internal/codeintel/types"
	"github.com/sourcegraph/precise-code-intel-core/internal/metrics"
	"github.com/sourcegraph/precise-code-intel-core/internal/observation"
)

// ObservedCodeIntelAPI wraps a CodeIntelAPI with tracing, Prometheus
// metrics, and error logging on every call.
type ObservedCodeIntelAPI struct {
	codeIntelAPI              CodeIntelAPI
	findClosestDumpsOperation *observation.Operation
	definitionsOperation      *observation.Operation
	referencesOperation       *observation.Operation
	hoverOperation            *observation.Operation
	diagnosticsOperation      *observation.Operation
}

var _ CodeIntelAPI = &ObservedCodeIntelAPI{}

// NewObserved wraps codeIntelAPI with tracing, Prometheus metrics, and
// error logging, registering its collectors against observationContext.
func NewObserved(codeIntelAPI CodeIntelAPI, observationContext *observation.Context) CodeIntelAPI {
	m := metrics.NewOperationMetrics(
		observationContext.Registerer,
		"code_intel_api",
		metrics.WithLabels("op"),
		metrics.WithCountHelp("Total number of results returned"),
	)

	return &ObservedCodeIntelAPI{
		codeIntelAPI: codeIntelAPI,
		findClosestDumpsOperation: observationContext.Operation(observation.Op{
			Name:         "CodeIntelAPI.FindClosestDumps",
			MetricLabels: []string{"find_closest_dumps"},
			Metrics:      m,
		}),
		definitionsOperation: observationContext.Operation(observation.Op{
			Name:         "CodeIntelAPI.Definitions",
			MetricLabels: []string{"definitions"},
			Metrics:      m,
		}),
		referencesOperation: observationContext.Operation(observation.Op{
			Name:         "CodeIntelAPI.References",
			MetricLabels: []string{"references"},
			Metrics:      m,
		}),
		hoverOperation: observationContext.Operation(observation.Op{
			Name:         "CodeIntelAPI.Hover",
			MetricLabels: []string{"hover"},
			Metrics:      m,
		}),
		diagnosticsOperation: observationContext.Operation(observation.Op{
			Name:         "CodeIntelAPI.Diagnostics",
			MetricLabels: []string{"diagnostics"},
			Metrics:      m,
		}),
	}
}

func (a *ObservedCodeIntelAPI) FindClosestDumps(ctx context.Context, repositoryID int, commit, path string) (dumps []types.Dump, err error) {
	ctx, endObservation := a.findClosestDumpsOperation.With(ctx, &err, observation.Args{})
	defer func() { endObservation(float64(len(dumps)), observation.Args{}) }()
	return a.codeIntelAPI.FindClosestDumps(ctx, repositoryID, commit, path)
}

func (a *ObservedCodeIntelAPI) Definitions(ctx context.Context, repositoryID int, commit, path string, line, character int) (definitions []types.ResolvedLocation, err error) {
	ctx, endObservation := a.definitionsOperation.With(ctx, &err, observation.Args{})
	defer func() { endObservation(float64(len(definitions)), observation.Args{}) }()
	return a.codeIntelAPI.Definitions(ctx, repositoryID, commit, path, line, character)
}

func (a *ObservedCodeIntelAPI) References(ctx context.Context, repositoryID int, commit, path string, line, character, limit int, cur *cursor.Cursor) (references []types.ResolvedLocation, _ *cursor.Cursor, err error) {
	ctx, endObservation := a.referencesOperation.With(ctx, &err, observation.Args{})
	defer func() { endObservation(float64(len(references)), observation.Args{}) }()
	return a.codeIntelAPI.References(ctx, repositoryID, commit, path, line, character, limit, cur)
}

func (a *ObservedCodeIntelAPI) Hover(ctx context.Context, repositoryID int, commit, path string, line, character int) (_ string, _ types.Range, _ bool, err error) {
	ctx, endObservation := a.hoverOperation.With(ctx, &err, observation.Args{})
	defer endObservation(1, observation.Args{})
	return a.codeIntelAPI.Hover(ctx, repositoryID, commit, path, line, character)
}

func (a *ObservedCodeIntelAPI) Diagnostics(ctx context.Context, dumpID int, prefix string, limit, offset int) (diagnostics []types.ResolvedDiagnostic, _ int, err error) {
	ctx, endObservation := a.diagnosticsOperation.With(ctx, &err, observation.Args{})
	defer func() { endObservation(float64(len(diagnostics)), observation.Args{}) }()
	return a.codeIntelAPI.Diagnostics(ctx, dumpID, prefix, limit, offset)
}
