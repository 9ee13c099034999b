// Package observation wraps an operation with tracing, metrics, and
// logging in one call, following the decorator pattern used throughout the
// code-intel backend: a With call opens a child span, starts a timer, and
// returns a closure that finalizes all three once the operation completes.
package observation

import (
	"context"
	"time"

	"github.com/inconshreveable/log15"
	"github.com/opentracing/opentracing-go"
	otlog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sourcegraph/precise-code-intel-core/internal/metrics"
)

// Context carries the dependencies shared by every Operation constructed
// from it: where to register Prometheus collectors and the logger that
// operation errors are written to.
type Context struct {
	Logger     log15.Logger
	Tracer     opentracing.Tracer
	Registerer prometheus.Registerer
}

// Op describes a single observed operation.
type Op struct {
	Name         string
	MetricLabels []string
	Metrics      *metrics.OperationMetrics
}

// Operation bundles an Op with the Context it was constructed from.
type Operation struct {
	context *Context
	Op
}

// Operation constructs an Operation bound to this Context.
func (c *Context) Operation(op Op) *Operation {
	return &Operation{context: c, Op: op}
}

// Args carries the fields logged onto the span for a single invocation.
// LogFields holds pre-built typed opentracing fields; MetricLabels, when
// passed to EndObservation, is appended to the Op's own MetricLabels when
// recording Prometheus observations (the MetricLabels of the Args passed to
// With are not used).
type Args struct {
	LogFields    []otlog.Field
	MetricLabels []string
}

// EndObservation finalizes the operation: records the Prometheus
// observation, logs an error (if any) at the point of completion, and
// finishes the span.
type EndObservation func(count float64, args Args)

// With starts an observed invocation of op: it opens a child span (only if
// ctx already carries a parent span), and returns a context carrying that span plus a
// closure that must be deferred to record the outcome. *err is read at the
// time EndObservation is called, so callers should pass the address of a
// named return value and call the closure after the wrapped operation has
// run, not before.
func (op *Operation) With(ctx context.Context, err *error, args Args) (context.Context, EndObservation) {
	start := time.Now()

	var span opentracing.Span
	if parent := opentracing.SpanFromContext(ctx); parent != nil {
		span = parent.Tracer().StartSpan(op.Name, opentracing.ChildOf(parent.Context()))
		ctx = opentracing.ContextWithSpan(ctx, span)
	}

	return ctx, func(count float64, endArgs Args) {
		elapsed := time.Since(start).Seconds()

		labels := append(append([]string{}, op.MetricLabels...), endArgs.MetricLabels...)
		op.Metrics.Observe(elapsed, count, err, labels...)

		if err != nil && *err != nil && !errors.Is(*err, context.Canceled) {
			if op.context != nil && op.context.Logger != nil {
				op.context.Logger.Error(op.Name, "error", *err)
			}
		}

		if span != nil {
			if err != nil && *err != nil {
				span.SetTag("error", true)
				span.LogFields(otlog.Error(*err))
			}
			for _, f := range args.LogFields {
				span.LogFields(f)
			}
			for _, f := range endArgs.LogFields {
				span.LogFields(f)
			}
			span.Finish()
		}
	}
}
