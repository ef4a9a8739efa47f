// Package otel holds the span conventions of the polling cycle and the
// notification dispatcher.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span names
const (
	SpanCycle      = "cycle.run"
	SpanCheckImage = "cycle.check_image"
	SpanAction     = "notify.action"
)

// Attribute keys
const (
	AttrCycleID      = attribute.Key("cycle.id")
	AttrImageCount   = attribute.Key("cycle.image_count")
	AttrUpdatedCount = attribute.Key("cycle.updated_count")
	AttrFailedCount  = attribute.Key("cycle.failed_count")

	// AttrImage is the snapshot key of the image, e.g. "library/nginx"
	AttrImage = attribute.Key("image.key")

	AttrActionType     = attribute.Key("action.type")
	AttrActionInstance = attribute.Key("action.instance")

	// AttrOutcome is the check outcome of an image or "succeeded"/"failed" for an action
	AttrOutcome = attribute.Key("outcome")
)

// StartSpan starts a child span of ctx. Without a tracer it returns ctx and the
// span already in it, which is a no-op span outside any trace.
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// Outcome tags span with outcome. A non-nil err is attached as an exception
// event and fails the span, using outcome as the status description.
func Outcome(span trace.Span, outcome string, err error) {
	span.SetAttributes(AttrOutcome.String(outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
}

// Fail records err on span and marks it failed. Nil spans and errors are ignored.
func Fail(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
