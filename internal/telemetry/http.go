package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	// HTTPInstrumentationName names the tracer and meter of the status API
	HTTPInstrumentationName = "github.com/stacklok/registry-watcher/http"

	// unmatchedRoute replaces the path of requests no route matched,
	// so raw paths never become span names or label values
	unmatchedRoute = "unmatched"
)

// apiObserver traces and measures status API requests.
// Either half may be missing.
type apiObserver struct {
	tracer trace.Tracer

	duration metric.Float64Histogram
	requests metric.Int64Counter
}

// HTTPMiddleware returns a middleware that opens a server span and records the
// request counter and latency histogram of every status API request.
// It must run inside the chi router so the matched route is known.
// With both providers nil the middleware passes requests through.
func HTTPMiddleware(tp trace.TracerProvider, mp metric.MeterProvider) (func(http.Handler) http.Handler, error) {
	o := &apiObserver{}
	if tp != nil {
		o.tracer = tp.Tracer(HTTPInstrumentationName)
	}
	if mp != nil {
		meter := mp.Meter(HTTPInstrumentationName)

		var err error
		o.duration, err = meter.Float64Histogram(
			"registry_watcher_http_request_duration_seconds",
			metric.WithDescription("Latency of status API requests"),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5),
		)
		if err != nil {
			return nil, err
		}
		o.requests, err = meter.Int64Counter(
			"registry_watcher_http_requests_total",
			metric.WithDescription("Status API requests by route and status code"),
			metric.WithUnit("{request}"),
		)
		if err != nil {
			return nil, err
		}
	}

	if o.tracer == nil && o.requests == nil {
		return func(next http.Handler) http.Handler { return next }, nil
	}
	return o.wrap, nil
}

func (o *apiObserver) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()

		var span trace.Span
		if o.tracer != nil {
			ctx = otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(r.Header))
			ctx, span = o.tracer.Start(ctx, r.Method,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
				))
			defer span.End()
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		route := matchedRoute(r)
		status := ww.Status()

		if span != nil {
			span.SetName(r.Method + " " + route)
			span.SetAttributes(
				semconv.HTTPRoute(route),
				semconv.HTTPResponseStatusCode(status),
			)
			if status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(status))
			}
		}

		if o.requests != nil {
			attrs := metric.WithAttributes(
				attribute.String("method", r.Method),
				attribute.String("route", route),
				attribute.String("status_code", strconv.Itoa(status)),
			)
			o.duration.Record(ctx, time.Since(start).Seconds(), attrs)
			o.requests.Add(ctx, 1, attrs)
		}
	})
}

// matchedRoute returns the chi pattern that served r.
// chi fills the pattern in while routing, so this is only meaningful after ServeHTTP.
func matchedRoute(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return unmatchedRoute
}
