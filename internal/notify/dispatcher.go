// Package notify executes the notification actions of updated images.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/registry-watcher/internal/detect"
	"github.com/stacklok/registry-watcher/internal/httpclient"
	"github.com/stacklok/registry-watcher/internal/job"
	"github.com/stacklok/registry-watcher/internal/otel"
	"github.com/stacklok/registry-watcher/internal/telemetry"
)

const (
	outcomeSucceeded = "succeeded"
	outcomeFailed    = "failed"
)

// Dispatcher fires the actions of updated images. Every action runs in its own
// goroutine and a failure is only logged, so siblings are never affected.
type Dispatcher struct {
	client     httpclient.Client
	transports *TransportCache
	metrics    *telemetry.CycleMetrics
	tracer     trace.Tracer

	fallbackMu sync.Mutex
	fallback   io.Writer

	wg sync.WaitGroup
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithFallbackWriter sets where images of unknown actions are printed (stdout by default)
func WithFallbackWriter(w io.Writer) Option {
	return func(d *Dispatcher) {
		d.fallback = w
	}
}

// WithMetrics records dispatch outcomes
func WithMetrics(metrics *telemetry.CycleMetrics) Option {
	return func(d *Dispatcher) {
		d.metrics = metrics
	}
}

// WithTracerProvider traces every webhook and mail action
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(d *Dispatcher) {
		if provider != nil {
			d.tracer = provider.Tracer(telemetry.CycleTracerName)
		}
	}
}

// NewDispatcher creates a Dispatcher sending webhooks through client and mails through transports
func NewDispatcher(client httpclient.Client, transports *TransportCache, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		client:     client,
		transports: transports,
		fallback:   os.Stdout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch starts every action of the updated image and returns immediately.
// Actions outlive ctx cancellation, use Wait to drain them.
func (d *Dispatcher) Dispatch(ctx context.Context, result *detect.CheckResult) {
	ctx = context.WithoutCancel(ctx)
	event := NewUpdateEvent(result)

	for _, action := range result.Job.Actions {
		d.wg.Add(1)
		go func(action job.Action) {
			defer d.wg.Done()
			d.run(ctx, action, result.Job.Image, event)
		}(action)
	}
}

// Wait blocks until all started actions finished or ctx is done
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for notifications: %w", ctx.Err())
	}
}

func (d *Dispatcher) run(ctx context.Context, action job.Action, image job.TrackedImage, event UpdateEvent) {
	logger := slog.With("image", event.Image, "action", string(action.Type()))

	var err error
	switch a := action.(type) {
	case job.WebhookAction:
		err = d.traced(ctx, action, a.Instance, image.Key(), func(ctx context.Context) error {
			return d.sendWebhook(ctx, a, event)
		})
		logger = logger.With("instance", a.Instance)
	case job.MailAction:
		err = d.traced(ctx, action, a.Instance, image.Key(), func(ctx context.Context) error {
			return d.sendMail(ctx, a, image, event)
		})
		logger = logger.With("instance", a.Instance, "recipient", a.Recipient)
	default:
		d.printFallback(logger, image)
		return
	}

	d.metrics.RecordDispatch(ctx, string(action.Type()), err == nil)
	if err != nil {
		logger.Error("Notification action failed", "error", err)
		return
	}
	logger.Info("Notification action succeeded")
}

// traced runs send inside an action span
func (d *Dispatcher) traced(
	ctx context.Context,
	action job.Action,
	instance string,
	image string,
	send func(context.Context) error,
) error {
	ctx, span := otel.StartSpan(ctx, d.tracer, otel.SpanAction,
		trace.WithAttributes(
			otel.AttrActionType.String(string(action.Type())),
			otel.AttrActionInstance.String(instance),
			otel.AttrImage.String(image),
		))
	defer span.End()

	err := send(ctx)
	if err != nil {
		otel.Outcome(span, outcomeFailed, err)
	} else {
		otel.Outcome(span, outcomeSucceeded, nil)
	}
	return err
}

func (d *Dispatcher) sendWebhook(ctx context.Context, action job.WebhookAction, event UpdateEvent) error {
	body, err := renderBody(action.Instance, action.BodyTemplate, event)
	if err != nil {
		return err
	}

	resp, err := d.client.Do(ctx, action.Method, action.URL, action.Headers, body)
	if err != nil {
		return err
	}

	slog.Debug("Webhook responded", "instance", action.Instance, "status", resp.StatusCode)
	return nil
}

func (d *Dispatcher) sendMail(ctx context.Context, action job.MailAction, image job.TrackedImage, event UpdateEvent) error {
	if d.transports == nil {
		return fmt.Errorf("no mail transports configured")
	}

	transport, err := d.transports.Get(action.Instance)
	if err != nil {
		return err
	}

	if err := transport.Verify(ctx); err != nil {
		return fmt.Errorf("mail server verification failed: %w", err)
	}

	details, err := json.MarshalIndent(image, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}

	return transport.Send(ctx, &Message{
		To:      action.Recipient,
		Subject: fmt.Sprintf("Docker image '%s' updated", event.Image),
		Body:    fmt.Sprintf("%s:\n%s", event.Message, details),
	})
}

// printFallback reports an image whose action has no handler
func (d *Dispatcher) printFallback(logger *slog.Logger, image job.TrackedImage) {
	logger.Warn("Unknown notification action, printing the image instead")

	details, err := json.Marshal(image)
	if err != nil {
		logger.Error("Failed to encode image", "error", err)
		return
	}

	d.fallbackMu.Lock()
	defer d.fallbackMu.Unlock()
	_, _ = fmt.Fprintf(d.fallback, "Image: %s\n", details)
}
