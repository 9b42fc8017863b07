package orchestration

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/koscakluka/ema-campus/core/alerts"
	"github.com/koscakluka/ema-campus/core/llms"
)

type ResponseGenerator interface {
	Generate(ctx context.Context, history []llms.Message, systemPrompt string) (string, error)
}

type AlertChannel interface {
	Send(ctx context.Context, event alerts.Event) error
}

type AlertDispatcher struct {
	generator ResponseGenerator
	channel   AlertChannel
	sink      NotificationSink
	now       func() time.Time
}

type AlertDispatcherOption func(*AlertDispatcher)

// WithAlertClock sets the clock used to timestamp outgoing alerts.
func WithAlertClock(now func() time.Time) AlertDispatcherOption {
	return func(d *AlertDispatcher) {
		d.now = now
	}
}

func NewAlertDispatcher(generator ResponseGenerator, channel AlertChannel, sink NotificationSink, opts ...AlertDispatcherOption) *AlertDispatcher {
	if sink == nil {
		sink = discardSink{}
	}
	d := &AlertDispatcher{
		generator: generator,
		channel:   channel,
		sink:      sink,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Send summarizes raw with the alert prompt and forwards the summary to the
// alert channel. When summarizing fails raw is forwarded unchanged. Every
// failure is reported to the notification sink and returned as a
// *DispatchError.
func (d *AlertDispatcher) Send(ctx context.Context, raw, prompt string) error {
	ctx, span := tracer.Start(ctx, "dispatch alert")
	defer span.End()

	message, summaryErr := d.summarize(ctx, raw, prompt)
	if summaryErr != nil {
		span.RecordError(summaryErr)
		logger.Warn("failed to summarize alert, forwarding raw message", "error", summaryErr)
		d.sink.Notify(dispatchNotification(summaryErr))
		message = raw
	}
	span.SetAttributes(attribute.Bool("alert.summarized", summaryErr == nil))

	err := panicSafeNamedWorker("alert delivery", func(ctx context.Context) error {
		if d.channel == nil {
			return ErrNoAlertChannel
		}
		return d.channel.Send(ctx, alerts.NewEvent(message, d.now()))
	})(ctx)
	if err != nil {
		deliverErr := &DispatchError{Stage: DispatchStageDeliver, Err: err}
		span.RecordError(deliverErr)
		span.SetStatus(codes.Error, "alert delivery failed")
		logger.Error("failed to deliver alert", "error", deliverErr)
		d.sink.Notify(dispatchNotification(deliverErr))
		return deliverErr
	}

	logger.Info("alert delivered", "summarized", summaryErr == nil)
	if summaryErr != nil {
		return summaryErr
	}
	return nil
}

func (d *AlertDispatcher) summarize(ctx context.Context, raw, prompt string) (string, *DispatchError) {
	var summary string
	err := panicSafeNamedWorker("alert summary", func(ctx context.Context) error {
		if d.generator == nil {
			return ErrNoGenerator
		}
		var err error
		summary, err = d.generator.Generate(ctx, []llms.Message{llms.UserMessage(raw)}, prompt)
		return err
	})(ctx)
	if err != nil {
		return "", &DispatchError{Stage: DispatchStageSummary, Err: err}
	}

	summary = strings.TrimSpace(summary)
	if summary == "" {
		return "", &DispatchError{Stage: DispatchStageSummary, Err: llms.ErrEmptyResponse}
	}
	return summary, nil
}
