package orchestration

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jinzhu/copier"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/koscakluka/ema-campus/core/llms"
	"github.com/koscakluka/ema-campus/core/prompts"
	"github.com/koscakluka/ema-campus/core/texttospeech"
)

// EmergencyConfirmation is spoken after every emergency input, whether or not
// the alert could be delivered.
const EmergencyConfirmation = "I just alerted the authorities. They will be here soon!"

const (
	subtitleListening  = "Listening..."
	subtitleProcessing = "Processing..."
)

type controllerCallbacks struct {
	onState    func(TurnState)
	onSubtitle func(string)
	onMessage  func(llms.Message)
}

// Controller runs the conversation one turn at a time. A turn starts from
// typed input or a listening session and ends when the reply has been
// played, or when it is stopped or fails. While a turn is active every new
// input is rejected.
type Controller struct {
	mu      sync.Mutex
	state   TurnState
	active  *Turn
	history []llms.Message
	closed  bool

	pending   []func()
	finishing []func()
	alerts    sync.WaitGroup

	transcripts *TranscriptSource
	synth       *Synthesizer
	dispatcher  *AlertDispatcher

	capture        SpeechCapture
	captureTimeout time.Duration
	engine         SpeechSynthesis
	generator      ResponseGenerator
	alertGenerator ResponseGenerator
	alertChannel   AlertChannel
	classifier     Classifier
	sink           NotificationSink

	student prompts.Student
	campus  *prompts.Campus
	now     func() time.Time

	callbacks   controllerCallbacks
	turnCounter metric.Int64Counter
}

func NewController(opts ...ControllerOption) *Controller {
	c := &Controller{
		state:          StateIdle,
		captureTimeout: DefaultCaptureTimeout,
		classifier:     KeywordClassifier{},
		sink:           discardSink{},
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.campus == nil {
		c.campus = prompts.DefaultCampus()
	}
	if c.engine == nil {
		c.engine = silentSynthesis{}
	}
	if c.alertGenerator == nil {
		c.alertGenerator = c.generator
	}

	c.transcripts = NewTranscriptSource(c.capture, c.captureTimeout)
	c.synth = NewSynthesizer(c.engine)
	c.dispatcher = NewAlertDispatcher(c.alertGenerator, c.alertChannel, c.sink, WithAlertClock(c.now))

	var err error
	c.turnCounter, err = meter.Int64Counter("campus.turns",
		metric.WithDescription("Number of finished conversation turns"),
		metric.WithUnit("{turn}"))
	if err != nil {
		logger.Warn("failed to create turn counter", "error", err)
	}

	return c
}

// Submit starts a turn from typed input. The turn continues in the
// background, the returned Turn reports when it is done.
func (c *Controller) Submit(ctx context.Context, input string) (*Turn, error) {
	text := strings.TrimSpace(input)
	if text == "" {
		return nil, ErrEmptyInput
	}

	c.mu.Lock()
	if err := c.checkIdleLocked(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	turn := newTurn(TurnSourceText, text)
	c.active = turn
	history := c.beginProcessingLocked(text)
	c.unlockAndFlush()

	go c.process(ctx, turn, text, history)
	return turn, nil
}

// StartListening opens a listening session. The recognized transcript is
// handled as if it had been submitted. A capture failure ends the turn and
// is reported to the notification sink.
func (c *Controller) StartListening(ctx context.Context) (*Turn, error) {
	c.mu.Lock()
	if err := c.checkIdleLocked(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	turn := newTurn(TurnSourceVoice, "")
	c.active = turn
	c.setStateLocked(StateListening)
	c.setSubtitleLocked(subtitleListening)
	c.unlockAndFlush()

	session, err := c.transcripts.Start(ctx)
	if err != nil {
		c.mu.Lock()
		if c.active == turn {
			c.finishTurnLocked(turn, OutcomeFailed, err)
			c.notifyCaptureLocked(err)
		}
		c.unlockAndFlush()
		return turn, nil
	}

	c.mu.Lock()
	if c.active != turn {
		c.mu.Unlock()
		c.transcripts.end(session, SessionResult{Err: ErrCaptureCancelled})
		return turn, nil
	}
	c.mu.Unlock()

	go c.awaitTranscript(ctx, turn, session)
	return turn, nil
}

func (c *Controller) awaitTranscript(ctx context.Context, turn *Turn, session *Session) {
	result := <-session.Result()

	// Releases the recognizer, the session itself is already finished.
	c.transcripts.end(session, result)

	c.mu.Lock()
	if c.active != turn || c.state != StateListening {
		c.mu.Unlock()
		return
	}
	if result.Err != nil {
		c.finishTurnLocked(turn, OutcomeFailed, result.Err)
		if !errors.Is(result.Err, ErrCaptureCancelled) {
			c.notifyCaptureLocked(result.Err)
		}
		c.unlockAndFlush()
		return
	}

	turn.setInput(result.Transcript)
	c.setSubtitleLocked(result.Transcript)
	history := c.beginProcessingLocked(result.Transcript)
	c.unlockAndFlush()

	c.process(ctx, turn, result.Transcript, history)
}

// StopListening ends the current listening session without a transcript.
// It does nothing unless the controller is listening.
func (c *Controller) StopListening() error {
	c.mu.Lock()
	defer c.unlockAndFlush()

	if c.state != StateListening {
		return nil
	}

	err := c.transcripts.Stop()
	c.finishTurnLocked(c.active, OutcomeStopped, nil)
	return err
}

// StopSpeaking cuts playback short and returns to idle once the audio
// device has been released. It does nothing unless the controller is
// speaking.
func (c *Controller) StopSpeaking() error {
	c.mu.Lock()
	if c.state != StateSpeaking {
		c.mu.Unlock()
		return nil
	}
	turn := c.active
	c.mu.Unlock()

	c.stopPlayback(turn)
	return nil
}

// stopPlayback waits for the engine without holding the controller lock.
// The state stays Speaking until the turn is finished, so no other turn can
// start in between.
func (c *Controller) stopPlayback(turn *Turn) {
	c.synth.Stop()

	c.mu.Lock()
	defer c.unlockAndFlush()
	c.finishTurnLocked(turn, OutcomeStopped, nil)
}

func (c *Controller) State() TurnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// History returns a copy of all messages exchanged so far.
func (c *Controller) History() []llms.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Ready reports whether voice input is available, notifying the sink when
// it is not.
func (c *Controller) Ready(ctx context.Context) bool {
	if c.transcripts.Ready(ctx) {
		return true
	}
	c.sink.Notify(captureNotification(&CaptureError{Reason: CaptureDeviceUnavailable}))
	return false
}

// Close stops any capture or playback and rejects all further input.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true

	if c.state == StateSpeaking {
		turn := c.active
		c.mu.Unlock()
		c.stopPlayback(turn)
		return nil
	}
	defer c.unlockAndFlush()

	var err error
	if c.state == StateListening {
		err = c.transcripts.Stop()
	}
	if c.active != nil {
		c.finishTurnLocked(c.active, OutcomeStopped, nil)
	}
	return err
}

// WaitForAlerts blocks until every emergency alert started so far has been
// delivered or has failed, or until ctx is done.
func (c *Controller) WaitForAlerts(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.alerts.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) process(ctx context.Context, turn *Turn, text string, history []llms.Message) {
	playbackCtx := ctx
	ctx, span := tracer.Start(context.WithoutCancel(ctx), "turn", trace.WithAttributes(
		attribute.String("turn.id", turn.ID),
		attribute.String("turn.source", string(turn.Source)),
	))
	defer span.End()

	classification := c.classify(ctx, text)
	span.SetAttributes(attribute.Stringer("turn.classification", classification))

	var reply string
	var outcome TurnOutcome
	switch classification {
	case ClassificationEmergency:
		c.alerts.Add(1)
		go func() {
			defer c.alerts.Done()
			c.dispatch(ctx, text)
		}()
		reply, outcome = EmergencyConfirmation, OutcomeAlerted

	default:
		var err error
		reply, err = c.generate(ctx, history)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "generation failed")
			logger.Error("failed to generate response", "turn", turn.ID, "error", err)

			c.mu.Lock()
			if c.active == turn {
				c.finishTurnLocked(turn, OutcomeFailed, err)
				c.notifyLocked(generationNotification(err))
			}
			c.unlockAndFlush()
			return
		}
		outcome = OutcomeAnswered
	}

	c.mu.Lock()
	if c.active != turn {
		c.mu.Unlock()
		return
	}
	turn.setReply(reply)
	c.appendLocked(llms.AssistantMessage(reply))
	c.setStateLocked(StateSpeaking)
	c.setSubtitleLocked(reply)
	played := c.synth.Speak(playbackCtx, reply)
	c.unlockAndFlush()

	err := <-played

	c.mu.Lock()
	defer c.unlockAndFlush()
	if c.active != turn {
		return
	}
	switch {
	case err == nil:
		c.finishTurnLocked(turn, outcome, nil)
	case errors.Is(err, ErrPlaybackStopped):
		c.finishTurnLocked(turn, OutcomeStopped, nil)
	default:
		span.RecordError(err)
		logger.Warn("failed to play response", "turn", turn.ID, "error", err)
		c.finishTurnLocked(turn, outcome, err)
		c.notifyLocked(synthesisNotification(err))
	}
}

func (c *Controller) classify(ctx context.Context, text string) Classification {
	classification := ClassificationNormal
	err := panicSafeNamedWorker("classifier", func(ctx context.Context) error {
		classification = c.classifier.Classify(ctx, text)
		return nil
	})(ctx)
	if err != nil {
		logger.Error("classifier failed, treating input as normal", "error", err)
		return ClassificationNormal
	}
	return classification
}

func (c *Controller) dispatch(ctx context.Context, text string) {
	prompt, err := prompts.Alert(c.student, c.campus, c.now())
	if err != nil {
		logger.Error("failed to build alert prompt", "error", err)
	}
	if err := c.dispatcher.Send(ctx, text, prompt); err != nil {
		logger.Warn("alert dispatch reported an error", "error", err)
	}
}

func (c *Controller) generate(ctx context.Context, history []llms.Message) (string, error) {
	systemPrompt, err := prompts.System(c.student, c.campus, c.now())
	if err != nil {
		return "", &GenerationError{Err: err}
	}

	var reply string
	err = panicSafeNamedWorker("generator", func(ctx context.Context) error {
		if c.generator == nil {
			return &llms.ConfigError{Provider: "assistant", Err: ErrNoGenerator}
		}
		var err error
		reply, err = c.generator.Generate(ctx, history, systemPrompt)
		return err
	})(ctx)
	if err != nil {
		return "", &GenerationError{Err: err}
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", &GenerationError{Err: llms.ErrEmptyResponse}
	}
	return reply, nil
}

func (c *Controller) checkIdleLocked() error {
	if c.closed {
		return ErrClosed
	}
	if c.state != StateIdle {
		return ErrTurnInProgress
	}
	return nil
}

// beginProcessingLocked records the user input and returns the history the
// reply should be generated from.
func (c *Controller) beginProcessingLocked(text string) []llms.Message {
	c.appendLocked(llms.UserMessage(text))
	c.setStateLocked(StateProcessing)
	c.setSubtitleLocked(subtitleProcessing)
	return c.snapshotLocked()
}

func (c *Controller) finishTurnLocked(turn *Turn, outcome TurnOutcome, err error) {
	if turn == nil || c.active != turn {
		return
	}
	c.active = nil
	c.setStateLocked(StateIdle)
	c.setSubtitleLocked("")
	c.finishing = append(c.finishing, func() { turn.finish(outcome, err) })

	if c.turnCounter != nil {
		c.turnCounter.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("turn.source", string(turn.Source)),
			attribute.Stringer("turn.outcome", outcome),
		))
	}
	logger.Debug("turn finished", "turn", turn.ID, "outcome", outcome.String(), "error", err)
}

func (c *Controller) appendLocked(message llms.Message) {
	c.history = append(c.history, message)
	if callback := c.callbacks.onMessage; callback != nil {
		c.pending = append(c.pending, func() { callback(message) })
	}
}

func (c *Controller) setStateLocked(state TurnState) {
	if c.state == state {
		return
	}
	c.state = state
	if callback := c.callbacks.onState; callback != nil {
		c.pending = append(c.pending, func() { callback(state) })
	}
}

func (c *Controller) setSubtitleLocked(subtitle string) {
	if callback := c.callbacks.onSubtitle; callback != nil {
		c.pending = append(c.pending, func() { callback(subtitle) })
	}
}

func (c *Controller) notifyLocked(notification Notification) {
	sink := c.sink
	c.pending = append(c.pending, func() { sink.Notify(notification) })
}

func (c *Controller) notifyCaptureLocked(err error) {
	c.notifyLocked(captureNotification(newCaptureError(err)))
}

func (c *Controller) snapshotLocked() []llms.Message {
	var history []llms.Message
	if err := copier.CopyWithOption(&history, &c.history, copier.Option{DeepCopy: true}); err != nil {
		logger.Error("failed to copy history", "error", err)
		return append([]llms.Message(nil), c.history...)
	}
	return history
}

// unlockAndFlush releases the lock and runs the callbacks queued while it
// was held. Finished turns are released last so that waiters observe every
// callback of their turn.
func (c *Controller) unlockAndFlush() {
	pending, finishing := c.pending, c.finishing
	c.pending, c.finishing = nil, nil
	c.mu.Unlock()

	for _, callback := range pending {
		callback()
	}
	for _, finish := range finishing {
		finish()
	}
}

type silentSynthesis struct{}

func (silentSynthesis) Speak(context.Context, string, ...texttospeech.TextToSpeechOption) error {
	return nil
}
