package orchestration

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/koscakluka/ema-campus/core/alerts"
	"github.com/koscakluka/ema-campus/core/llms"
	"github.com/koscakluka/ema-campus/core/speechtotext"
	"github.com/koscakluka/ema-campus/core/texttospeech"
)

var tuesdayMorning = time.Date(2025, time.March, 11, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return tuesdayMorning }

type generateCall struct {
	history []llms.Message
	prompt  string
}

type generatorStub struct {
	reply   string
	err     error
	release chan struct{}
	panics  bool

	mu    sync.Mutex
	calls []generateCall
}

func (g *generatorStub) Generate(ctx context.Context, history []llms.Message, systemPrompt string) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, generateCall{history: slices.Clone(history), prompt: systemPrompt})
	g.mu.Unlock()

	if g.release != nil {
		<-g.release
	}
	if g.panics {
		panic("generator exploded")
	}
	return g.reply, g.err
}

func (g *generatorStub) Calls() []generateCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.calls)
}

type engineStub struct {
	err   error
	block bool

	started   chan string
	cancelled atomic.Int32

	mu    sync.Mutex
	texts []string
}

func newEngineStub() *engineStub {
	return &engineStub{started: make(chan string, 16)}
}

func (e *engineStub) Speak(ctx context.Context, text string, _ ...texttospeech.TextToSpeechOption) error {
	e.mu.Lock()
	e.texts = append(e.texts, text)
	e.mu.Unlock()

	select {
	case e.started <- text:
	default:
	}

	if e.err != nil {
		return e.err
	}
	if e.block {
		<-ctx.Done()
		e.cancelled.Add(1)
		return ctx.Err()
	}
	return nil
}

func (e *engineStub) Texts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.texts)
}

type captureStub struct {
	unavailable bool
	startErr    error

	starts  atomic.Int32
	stops   atomic.Int32
	started chan struct{}

	mu      sync.Mutex
	options speechtotext.TranscriptionOptions
}

func newCaptureStub() *captureStub {
	return &captureStub{started: make(chan struct{}, 16)}
}

func (c *captureStub) Available(context.Context) bool { return !c.unavailable }

func (c *captureStub) Start(_ context.Context, opts ...speechtotext.TranscriptionOption) error {
	c.starts.Add(1)
	if c.startErr != nil {
		return c.startErr
	}

	options := speechtotext.TranscriptionOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	c.mu.Lock()
	c.options = options
	c.mu.Unlock()

	c.started <- struct{}{}
	return nil
}

func (c *captureStub) Stop() error {
	c.stops.Add(1)
	return nil
}

func (c *captureStub) emit(transcript string) {
	c.mu.Lock()
	callback := c.options.TranscriptionCallback
	c.mu.Unlock()
	if callback != nil {
		callback(transcript)
	}
}

func (c *captureStub) fail(err error) {
	c.mu.Lock()
	callback := c.options.ErrorCallback
	c.mu.Unlock()
	if callback != nil {
		callback(err)
	}
}

type channelStub struct {
	err error

	mu     sync.Mutex
	events []alerts.Event
}

func (c *channelStub) Send(_ context.Context, event alerts.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return c.err
}

func (c *channelStub) Events() []alerts.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.events)
}

type sinkStub struct {
	mu            sync.Mutex
	notifications []Notification
}

func (s *sinkStub) Notify(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, n)
}

func (s *sinkStub) Titles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	titles := make([]string, 0, len(s.notifications))
	for _, n := range s.notifications {
		titles = append(titles, n.Title)
	}
	return titles
}

func (s *sinkStub) Notifications() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.notifications)
}

type stateRecorder struct {
	mu     sync.Mutex
	states []TurnState
}

func (r *stateRecorder) record(state TurnState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *stateRecorder) States() []TurnState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.states)
}

func waitFor(t *testing.T, what string, condition func() bool) {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for !condition() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func waitForTurn(t *testing.T, turn *Turn) {
	t.Helper()

	select {
	case <-turn.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for turn %s to finish", turn.ID)
	}
}

func waitForStart(t *testing.T, started <-chan struct{}) {
	t.Helper()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for capture to start")
	}
}

type blockingChannel struct {
	err     error
	entered chan struct{}
	release chan struct{}
}

func (c *blockingChannel) Send(context.Context, alerts.Event) error {
	c.entered <- struct{}{}
	<-c.release
	return c.err
}

// stubbornEngine keeps the audio device for a while after being cancelled.
type stubbornEngine struct {
	cancelled chan struct{}
	release   chan struct{}
}

func (e *stubbornEngine) Speak(ctx context.Context, _ string, _ ...texttospeech.TextToSpeechOption) error {
	<-ctx.Done()
	close(e.cancelled)
	<-e.release
	return ctx.Err()
}

func waitForAlerts(t *testing.T, c *Controller) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.WaitForAlerts(ctx); err != nil {
		t.Fatalf("timed out waiting for alerts: %v", err)
	}
}
