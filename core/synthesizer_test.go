package orchestration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/koscakluka/ema-campus/core/texttospeech"
)

func receive(t *testing.T, ch <-chan error) error {
	t.Helper()

	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for playback result")
		return nil
	}
}

func expectNoMore(t *testing.T, ch <-chan error) {
	t.Helper()

	select {
	case err := <-ch:
		t.Fatalf("expected a single result, got another: %v", err)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSpeakCompletesOnceOnNaturalEnd(t *testing.T) {
	engine := newEngineStub()
	s := NewSynthesizer(engine)

	done := s.Speak(context.Background(), "hello")
	if err := receive(t, done); err != nil {
		t.Fatalf("expected nil result, got %v", err)
	}
	expectNoMore(t, done)

	if s.Speaking() {
		t.Fatalf("expected synthesizer to be idle")
	}
}

func TestStopCompletesWithPlaybackStopped(t *testing.T) {
	engine := newEngineStub()
	engine.block = true
	s := NewSynthesizer(engine)

	done := s.Speak(context.Background(), "a long story")
	<-engine.started
	if !s.Speaking() {
		t.Fatalf("expected synthesizer to be speaking")
	}

	s.Stop()
	if got := engine.cancelled.Load(); got != 1 {
		t.Fatalf("expected engine to be released before Stop returned, got %d", got)
	}
	if err := receive(t, done); !errors.Is(err, ErrPlaybackStopped) {
		t.Fatalf("expected ErrPlaybackStopped, got %v", err)
	}
	expectNoMore(t, done)

	s.Stop()
	s.Stop()
}

func TestStopReportsResultOnlyAfterEngineReleases(t *testing.T) {
	engine := &stubbornEngine{cancelled: make(chan struct{}), release: make(chan struct{})}
	s := NewSynthesizer(engine)

	done := s.Speak(context.Background(), "a long story")
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		s.Stop()
	}()
	<-engine.cancelled

	select {
	case err := <-done:
		t.Fatalf("expected no result while the engine holds the device, got %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	close(engine.release)
	if err := receive(t, done); !errors.Is(err, ErrPlaybackStopped) {
		t.Fatalf("expected ErrPlaybackStopped, got %v", err)
	}
	<-stopped
}

func TestSpeakSupersedesCurrentPlayback(t *testing.T) {
	engine := newEngineStub()
	engine.block = true
	s := NewSynthesizer(engine)

	first := s.Speak(context.Background(), "first")
	<-engine.started
	second := s.Speak(context.Background(), "second")
	<-engine.started

	if err := receive(t, first); !errors.Is(err, ErrPlaybackStopped) {
		t.Fatalf("expected first playback to be stopped, got %v", err)
	}

	s.Stop()
	if err := receive(t, second); !errors.Is(err, ErrPlaybackStopped) {
		t.Fatalf("expected second playback to be stopped, got %v", err)
	}
	if got := engine.cancelled.Load(); got != 2 {
		t.Fatalf("expected both playbacks to be cancelled, got %d", got)
	}
}

func TestSpeakReportsSynthesisError(t *testing.T) {
	engine := newEngineStub()
	engine.err = errors.New("websocket closed")
	s := NewSynthesizer(engine)

	err := receive(t, s.Speak(context.Background(), "hello"))
	var synthesisErr *SynthesisError
	if !errors.As(err, &synthesisErr) || !errors.Is(err, engine.err) {
		t.Fatalf("expected synthesis error wrapping engine error, got %v", err)
	}
}

func TestSpeakRecoversEnginePanic(t *testing.T) {
	s := NewSynthesizer(panickingEngine{})

	err := receive(t, s.Speak(context.Background(), "hello"))
	var synthesisErr *SynthesisError
	if !errors.As(err, &synthesisErr) {
		t.Fatalf("expected synthesis error, got %v", err)
	}
}

func TestSpeakEmptyTextCompletesImmediately(t *testing.T) {
	engine := newEngineStub()
	s := NewSynthesizer(engine)

	if err := receive(t, s.Speak(context.Background(), "  ")); err != nil {
		t.Fatalf("expected nil result, got %v", err)
	}
	if texts := engine.Texts(); len(texts) != 0 {
		t.Fatalf("expected engine not to be called, got %v", texts)
	}
}

func TestSpeakStopsWhenContextCancelled(t *testing.T) {
	engine := newEngineStub()
	engine.block = true
	s := NewSynthesizer(engine)

	ctx, cancel := context.WithCancel(context.Background())
	done := s.Speak(ctx, "hello")
	<-engine.started
	cancel()

	if err := receive(t, done); !errors.Is(err, ErrPlaybackStopped) {
		t.Fatalf("expected ErrPlaybackStopped, got %v", err)
	}
	waitFor(t, "synthesizer to go idle", func() bool { return !s.Speaking() })
}

type panickingEngine struct{}

func (panickingEngine) Speak(context.Context, string, ...texttospeech.TextToSpeechOption) error {
	panic("speaker exploded")
}
