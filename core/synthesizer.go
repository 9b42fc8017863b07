package orchestration

import (
	"context"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/koscakluka/ema-campus/core/texttospeech"
)

// SpeechSynthesis speaks text and returns once playback has finished or ctx
// has been cancelled. After a cancelled call returns the audio device must
// be free for the next call.
type SpeechSynthesis interface {
	Speak(ctx context.Context, text string, opts ...texttospeech.TextToSpeechOption) error
}

type playback struct {
	cancel context.CancelFunc
	done   chan struct{}
	result chan error
	once   sync.Once
}

func (p *playback) complete(err error) {
	p.once.Do(func() { p.result <- err })
}

// Synthesizer keeps at most one playback running.
type Synthesizer struct {
	engine SpeechSynthesis

	mu     sync.Mutex
	active *playback
}

func NewSynthesizer(engine SpeechSynthesis) *Synthesizer {
	return &Synthesizer{engine: engine}
}

// Speak stops whatever is playing and starts speaking text. The returned
// channel receives exactly one value: nil when playback ends naturally,
// ErrPlaybackStopped when it is stopped or superseded, or a
// *SynthesisError.
func (s *Synthesizer) Speak(ctx context.Context, text string) <-chan error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	p := &playback{
		done:   make(chan struct{}),
		result: make(chan error, 1),
	}
	if strings.TrimSpace(text) == "" {
		p.complete(nil)
		close(p.done)
		return p.result
	}

	var playbackCtx context.Context
	playbackCtx, p.cancel = context.WithCancel(ctx)
	s.active = p

	go s.play(playbackCtx, p, text)

	return p.result
}

func (s *Synthesizer) play(ctx context.Context, p *playback, text string) {
	ctx, span := tracer.Start(ctx, "synthesize")
	span.SetAttributes(attribute.Int("text.length", len(text)))
	defer span.End()

	err := panicSafeNamedWorker("synthesis", func(ctx context.Context) error {
		return s.engine.Speak(ctx, text)
	})(ctx)

	switch {
	case ctx.Err() != nil:
		p.complete(ErrPlaybackStopped)
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "synthesis failed")
		p.complete(&SynthesisError{Err: err})
	default:
		p.complete(nil)
	}
	p.cancel()
	close(p.done)

	s.mu.Lock()
	if s.active == p {
		s.active = nil
	}
	s.mu.Unlock()
}

// Stop cancels the current playback and returns once the engine has let go
// of the audio device. It is a no-op when nothing is playing.
func (s *Synthesizer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Synthesizer) stopLocked() {
	p := s.active
	if p == nil {
		return
	}
	s.active = nil
	p.cancel()
	<-p.done
	p.complete(ErrPlaybackStopped)
}

func (s *Synthesizer) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}
