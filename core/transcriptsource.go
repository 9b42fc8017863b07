package orchestration

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/koscakluka/ema-campus/core/speechtotext"
)

const DefaultCaptureTimeout = 10 * time.Second

// SpeechCapture is a streaming recognizer. Start begins capturing and
// reports finalized utterances through the transcription callback until
// Stop is called.
type SpeechCapture interface {
	Available(ctx context.Context) bool
	Start(ctx context.Context, opts ...speechtotext.TranscriptionOption) error
	Stop() error
}

type SessionResult struct {
	Transcript string
	Err        error
}

// Session is a single listening attempt. It ends with exactly one result.
type Session struct {
	ID        string
	StartedAt time.Time
	Deadline  time.Time

	result   chan SessionResult
	onFinish func(SessionResult)

	mu       sync.Mutex
	finished bool
	timer    *time.Timer
	release  chan struct{}
}

func newSession(now time.Time, timeout time.Duration) *Session {
	return &Session{
		ID:        uuid.NewString(),
		StartedAt: now,
		Deadline:  now.Add(timeout),
		result:    make(chan SessionResult, 1),
	}
}

// Result delivers the session's result once and is then never written to
// again.
func (s *Session) Result() <-chan SessionResult {
	return s.result
}

func (s *Session) finish(result SessionResult) bool {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return false
	}
	s.finished = true
	timer, release := s.timer, s.release
	s.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if release != nil {
		close(release)
	}
	if s.onFinish != nil {
		s.onFinish(result)
	}
	s.result <- result
	return true
}

// arm attaches the timeout and the context hook, releasing them right away
// if the session already ended.
func (s *Session) arm(timer *time.Timer, release chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		timer.Stop()
		close(release)
		return
	}
	s.timer, s.release = timer, release
}

// TranscriptSource turns a continuous recognizer into one-shot listening
// sessions: one transcript or one error per Start.
type TranscriptSource struct {
	capture SpeechCapture
	timeout time.Duration

	mu      sync.Mutex
	session *Session
}

func NewTranscriptSource(capture SpeechCapture, timeout time.Duration) *TranscriptSource {
	if timeout <= 0 {
		timeout = DefaultCaptureTimeout
	}
	return &TranscriptSource{capture: capture, timeout: timeout}
}

func (s *TranscriptSource) Ready(ctx context.Context) bool {
	return s.capture != nil && s.capture.Available(ctx)
}

func (s *TranscriptSource) Start(ctx context.Context) (*Session, error) {
	if !s.Ready(ctx) {
		return nil, &CaptureError{Reason: CaptureDeviceUnavailable, Err: speechtotext.ErrDeviceUnavailable}
	}

	session := newSession(time.Now(), s.timeout)
	_, span := tracer.Start(ctx, "capture session", trace.WithAttributes(
		attribute.String("session.id", session.ID),
		attribute.Stringer("session.timeout", s.timeout),
	))
	session.onFinish = func(result SessionResult) {
		if result.Err != nil {
			span.RecordError(result.Err)
			span.SetStatus(codes.Error, "capture failed")
		} else {
			span.SetAttributes(attribute.Int("transcript.length", len(result.Transcript)))
		}
		span.End()
	}

	s.mu.Lock()
	if err := s.stopLocked(); err != nil {
		logger.Warn("failed to stop previous capture", "error", err)
	}
	s.session = session
	s.mu.Unlock()

	err := s.capture.Start(ctx,
		speechtotext.WithTranscriptionCallback(func(transcript string) {
			transcript = strings.TrimSpace(transcript)
			if transcript == "" {
				return
			}
			session.finish(SessionResult{Transcript: transcript})
		}),
		speechtotext.WithErrorCallback(func(err error) {
			session.finish(SessionResult{Err: newCaptureError(err)})
		}),
	)
	if err != nil {
		captureErr := newCaptureError(err)
		s.mu.Lock()
		if s.session == session {
			s.session = nil
		}
		s.mu.Unlock()
		session.finish(SessionResult{Err: captureErr})
		return nil, captureErr
	}

	s.mu.Lock()
	if s.session != session {
		// Stopped while the recognizer was still connecting.
		if s.session == nil {
			if err := s.capture.Stop(); err != nil {
				logger.Warn("failed to stop capture", "error", err)
			}
		}
		s.mu.Unlock()
		return session, nil
	}
	s.mu.Unlock()

	session.arm(
		time.AfterFunc(s.timeout, func() { s.expire(session) }),
		withContextCancelHook(ctx, func() { s.end(session, SessionResult{Err: ErrCaptureCancelled}) }),
	)

	return session, nil
}

// Stop ends the current session, if any, and stops the recognizer. It is
// safe to call at any time.
func (s *TranscriptSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *TranscriptSource) stopLocked() error {
	session := s.session
	if session == nil {
		return nil
	}
	s.session = nil
	session.finish(SessionResult{Err: ErrCaptureCancelled})
	return s.capture.Stop()
}

func (s *TranscriptSource) expire(session *Session) {
	s.end(session, SessionResult{Err: &CaptureError{Reason: CaptureNoSpeech, Err: speechtotext.ErrNoSpeech}})
}

func (s *TranscriptSource) end(session *Session, result SessionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != session {
		return
	}
	s.session = nil
	session.finish(result)
	if err := s.capture.Stop(); err != nil {
		logger.Warn("failed to stop capture", "session", session.ID, "error", err)
	}
}
