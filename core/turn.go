package orchestration

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type TurnSource string

const (
	TurnSourceText  TurnSource = "text"
	TurnSourceVoice TurnSource = "voice"
)

type TurnOutcome int

const (
	OutcomePending TurnOutcome = iota
	// OutcomeAnswered means the reply was generated and played to the end.
	OutcomeAnswered
	// OutcomeAlerted means the input was handled as an emergency and the
	// confirmation was played.
	OutcomeAlerted
	// OutcomeStopped means the turn was stopped by StopListening,
	// StopSpeaking or Close.
	OutcomeStopped
	OutcomeFailed
)

func (o TurnOutcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeAnswered:
		return "answered"
	case OutcomeAlerted:
		return "alerted"
	case OutcomeStopped:
		return "stopped"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// Turn is a handle on a single exchange with the assistant, from input to
// the end of playback.
type Turn struct {
	ID        string
	Source    TurnSource
	StartedAt time.Time

	done chan struct{}

	mu      sync.Mutex
	input   string
	reply   string
	outcome TurnOutcome
	err     error
}

func newTurn(source TurnSource, input string) *Turn {
	return &Turn{
		ID:        uuid.NewString(),
		Source:    source,
		StartedAt: time.Now(),
		input:     input,
		done:      make(chan struct{}),
	}
}

// Done is closed once the controller is back to idle for this turn.
func (t *Turn) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the turn is done and returns its error, if any.
func (t *Turn) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.done:
		return t.Err()
	}
}

func (t *Turn) Outcome() TurnOutcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outcome
}

func (t *Turn) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Input is the typed text or the recognized transcript.
func (t *Turn) Input() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.input
}

// Reply is the text that was spoken back, empty until the turn reaches the
// speaking state.
func (t *Turn) Reply() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reply
}

func (t *Turn) setInput(input string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.input = input
}

func (t *Turn) setReply(reply string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reply = reply
}

func (t *Turn) finish(outcome TurnOutcome, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.outcome != OutcomePending {
		return
	}
	t.outcome = outcome
	t.err = err
	close(t.done)
}
