package orchestration

import (
	"errors"
	"fmt"

	"github.com/koscakluka/ema-campus/core/speechtotext"
)

var (
	ErrEmptyInput       = errors.New("input is empty")
	ErrTurnInProgress   = errors.New("another turn is in progress")
	ErrClosed           = errors.New("controller closed")
	ErrCaptureCancelled = errors.New("capture cancelled")
	ErrPlaybackStopped  = errors.New("playback stopped")
	ErrNoSpeech         = speechtotext.ErrNoSpeech
	ErrNoGenerator      = errors.New("no response generator configured")
	ErrNoAlertChannel   = errors.New("no alert channel configured")
)

type CaptureReason string

const (
	CaptureNoSpeech          CaptureReason = "no speech"
	CapturePermissionDenied  CaptureReason = "permission denied"
	CaptureDeviceUnavailable CaptureReason = "device unavailable"
	CaptureFailed            CaptureReason = "failed"
)

// CaptureError ends a listening session without a transcript.
type CaptureError struct {
	Reason CaptureReason
	Err    error
}

func newCaptureError(err error) *CaptureError {
	var captureErr *CaptureError
	if errors.As(err, &captureErr) {
		return captureErr
	}

	reason := CaptureFailed
	switch {
	case errors.Is(err, speechtotext.ErrNoSpeech):
		reason = CaptureNoSpeech
	case errors.Is(err, speechtotext.ErrPermissionDenied):
		reason = CapturePermissionDenied
	case errors.Is(err, speechtotext.ErrDeviceUnavailable):
		reason = CaptureDeviceUnavailable
	}
	return &CaptureError{Reason: reason, Err: err}
}

func (e *CaptureError) Error() string {
	if e.Err == nil {
		return "voice recognition error: " + string(e.Reason)
	}
	return fmt.Sprintf("voice recognition error: %s: %v", e.Reason, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// GenerationError aborts a turn before anything is spoken.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string { return "failed to generate response: " + e.Err.Error() }
func (e *GenerationError) Unwrap() error { return e.Err }

// SynthesisError ends a turn whose reply could not be played.
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string { return "failed to play response: " + e.Err.Error() }
func (e *SynthesisError) Unwrap() error { return e.Err }

type DispatchStage string

const (
	DispatchStageSummary DispatchStage = "summary"
	DispatchStageDeliver DispatchStage = "deliver"
)

// DispatchError is reported when an alert could not be summarized or
// delivered. It never changes what is spoken to the user.
type DispatchError struct {
	Stage DispatchStage
	Err   error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("alert %s failed: %v", e.Stage, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }
