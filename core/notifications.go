package orchestration

import (
	"errors"

	"github.com/koscakluka/ema-campus/core/llms"
)

type NotificationLevel string

const (
	NotificationInfo    NotificationLevel = "info"
	NotificationWarning NotificationLevel = "warning"
	NotificationError   NotificationLevel = "error"
)

// Notification is a user-facing notice. Title and Message are meant to be
// shown as-is, Err carries the cause for logging.
type Notification struct {
	Level   NotificationLevel
	Title   string
	Message string
	Err     error
}

type NotificationSink interface {
	Notify(Notification)
}

type NotificationSinkFunc func(Notification)

func (f NotificationSinkFunc) Notify(n Notification) { f(n) }

type discardSink struct{}

func (discardSink) Notify(Notification) {}

func captureNotification(err *CaptureError) Notification {
	n := Notification{
		Level:   NotificationError,
		Title:   "Voice Recognition Error",
		Message: "Could not capture voice input. Please try again.",
		Err:     err,
	}
	switch err.Reason {
	case CaptureNoSpeech:
		n.Message = "No speech was detected. Please try again."
	case CapturePermissionDenied:
		n.Message = "Microphone access was denied."
	case CaptureDeviceUnavailable:
		n.Title = "Voice Recognition Unavailable"
		n.Message = "No microphone or speech recognition service is available. Please type instead."
	}
	return n
}

func generationNotification(err error) Notification {
	if llms.IsConfigError(err) {
		return Notification{
			Level:   NotificationError,
			Title:   "Configuration Error",
			Message: "The assistant is not configured. Please set the API key.",
			Err:     err,
		}
	}
	return Notification{
		Level:   NotificationError,
		Title:   "Error",
		Message: "Failed to get response. Please try again.",
		Err:     err,
	}
}

func synthesisNotification(err error) Notification {
	return Notification{
		Level:   NotificationWarning,
		Title:   "Speech Error",
		Message: "The response could not be played.",
		Err:     err,
	}
}

func dispatchNotification(err error) Notification {
	var dispatchErr *DispatchError
	if errors.As(err, &dispatchErr) && dispatchErr.Stage == DispatchStageSummary {
		return Notification{
			Level:   NotificationWarning,
			Title:   "Alert Summary Failed",
			Message: "The emergency message was forwarded without a summary.",
			Err:     err,
		}
	}
	return Notification{
		Level:   NotificationError,
		Title:   "Alert Failed",
		Message: "Failed to send the emergency alert.",
		Err:     err,
	}
}
