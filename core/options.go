package orchestration

import (
	"time"

	"github.com/koscakluka/ema-campus/core/llms"
	"github.com/koscakluka/ema-campus/core/prompts"
)

type ControllerOption func(*Controller)

// WithSpeechCapture sets the recognizer used by StartListening. Without one
// every listening attempt fails with CaptureDeviceUnavailable.
func WithSpeechCapture(capture SpeechCapture) ControllerOption {
	return func(c *Controller) {
		c.capture = capture
	}
}

func WithCaptureTimeout(timeout time.Duration) ControllerOption {
	return func(c *Controller) {
		c.captureTimeout = timeout
	}
}

func WithResponseGenerator(generator ResponseGenerator) ControllerOption {
	return func(c *Controller) {
		c.generator = generator
	}
}

// WithSpeechSynthesis sets the engine replies are spoken with. Without one
// replies are only shown as subtitles.
func WithSpeechSynthesis(engine SpeechSynthesis) ControllerOption {
	return func(c *Controller) {
		c.engine = engine
	}
}

func WithAlertChannel(channel AlertChannel) ControllerOption {
	return func(c *Controller) {
		c.alertChannel = channel
	}
}

// WithAlertGenerator sets a separate generator for alert summaries. The
// response generator is used when none is set.
func WithAlertGenerator(generator ResponseGenerator) ControllerOption {
	return func(c *Controller) {
		c.alertGenerator = generator
	}
}

func WithNotificationSink(sink NotificationSink) ControllerOption {
	return func(c *Controller) {
		c.sink = sink
	}
}

func WithClassifier(classifier Classifier) ControllerOption {
	return func(c *Controller) {
		c.classifier = classifier
	}
}

func WithStudent(student prompts.Student) ControllerOption {
	return func(c *Controller) {
		c.student = student
	}
}

func WithCampus(campus *prompts.Campus) ControllerOption {
	return func(c *Controller) {
		c.campus = campus
	}
}

// WithClock sets the clock used for the weekday in prompts and for alert
// timestamps.
func WithClock(now func() time.Time) ControllerOption {
	return func(c *Controller) {
		c.now = now
	}
}

func WithStateCallback(callback func(TurnState)) ControllerOption {
	return func(c *Controller) {
		c.callbacks.onState = callback
	}
}

func WithSubtitleCallback(callback func(string)) ControllerOption {
	return func(c *Controller) {
		c.callbacks.onSubtitle = callback
	}
}

func WithMessageCallback(callback func(llms.Message)) ControllerOption {
	return func(c *Controller) {
		c.callbacks.onMessage = callback
	}
}
