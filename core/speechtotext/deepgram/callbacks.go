package deepgram

import "github.com/koscakluka/ema-campus/core/speechtotext"

type callbackConfig struct {
	partialInterimTranscriptionCallback func(string)
	interimTranscriptionCallback        func(string)
	partialTranscriptionCallback        func(string)
	transcriptionCallback               func(string)
	startSpeechCallback                 func()
	endSpeechCallback                   func()
	errorCallback                       func(error)
}

type websocketConfig struct {
	shouldDetectSpeechStart            bool
	shouldEnhanceSpeechEndingDetection bool
	shouldRequestInterimResults        bool
}

// newCallbackConfig replaces unset callbacks with no-ops and derives which
// optional deepgram features are worth requesting.
func newCallbackConfig(options speechtotext.TranscriptionOptions) (callbackConfig, websocketConfig) {
	callbacks := callbackConfig{
		partialInterimTranscriptionCallback: noopTranscript,
		interimTranscriptionCallback:        noopTranscript,
		partialTranscriptionCallback:        noopTranscript,
		transcriptionCallback:               noopTranscript,
		startSpeechCallback:                 func() {},
		endSpeechCallback:                   func() {},
		errorCallback:                       func(error) {},
	}
	if options.PartialInterimTranscriptionCallback != nil {
		callbacks.partialInterimTranscriptionCallback = options.PartialInterimTranscriptionCallback
	}
	if options.InterimTranscriptionCallback != nil {
		callbacks.interimTranscriptionCallback = options.InterimTranscriptionCallback
	}
	if options.PartialTranscriptionCallback != nil {
		callbacks.partialTranscriptionCallback = options.PartialTranscriptionCallback
	}
	if options.TranscriptionCallback != nil {
		callbacks.transcriptionCallback = options.TranscriptionCallback
	}
	if options.SpeechStartedCallback != nil {
		callbacks.startSpeechCallback = options.SpeechStartedCallback
	}
	if options.SpeechEndedCallback != nil {
		callbacks.endSpeechCallback = options.SpeechEndedCallback
	}
	if options.ErrorCallback != nil {
		callbacks.errorCallback = options.ErrorCallback
	}

	wsConfig := websocketConfig{
		shouldDetectSpeechStart: options.SpeechStartedCallback != nil,
		shouldEnhanceSpeechEndingDetection: options.TranscriptionCallback != nil ||
			options.SpeechEndedCallback != nil,
		shouldRequestInterimResults: options.InterimTranscriptionCallback != nil ||
			options.PartialInterimTranscriptionCallback != nil,
	}

	return callbacks, wsConfig
}

func noopTranscript(string) {}
