package deepgram

import (
	"context"
	"fmt"
	"sync"

	"github.com/koscakluka/ema-campus/core/audio"
	"github.com/koscakluka/ema-campus/core/speechtotext"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const DefaultListenURL = "wss://api.deepgram.com/v1/listen"

// AudioInput is the microphone feeding the recognizer.
type AudioInput interface {
	EncodingInfo() audio.EncodingInfo
	CaptureAvailable() bool
	StartCapture(ctx context.Context, onAudio func(audio []byte)) error
	StopCapture() error
}

// Recognizer streams microphone audio to deepgram and reports transcripts
// through the callbacks passed to Start. Only one stream is open at a time.
type Recognizer struct {
	apiKey    string
	listenURL string
	model     string
	language  string
	input     AudioInput

	stream *stream
	mu     sync.Mutex
}

type RecognizerOption func(*Recognizer)

func NewRecognizer(apiKey string, input AudioInput, opts ...RecognizerOption) *Recognizer {
	r := &Recognizer{
		apiKey:    apiKey,
		listenURL: DefaultListenURL,
		model:     "nova-3",
		language:  "en-US",
		input:     input,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func WithListenURL(listenURL string) RecognizerOption {
	return func(r *Recognizer) {
		if listenURL != "" {
			r.listenURL = listenURL
		}
	}
}

func WithModel(model string) RecognizerOption {
	return func(r *Recognizer) {
		if model != "" {
			r.model = model
		}
	}
}

func WithLanguage(language string) RecognizerOption {
	return func(r *Recognizer) {
		if language != "" {
			r.language = language
		}
	}
}

// Available reports whether a transcription could be started, it does not
// contact deepgram.
func (r *Recognizer) Available(_ context.Context) bool {
	if r.apiKey == "" {
		return false
	}
	return r.input == nil || r.input.CaptureAvailable()
}

func (r *Recognizer) Start(ctx context.Context, opts ...speechtotext.TranscriptionOption) error {
	ctx, span := tracer.Start(ctx, "start transcription")
	defer span.End()

	if r.apiKey == "" {
		err := fmt.Errorf("%w: deepgram api key not configured", speechtotext.ErrDeviceUnavailable)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	options := speechtotext.TranscriptionOptions{EncodingInfo: audio.GetDefaultEncodingInfo()}
	if r.input != nil {
		options.EncodingInfo = r.input.EncodingInfo()
	}
	for _, opt := range opts {
		opt(&options)
	}

	encoding, err := convertEncoding(options.EncodingInfo)
	if err != nil {
		err = fmt.Errorf("invalid encoding: %w", err)
		span.RecordError(err)
		return err
	}
	span.SetAttributes(
		attribute.String("request.model", r.model),
		attribute.Int("request.sample_rate", encoding.SampleRate),
	)

	callbacks, wsConfig := newCallbackConfig(options)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stream != nil {
		r.stopLocked()
	}

	conn, err := r.connectWebsocket(ctx, *encoding, wsConfig)
	if err != nil {
		err = fmt.Errorf("failed to open websocket: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := newStream(conn, callbacks, cancel)
	go s.readAndProcessMessages(streamCtx)
	go s.generateSilence(streamCtx, options.EncodingInfo)

	if r.input != nil {
		if err := r.input.StartCapture(streamCtx, func(audio []byte) {
			if err := s.sendAudio(audio); err != nil {
				logger.Debug("dropped captured audio", "error", err)
			}
		}); err != nil {
			s.close()
			err = fmt.Errorf("failed to start audio capture: %w", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}

	r.stream = s
	return nil
}

// SendAudio forwards audio captured outside of the configured input.
func (r *Recognizer) SendAudio(audio []byte) error {
	r.mu.Lock()
	s := r.stream
	r.mu.Unlock()
	if s == nil {
		return fmt.Errorf("transcription not started")
	}
	return s.sendAudio(audio)
}

// Stop releases the microphone and closes the stream. No callbacks are made
// once Stop returns. Stopping an idle recognizer is a no-op.
func (r *Recognizer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopLocked()
}

func (r *Recognizer) stopLocked() error {
	if r.stream == nil {
		return nil
	}

	var err error
	if r.input != nil {
		if stopErr := r.input.StopCapture(); stopErr != nil {
			err = fmt.Errorf("failed to stop audio capture: %w", stopErr)
		}
	}
	r.stream.close()
	r.stream = nil
	return err
}
