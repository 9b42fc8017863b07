package deepgram

import (
	"context"
	"errors"
	"fmt"

	"github.com/koscakluka/ema-campus/core/audio"
	"github.com/koscakluka/ema-campus/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const DefaultSpeakURL = "wss://api.deepgram.com/v1/speak"

var ErrMissingAPIKey = errors.New("deepgram api key not configured")

// AudioOutput is the speaker generated speech is played on.
type AudioOutput interface {
	EncodingInfo() audio.EncodingInfo
	SendAudio(audio []byte) error
	ClearBuffer()
	Mark(name string, callback func(string)) error
}

type Speaker struct {
	apiKey   string
	speakURL string
	voice    Voice
	output   AudioOutput
}

type SpeakerOption func(*Speaker)

func NewSpeaker(apiKey string, output AudioOutput, opts ...SpeakerOption) (*Speaker, error) {
	speaker := &Speaker{
		apiKey:   apiKey,
		speakURL: DefaultSpeakURL,
		voice:    defaultVoice,
		output:   output,
	}
	for _, opt := range opts {
		opt(speaker)
	}

	if !IsAvailableVoice(speaker.voice) {
		return nil, fmt.Errorf("invalid voice %q", speaker.voice)
	}
	return speaker, nil
}

func WithVoice(voice Voice) SpeakerOption {
	return func(s *Speaker) {
		if voice != "" {
			s.voice = voice
		}
	}
}

func WithSpeakURL(speakURL string) SpeakerOption {
	return func(s *Speaker) {
		if speakURL != "" {
			s.speakURL = speakURL
		}
	}
}

// Speak synthesizes text and plays it on the output, returning once the
// audio has been played. When ctx is cancelled generation is cancelled and
// the queued audio dropped before Speak returns.
func (s *Speaker) Speak(ctx context.Context, text string, opts ...texttospeech.TextToSpeechOption) error {
	ctx, span := tracer.Start(ctx, "speak")
	defer span.End()
	span.SetAttributes(
		attribute.String("request.voice", string(s.voice)),
		attribute.Int("request.text_length", len(text)),
	)

	if s.output == nil {
		err := fmt.Errorf("no audio output configured")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	ended := make(chan struct{})
	failed := make(chan error, 1)
	options := append([]texttospeech.TextToSpeechOption{
		texttospeech.WithEncodingInfo(s.output.EncodingInfo()),
	}, opts...)
	options = append(options,
		texttospeech.WithSpeechAudioCallback(func(audio []byte) {
			if err := s.output.SendAudio(audio); err != nil {
				select {
				case failed <- fmt.Errorf("failed to play audio: %w", err):
				default:
				}
			}
		}),
		texttospeech.WithSpeechEndedCallback(func(texttospeech.SpeechEndedReport) { close(ended) }),
		texttospeech.WithErrorCallback(func(err error) {
			select {
			case failed <- err:
			default:
			}
		}),
	)

	generator, err := s.NewSpeechGenerator(ctx, options...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := generator.SendText(text); err != nil {
		_ = generator.Close()
		span.RecordError(err)
		return fmt.Errorf("failed to send text: %w", err)
	}
	if err := generator.EndOfText(); err != nil {
		_ = generator.Close()
		span.RecordError(err)
		return fmt.Errorf("failed to end text: %w", err)
	}

	select {
	case <-ended:
	case err := <-failed:
		_ = generator.Close()
		s.output.ClearBuffer()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	case <-ctx.Done():
		_ = generator.Cancel()
		s.output.ClearBuffer()
		span.AddEvent("cancelled during generation")
		return ctx.Err()
	}

	played := make(chan struct{})
	if err := s.output.Mark("speech ended", func(string) { close(played) }); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to mark end of speech: %w", err)
	}

	select {
	case <-played:
		return nil
	case err := <-failed:
		s.output.ClearBuffer()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	case <-ctx.Done():
		s.output.ClearBuffer()
		span.AddEvent("cancelled during playback")
		return ctx.Err()
	}
}
