package main

import (
	"context"
	"fmt"
	"log/slog"

	orchestration "github.com/koscakluka/ema-campus/core"
	"github.com/koscakluka/ema-campus/core/alerts"
	"github.com/koscakluka/ema-campus/core/audio"
	"github.com/koscakluka/ema-campus/core/audio/miniaudio"
	"github.com/koscakluka/ema-campus/core/audio/portaudio"
	"github.com/koscakluka/ema-campus/core/classifiers/llm"
	"github.com/koscakluka/ema-campus/core/llms/gemini"
	sttdeepgram "github.com/koscakluka/ema-campus/core/speechtotext/deepgram"
	ttsdeepgram "github.com/koscakluka/ema-campus/core/texttospeech/deepgram"
	"github.com/koscakluka/ema-campus/internal/config"
)

const portaudioBufferSize = 1024

// audioDevice is what both audio backends provide: microphone capture for
// the recognizer, buffered playback for the speaker and raw playback for the
// alarm.
type audioDevice interface {
	EncodingInfo() audio.EncodingInfo
	CaptureAvailable() bool
	StartCapture(ctx context.Context, onAudio func(audio []byte)) error
	StopCapture() error
	SendAudio(audio []byte) error
	ClearBuffer()
	Mark(name string, callback func(string)) error
	Play(ctx context.Context, pcm []byte) error
	Close()
}

func newAudioDevice(cfg config.AudioConfig, logger *slog.Logger, withCapture bool) (audioDevice, error) {
	switch cfg.Backend {
	case config.AudioBackendPortaudio:
		client, err := portaudio.NewClient(portaudioBufferSize)
		if err != nil {
			return nil, fmt.Errorf("failed to open portaudio: %w", err)
		}
		return client, nil
	default:
		opts := []miniaudio.ClientOption{
			miniaudio.WithDeviceLogger(func(message string) {
				logger.Debug("miniaudio", "message", message)
			}),
		}
		if !withCapture {
			opts = append(opts, miniaudio.WithoutCapture())
		}
		client, err := miniaudio.NewClient(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to open miniaudio: %w", err)
		}
		return client, nil
	}
}

func newGemini(cfg config.GeminiConfig) *gemini.Client {
	return gemini.NewClient(cfg.APIKey,
		gemini.WithModel(cfg.Model),
		gemini.WithBaseURL(cfg.BaseURL),
	)
}

func newClassifier(cfg *config.Config, client *gemini.Client) orchestration.Classifier {
	if cfg.Classifier == config.ClassifierLLM {
		return llm.NewClassifier(client)
	}
	return orchestration.KeywordClassifier{}
}

// controllerOptions builds the collaborators shared by every command that
// runs turns. A nil device leaves the controller without voice.
func controllerOptions(cfg *config.Config, device audioDevice) ([]orchestration.ControllerOption, error) {
	campus, err := cfg.Campus.Load()
	if err != nil {
		return nil, err
	}

	client := newGemini(cfg.Gemini)
	opts := []orchestration.ControllerOption{
		orchestration.WithResponseGenerator(client),
		orchestration.WithAlertGenerator(client),
		orchestration.WithAlertChannel(alerts.NewClient(cfg.SOS.URL)),
		orchestration.WithClassifier(newClassifier(cfg, client)),
		orchestration.WithStudent(cfg.Student.Profile()),
		orchestration.WithCampus(campus),
		orchestration.WithCaptureTimeout(cfg.Audio.CaptureTimeout),
	}

	if device != nil {
		speaker, err := ttsdeepgram.NewSpeaker(cfg.Deepgram.APIKey, device,
			ttsdeepgram.WithVoice(ttsdeepgram.Voice(cfg.Deepgram.Voice)))
		if err != nil {
			return nil, err
		}
		opts = append(opts,
			orchestration.WithSpeechCapture(sttdeepgram.NewRecognizer(cfg.Deepgram.APIKey, device)),
			orchestration.WithSpeechSynthesis(speaker),
		)
	}

	return opts, nil
}
