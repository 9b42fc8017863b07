package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/koscakluka/ema-campus/core/llms/gemini"
	"github.com/koscakluka/ema-campus/core/prompts"
)

const (
	AudioBackendMiniaudio = "miniaudio"
	AudioBackendPortaudio = "portaudio"

	ClassifierKeyword = "keyword"
	ClassifierLLM     = "llm"

	DefaultDeepgramVoice  = "aura-2-thalia-en"
	DefaultSOSURL         = "http://localhost:5000/sos"
	DefaultSOSAddr        = ":5000"
	DefaultCaptureTimeout = 10 * time.Second
)

// Config groups every setting the assistant reads from the environment.
type Config struct {
	Gemini     GeminiConfig
	Deepgram   DeepgramConfig
	SOS        SOSConfig
	Student    StudentConfig
	Campus     CampusConfig
	Audio      AudioConfig
	Classifier string
	Log        LogConfig
}

type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type DeepgramConfig struct {
	APIKey string
	Voice  string
}

type SOSConfig struct {
	// URL is where alerts are posted to.
	URL string
	// Addr is what the responder server listens on.
	Addr string
}

type StudentConfig struct {
	Name     string
	USN      string
	Semester int
	Branch   string
}

func (s StudentConfig) Profile() prompts.Student {
	return prompts.Student{Name: s.Name, USN: s.USN, Semester: s.Semester, Branch: s.Branch}
}

type CampusConfig struct {
	// DataFile overrides the embedded campus data when set.
	DataFile string
}

// Load returns the campus data file, or the embedded default when no file is
// configured.
func (c CampusConfig) Load() (*prompts.Campus, error) {
	if c.DataFile == "" {
		return prompts.DefaultCampus(), nil
	}
	return prompts.LoadCampus(c.DataFile)
}

type AudioConfig struct {
	Backend        string
	CaptureTimeout time.Duration
}

type LogConfig struct {
	Level slog.Level
}

// Load reads the given dotenv files (".env" when none are given) into the
// environment without overriding variables that are already set, and then
// builds the configuration from the environment. Missing dotenv files are
// ignored.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error loading %s: %w", file, err)
		}
	}

	return FromEnv()
}

// FromEnv builds the configuration from environment variables only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Gemini: GeminiConfig{
			APIKey:  env("GEMINI_API_KEY", ""),
			Model:   env("GEMINI_MODEL", gemini.DefaultModel),
			BaseURL: env("GEMINI_BASE_URL", gemini.DefaultBaseURL),
		},
		Deepgram: DeepgramConfig{
			APIKey: env("DEEPGRAM_API_KEY", ""),
			Voice:  env("DEEPGRAM_VOICE", DefaultDeepgramVoice),
		},
		SOS: SOSConfig{
			URL:  env("SOS_URL", DefaultSOSURL),
			Addr: env("SOS_ADDR", DefaultSOSAddr),
		},
		Student: StudentConfig{
			Name:   env("STUDENT_NAME", ""),
			USN:    env("STUDENT_USN", ""),
			Branch: env("STUDENT_BRANCH", ""),
		},
		Campus: CampusConfig{
			DataFile: env("CAMPUS_DATA_FILE", ""),
		},
		Audio: AudioConfig{
			Backend:        strings.ToLower(env("AUDIO_BACKEND", AudioBackendMiniaudio)),
			CaptureTimeout: DefaultCaptureTimeout,
		},
		Classifier: strings.ToLower(env("CLASSIFIER", ClassifierKeyword)),
	}

	if semester := env("STUDENT_SEMESTER", ""); semester != "" {
		value, err := strconv.Atoi(semester)
		if err != nil || value < 0 {
			return nil, fmt.Errorf("invalid STUDENT_SEMESTER value: %q", semester)
		}
		cfg.Student.Semester = value
	}

	if timeout := env("CAPTURE_TIMEOUT", ""); timeout != "" {
		value, err := time.ParseDuration(timeout)
		if err != nil || value <= 0 {
			return nil, fmt.Errorf("invalid CAPTURE_TIMEOUT value: %q", timeout)
		}
		cfg.Audio.CaptureTimeout = value
	}

	switch cfg.Audio.Backend {
	case AudioBackendMiniaudio, AudioBackendPortaudio:
	default:
		return nil, fmt.Errorf("invalid AUDIO_BACKEND value: %q", cfg.Audio.Backend)
	}

	switch cfg.Classifier {
	case ClassifierKeyword, ClassifierLLM:
	default:
		return nil, fmt.Errorf("invalid CLASSIFIER value: %q", cfg.Classifier)
	}

	if err := cfg.Log.Level.UnmarshalText([]byte(env("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL value: %w", err)
	}

	return cfg, nil
}

func env(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
