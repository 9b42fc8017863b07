package speechtotext

import (
	"errors"

	"github.com/koscakluka/ema-campus/core/audio"
)

var (
	ErrNoSpeech          = errors.New("no speech detected")
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrDeviceUnavailable = audio.ErrDeviceUnavailable
)
