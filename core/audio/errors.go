package audio

import "errors"

// ErrDeviceUnavailable is returned when an audio device cannot be opened or
// started, e.g. no microphone is connected or access was refused.
var ErrDeviceUnavailable = errors.New("audio device unavailable")
