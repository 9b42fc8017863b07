package audio

import "time"

const (
	DefaultSampleRate = 16000
	DefaultFormat     = EncodingLinear16
)

func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: DefaultSampleRate, Format: DefaultFormat}
}

// EncodingInfo describes raw mono audio exchanged between devices and the
// speech services.
type EncodingInfo struct {
	SampleRate int
	Format     encodingFormat
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

func (e EncodingInfo) SilenceValue() byte {
	switch e.Format {
	case EncodingALaw:
		return 0x55
	case EncodingMulaw:
		return 0xFF
	}
	return 0
}

func (e EncodingInfo) BytesPerSecond() int {
	return e.SampleRate * e.Format.ByteSize()
}

// Duration returns how long size bytes of audio take to play.
func (e EncodingInfo) Duration(size int) time.Duration {
	bytesPerSecond := e.BytesPerSecond()
	if bytesPerSecond <= 0 {
		return 0
	}
	return time.Duration(size) * time.Second / time.Duration(bytesPerSecond)
}

type encodingFormat string

func (e encodingFormat) Name() string {
	return string(e)
}

func (e encodingFormat) ByteSize() int {
	switch e {
	case EncodingMulaw, EncodingALaw:
		return 1
	case EncodingLinear16:
		return 2
	}
	return -1
}

const (
	EncodingMulaw    encodingFormat = "mulaw"
	EncodingALaw     encodingFormat = "alaw"
	EncodingLinear16 encodingFormat = "linear16"
)
