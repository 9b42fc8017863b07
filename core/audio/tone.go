package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// Tone describes a beeping alarm: Repeat beeps of Frequency hertz, each Beep
// long and followed by Gap of silence.
type Tone struct {
	Frequency float64
	Beep      time.Duration
	Gap       time.Duration
	Repeat    int
	Volume    float64
}

// AlarmTone is five half second beeps at 1kHz.
func AlarmTone() Tone {
	return Tone{
		Frequency: 1000,
		Beep:      500 * time.Millisecond,
		Gap:       100 * time.Millisecond,
		Repeat:    5,
		Volume:    0.6,
	}
}

// PCM renders the tone as little endian signed 16 bit mono samples. Only
// linear16 is supported, other encodings return nil.
func (t Tone) PCM(encoding EncodingInfo) []byte {
	if encoding.Format != EncodingLinear16 || encoding.SampleRate <= 0 || t.Repeat <= 0 {
		return nil
	}

	volume := math.Max(0, math.Min(1, t.Volume))
	beepSamples := int(t.Beep.Seconds() * float64(encoding.SampleRate))
	gapSamples := int(t.Gap.Seconds() * float64(encoding.SampleRate))

	pcm := make([]byte, 0, (beepSamples+gapSamples)*t.Repeat*2)
	sample := make([]byte, 2)
	for range t.Repeat {
		for i := range beepSamples {
			value := volume * math.Sin(2*math.Pi*t.Frequency*float64(i)/float64(encoding.SampleRate))
			binary.LittleEndian.PutUint16(sample, uint16(int16(value*math.MaxInt16)))
			pcm = append(pcm, sample...)
		}
		pcm = append(pcm, make([]byte, gapSamples*2)...)
	}
	return pcm
}
