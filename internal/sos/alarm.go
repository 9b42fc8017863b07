package sos

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/koscakluka/ema-campus/core/audio"
)

// Alarm is raised for every accepted SOS. Trigger must not block the
// request that raised it.
type Alarm interface {
	Trigger(ctx context.Context, message string)
}

type Player interface {
	EncodingInfo() audio.EncodingInfo
	Play(ctx context.Context, pcm []byte) error
}

// ToneAlarm logs every SOS and beeps through the speaker. Alarms raised
// while one is still sounding are logged but not played again.
type ToneAlarm struct {
	player Player
	tone   audio.Tone

	mu      sync.Mutex
	playing bool
	wg      sync.WaitGroup
}

type ToneAlarmOption func(*ToneAlarm)

func WithTone(tone audio.Tone) ToneAlarmOption {
	return func(a *ToneAlarm) {
		a.tone = tone
	}
}

// NewToneAlarm creates an alarm playing through player. A nil player only
// logs.
func NewToneAlarm(player Player, opts ...ToneAlarmOption) *ToneAlarm {
	a := &ToneAlarm{
		player: player,
		tone:   audio.AlarmTone(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *ToneAlarm) Trigger(ctx context.Context, message string) {
	id := uuid.NewString()
	logger.Warn("SOS ALARM", "alarm", id, "message", message)

	if a.player == nil {
		return
	}

	a.mu.Lock()
	if a.playing {
		a.mu.Unlock()
		logger.Info("alarm already sounding", "alarm", id)
		return
	}
	a.playing = true
	a.wg.Add(1)
	a.mu.Unlock()

	go func() {
		defer a.wg.Done()
		defer func() {
			a.mu.Lock()
			a.playing = false
			a.mu.Unlock()
		}()

		pcm := a.tone.PCM(a.player.EncodingInfo())
		if len(pcm) == 0 {
			logger.Error("alarm tone not supported by audio device", "alarm", id)
			return
		}
		if err := a.player.Play(context.WithoutCancel(ctx), pcm); err != nil {
			logger.Error("error playing alarm", "alarm", id, "error", err)
		}
	}()
}

// Wait blocks until the alarm that is currently sounding has finished.
func (a *ToneAlarm) Wait() {
	a.wg.Wait()
}
