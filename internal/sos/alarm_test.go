package sos

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/koscakluka/ema-campus/core/audio"
)

type playerStub struct {
	err     error
	release chan struct{}

	mu    sync.Mutex
	plays [][]byte
}

func (p *playerStub) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{SampleRate: 8000, Format: audio.EncodingLinear16}
}

func (p *playerStub) Play(_ context.Context, pcm []byte) error {
	p.mu.Lock()
	p.plays = append(p.plays, pcm)
	p.mu.Unlock()
	if p.release != nil {
		<-p.release
	}
	return p.err
}

func (p *playerStub) Plays() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.plays)
}

func TestToneAlarm_PlaysTone(t *testing.T) {
	is := is.New(t)
	player := &playerStub{}
	tone := audio.Tone{Frequency: 1000, Beep: 10 * time.Millisecond, Gap: 5 * time.Millisecond, Repeat: 2, Volume: 1}
	alarm := NewToneAlarm(player, WithTone(tone))

	alarm.Trigger(context.Background(), "help")
	alarm.Wait()

	is.Equal(player.Plays(), 1)
	is.Equal(len(player.plays[0]), (80+40)*2*2) // two beeps and gaps of 16 bit samples
}

func TestToneAlarm_DoesNotOverlap(t *testing.T) {
	is := is.New(t)
	player := &playerStub{release: make(chan struct{})}
	alarm := NewToneAlarm(player)

	alarm.Trigger(context.Background(), "first")
	alarm.Trigger(context.Background(), "second")
	close(player.release)
	alarm.Wait()

	is.Equal(player.Plays(), 1) // second alarm should not start while the first sounds

	alarm.Trigger(context.Background(), "third")
	alarm.Wait()
	is.Equal(player.Plays(), 2)
}

func TestToneAlarm_PlaybackErrorIsOnlyLogged(t *testing.T) {
	player := &playerStub{err: errors.New("device busy")}
	alarm := NewToneAlarm(player)

	alarm.Trigger(context.Background(), "help")
	alarm.Wait()
}

func TestToneAlarm_WithoutPlayer(t *testing.T) {
	alarm := NewToneAlarm(nil)
	alarm.Trigger(context.Background(), "help")
	alarm.Wait()
}
