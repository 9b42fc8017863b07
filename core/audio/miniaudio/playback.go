package miniaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-campus/core/audio"
)

type playbackClient struct {
	device *malgo.Device
	config malgo.DeviceConfig

	pending []byte
	marks   []playbackMark

	mu       sync.Mutex
	bufferMu sync.Mutex
}

type playbackMark struct {
	name     string
	position int
	callback func(string)
}

func (c *playbackClient) Init(audioContext *malgo.AllocatedContext) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	channels := 1
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	c.config = malgo.DefaultDeviceConfig(malgo.Playback)
	c.config.SampleRate = uint32(audio.DefaultSampleRate)
	c.config.Playback.Format = format
	c.config.Playback.Channels = uint32(channels)
	c.config.Alsa.NoMMap = 1
	c.config.PeriodSizeInFrames = c.config.SampleRate / 10 // ~100ms of audio
	c.config.Periods = 4

	var err error
	if c.device, err = malgo.InitDevice(
		audioContext.Context,
		c.config,
		malgo.DeviceCallbacks{Data: c.processAudio(bytesPerFrame)},
	); err != nil {
		return fmt.Errorf("%w: failed to initialize playback device: %w", audio.ErrDeviceUnavailable, err)
	}

	return nil
}

func (c *playbackClient) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	} else if c.device.IsStarted() {
		return nil
	}

	if err := c.device.Start(); err != nil {
		return fmt.Errorf("%w: failed to start playback device: %w", audio.ErrDeviceUnavailable, err)
	}
	return nil
}

func (c *playbackClient) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	}

	if err := c.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop playback device: %w", err)
	}

	c.ClearBuffer()
	return nil
}

func (c *playbackClient) SendAudio(audio []byte) error {
	c.mu.Lock()
	started := c.device != nil && c.device.IsStarted()
	c.mu.Unlock()
	if !started {
		return fmt.Errorf("playback device not started")
	}

	c.bufferMu.Lock()
	defer c.bufferMu.Unlock()
	c.pending = append(c.pending, audio...)
	return nil
}

// ClearBuffer drops all queued audio. Pending marks are released so nothing
// waits on audio that will never play.
func (c *playbackClient) ClearBuffer() {
	c.bufferMu.Lock()
	marks := c.marks
	c.pending = nil
	c.marks = nil
	c.bufferMu.Unlock()

	fireMarks(marks)
}

// Mark calls callback once all audio queued before the mark has been handed
// to the device.
func (c *playbackClient) Mark(name string, callback func(string)) error {
	c.bufferMu.Lock()
	defer c.bufferMu.Unlock()
	c.marks = append(c.marks, playbackMark{
		name:     name,
		position: len(c.pending),
		callback: callback,
	})
	return nil
}

func (c *playbackClient) AwaitMark() error {
	return c.awaitMark(context.Background())
}

func (c *playbackClient) awaitMark(ctx context.Context) error {
	reached := make(chan struct{})
	if err := c.Mark("", func(string) { close(reached) }); err != nil {
		return err
	}

	select {
	case <-reached:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *playbackClient) Uninit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device == nil {
		return nil
	}

	c.device.Uninit()
	c.device = nil
	return nil
}

func (c *playbackClient) processAudio(bytesPerFrame int) malgo.DataProc {
	return func(pOutput, _ []byte, frameCount uint32) {
		need := min(int(frameCount)*bytesPerFrame, len(pOutput))

		c.bufferMu.Lock()
		n := copy(pOutput[:need], c.pending)
		c.pending = c.pending[n:]
		passed := c.advanceMarks(n)
		c.bufferMu.Unlock()

		clear(pOutput[n:need])
		fireMarks(passed)
	}
}

// advanceMarks must be called with bufferMu held.
func (c *playbackClient) advanceMarks(consumed int) []playbackMark {
	passed := 0
	for i := range c.marks {
		if c.marks[i].position <= consumed {
			passed++
			continue
		}
		c.marks[i].position -= consumed
	}
	if passed == 0 {
		return nil
	}

	reached := c.marks[:passed:passed]
	c.marks = c.marks[passed:]
	return reached
}

func fireMarks(marks []playbackMark) {
	if len(marks) == 0 {
		return
	}
	go func() {
		for _, mark := range marks {
			mark.callback(mark.name)
		}
	}()
}
