package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-campus/core/audio"
)

type captureClient struct {
	device *malgo.Device
	config malgo.DeviceConfig

	onAudio   func(audio []byte)
	onAudioMu sync.RWMutex

	mu sync.Mutex
}

func (c *captureClient) Init(audioContext *malgo.AllocatedContext) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	channels := 1
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	c.config = malgo.DefaultDeviceConfig(malgo.Capture)
	c.config.SampleRate = uint32(audio.DefaultSampleRate)
	c.config.Capture.Format = format
	c.config.Capture.Channels = uint32(channels)
	c.config.Alsa.NoMMap = 1
	c.config.PerformanceProfile = malgo.LowLatency
	c.config.PeriodSizeInFrames = 480
	c.config.Periods = 3

	var err error
	c.device, err = malgo.InitDevice(audioContext.Context, c.config, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if len(pInput) < n || n == 0 {
				return
			}

			c.onAudioMu.RLock()
			onAudio := c.onAudio
			c.onAudioMu.RUnlock()
			if onAudio != nil {
				// The device reuses its buffer once the callback returns.
				onAudio(append([]byte(nil), pInput[:n]...))
			}
		},
	})
	if err != nil {
		return fmt.Errorf("%w: failed to initialize capture device: %w", audio.ErrDeviceUnavailable, err)
	}

	return nil
}

func (c *captureClient) Start(onAudio func(audio []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("%w: capture device not initialized", audio.ErrDeviceUnavailable)
	}

	c.setOnAudio(onAudio)
	if c.device.IsStarted() {
		return nil
	}

	if err := c.device.Start(); err != nil {
		c.setOnAudio(nil)
		return fmt.Errorf("%w: failed to start capture device: %w", audio.ErrDeviceUnavailable, err)
	}
	return nil
}

func (c *captureClient) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setOnAudio(nil)
	if c.device == nil || !c.device.IsStarted() {
		return nil
	}

	if err := c.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop capture device: %w", err)
	}
	return nil
}

func (c *captureClient) Available() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.device != nil
}

func (c *captureClient) Uninit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setOnAudio(nil)
	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}
	return nil
}

func (c *captureClient) setOnAudio(onAudio func([]byte)) {
	c.onAudioMu.Lock()
	defer c.onAudioMu.Unlock()
	c.onAudio = onAudio
}
