package miniaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-campus/core/audio"
)

// Client owns one malgo context with a playback device and, unless disabled,
// a capture device.
type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext
	playbackClient
	captureClient

	closeOnce sync.Once
}

type ClientOption func(*clientOptions)

type clientOptions struct {
	withoutCapture bool
	logger         func(message string)
}

// WithoutCapture skips opening the microphone, used for playback only
// clients like the alarm.
func WithoutCapture() ClientOption {
	return func(o *clientOptions) { o.withoutCapture = true }
}

func WithDeviceLogger(logger func(message string)) ClientOption {
	return func(o *clientOptions) { o.logger = logger }
}

func NewClient(opts ...ClientOption) (*Client, error) {
	options := clientOptions{logger: func(string) {}}
	for _, opt := range opts {
		opt(&options)
	}

	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, options.logger)
	if err != nil {
		return nil, fmt.Errorf("%w: malgo context: %w", audio.ErrDeviceUnavailable, err)
	}

	client := Client{audioContext: audioCtx}

	if err := client.playbackClient.Init(audioCtx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize playback client: %w", err)
	}

	if err := client.playbackClient.Start(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}

	if !options.withoutCapture {
		if err := client.captureClient.Init(audioCtx); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to initialize capture client: %w", err)
		}
	}

	return &client, nil
}

func (c *Client) StartCapture(_ context.Context, onAudio func(audio []byte)) error {
	return c.captureClient.Start(onAudio)
}

func (c *Client) StopCapture() error {
	return c.captureClient.Stop()
}

func (c *Client) CaptureAvailable() bool {
	return c.captureClient.Available()
}

// Play queues pcm and blocks until it has been played or ctx is done, in
// which case the queued audio is dropped.
func (c *Client) Play(ctx context.Context, pcm []byte) error {
	if err := c.playbackClient.SendAudio(pcm); err != nil {
		return err
	}

	if err := c.playbackClient.awaitMark(ctx); err != nil {
		c.playbackClient.ClearBuffer()
		return err
	}
	return nil
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		_ = c.captureClient.Uninit()
		_ = c.playbackClient.Uninit()
		_ = c.audioContext.Uninit()
		c.audioContext.Free()
	})
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{
		SampleRate: audio.DefaultSampleRate,
		Format:     audio.EncodingLinear16,
	}
}
