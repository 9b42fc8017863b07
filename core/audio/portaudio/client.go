package portaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/koscakluka/ema-campus/core/audio"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

var logger = otelslog.NewLogger("github.com/koscakluka/ema-campus/core/audio/portaudio")

// Client is a blocking duplex PortAudio stream. Playback writes block until
// the device accepts the samples, so marks are reached as soon as the audio
// queued before them has been written.
type Client struct {
	bufferSize int
	stream     *portaudio.Stream

	in  []int16
	out []int16

	leftoverAudio []byte
	playbackMu    sync.Mutex

	captureCancel context.CancelFunc
	captureDone   chan struct{}
	captureMu     sync.Mutex

	closeOnce sync.Once
}

func NewClient(bufferSize int) (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: failed to initialize portaudio: %w", audio.ErrDeviceUnavailable, err)
	}

	in := make([]int16, bufferSize)
	out := make([]int16, bufferSize)
	stream, err := portaudio.OpenDefaultStream(1, 1, audio.DefaultSampleRate, bufferSize, in, out)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("%w: failed to open portaudio stream: %w", audio.ErrDeviceUnavailable, err)
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("%w: failed to start portaudio stream: %w", audio.ErrDeviceUnavailable, err)
	}

	return &Client{
		bufferSize: bufferSize,
		stream:     stream,
		in:         in,
		out:        out,
	}, nil
}

func (c *Client) CaptureAvailable() bool {
	return c.stream != nil
}

// StartCapture reads from the microphone on its own goroutine until ctx is
// done or StopCapture is called.
func (c *Client) StartCapture(ctx context.Context, onAudio func(audio []byte)) error {
	c.captureMu.Lock()
	defer c.captureMu.Unlock()
	if c.captureCancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.captureCancel = cancel
	c.captureDone = done

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			if err := c.stream.Read(); err != nil {
				logger.Warn("failed to read from portaudio stream", "error", err)
				continue
			}

			audioBuffer := bytes.Buffer{}
			_ = binary.Write(&audioBuffer, binary.LittleEndian, c.in)
			onAudio(audioBuffer.Bytes())
		}
	}()
	return nil
}

func (c *Client) StopCapture() error {
	c.captureMu.Lock()
	cancel, done := c.captureCancel, c.captureDone
	c.captureCancel, c.captureDone = nil, nil
	c.captureMu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (c *Client) SendAudio(audio []byte) error {
	c.playbackMu.Lock()
	defer c.playbackMu.Unlock()

	frameBytes := c.bufferSize * 2
	pending := append(c.leftoverAudio, audio...)
	for len(pending) >= frameBytes {
		if err := c.writeFrame(pending[:frameBytes]); err != nil {
			c.leftoverAudio = nil
			return err
		}
		pending = pending[frameBytes:]
	}
	c.leftoverAudio = append([]byte(nil), pending...)
	return nil
}

func (c *Client) ClearBuffer() {
	c.playbackMu.Lock()
	defer c.playbackMu.Unlock()
	c.leftoverAudio = nil
}

// Mark flushes the partial frame left over from SendAudio and reports the
// mark, everything queued before it has been written by then.
func (c *Client) Mark(name string, callback func(string)) error {
	if err := c.flush(); err != nil {
		return err
	}
	go callback(name)
	return nil
}

func (c *Client) AwaitMark() error {
	return c.flush()
}

func (c *Client) Play(ctx context.Context, pcm []byte) error {
	frameBytes := c.bufferSize * 2
	for len(pcm) > 0 {
		if err := ctx.Err(); err != nil {
			c.ClearBuffer()
			return err
		}
		chunk := pcm[:min(frameBytes, len(pcm))]
		if err := c.SendAudio(chunk); err != nil {
			return err
		}
		pcm = pcm[len(chunk):]
	}
	return c.flush()
}

func (c *Client) flush() error {
	c.playbackMu.Lock()
	defer c.playbackMu.Unlock()
	if len(c.leftoverAudio) == 0 {
		return nil
	}

	frame := make([]byte, c.bufferSize*2)
	copy(frame, c.leftoverAudio)
	c.leftoverAudio = nil
	return c.writeFrame(frame)
}

func (c *Client) writeFrame(frame []byte) error {
	if err := binary.Read(bytes.NewReader(frame), binary.LittleEndian, c.out); err != nil {
		return fmt.Errorf("failed to decode audio frame: %w", err)
	}
	if err := c.stream.Write(); err != nil {
		return fmt.Errorf("failed to write to portaudio stream: %w", err)
	}
	return nil
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		_ = c.StopCapture()
		_ = c.stream.Stop()
		_ = c.stream.Close()
		_ = portaudio.Terminate()
	})
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{
		SampleRate: audio.DefaultSampleRate,
		Format:     audio.EncodingLinear16,
	}
}
