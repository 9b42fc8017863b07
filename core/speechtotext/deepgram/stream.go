package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-campus/core/audio"
	"github.com/koscakluka/ema-campus/internal/utils"
)

type stream struct {
	conn   *websocket.Conn
	connMu sync.Mutex

	callbacks callbackConfig

	lastMsgTs   time.Time
	lastMsgTsMu sync.Mutex

	accumulatedTranscript string
	unendedSegment        bool

	cancel  context.CancelFunc
	stopped atomic.Bool
	done    chan struct{}
}

func newStream(conn *websocket.Conn, callbacks callbackConfig, cancel context.CancelFunc) *stream {
	return &stream{
		conn:      conn,
		callbacks: callbacks,
		lastMsgTs: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

func (r *Recognizer) connectWebsocket(ctx context.Context, encoding encodingInfo, options websocketConfig) (*websocket.Conn, error) {
	listenURL, err := url.Parse(r.listenURL)
	if err != nil {
		return nil, fmt.Errorf("invalid listen url: %w", err)
	}

	queryParams := listenURL.Query()
	queryParams.Set("encoding", encoding.Format.Name())
	queryParams.Set("sample_rate", strconv.Itoa(encoding.SampleRate))
	queryParams.Set("channels", "1")
	queryParams.Set("model", r.model)
	queryParams.Set("language", r.language)
	queryParams.Set("smart_format", "true")
	if options.shouldEnhanceSpeechEndingDetection {
		queryParams.Set("utterance_end_ms", "1000")
		queryParams.Set("interim_results", "true")
	} else if options.shouldRequestInterimResults {
		queryParams.Set("interim_results", "true")
	}
	queryParams.Set("endpointing", "300")
	if options.shouldDetectSpeechStart || options.shouldEnhanceSpeechEndingDetection {
		queryParams.Set("vad_events", "true")
	}
	listenURL.RawQuery = queryParams.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, listenURL.String(),
		http.Header{"Authorization": {"Token " + r.apiKey}})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("deepgram refused connection with %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}

func (s *stream) sendAudio(audio []byte) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.stopped.Load() {
		return fmt.Errorf("stream closed")
	}

	s.lastMsgTsMu.Lock()
	s.lastMsgTs = time.Now()
	s.lastMsgTsMu.Unlock()

	if err := s.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		return fmt.Errorf("failed to write to deepgram client: %w", err)
	}
	return nil
}

func (s *stream) sendSilence(audio []byte) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.stopped.Load() {
		return nil
	}

	if err := s.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		return fmt.Errorf("failed to write to deepgram client: %w", err)
	}
	return nil
}

func (s *stream) sendControl(msgType string) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if err := s.conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: msgType}); err != nil {
		return fmt.Errorf("failed to send %s to deepgram: %w", msgType, err)
	}
	return nil
}

func (s *stream) sinceLastAudio() time.Duration {
	s.lastMsgTsMu.Lock()
	defer s.lastMsgTsMu.Unlock()
	return time.Since(s.lastMsgTs)
}

// close tells deepgram the stream is over and waits for the reader to exit.
func (s *stream) close() {
	if !s.stopped.CompareAndSwap(false, true) {
		<-s.done
		return
	}

	if err := s.sendControl(string(api.TypeCloseStreamResponse)); err != nil {
		logger.Debug("failed to close deepgram stream gracefully", "error", err)
	}
	s.cancel()
	_ = s.conn.Close()
	<-s.done
}

func (s *stream) readAndProcessMessages(ctx context.Context) {
	defer close(s.done)
	defer s.cancel()

	for {
		msgType, msg, err := s.conn.ReadMessage()
		if err != nil {
			if s.stopped.Load() {
				return
			}
			s.stopped.Store(true)
			_ = s.conn.Close()

			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				err = errors.New("deepgram closed the stream")
			}
			logger.Warn("deepgram stream ended unexpectedly", "error", err)
			s.callbacks.errorCallback(fmt.Errorf("transcription stream failed: %w", err))
			return
		}
		if msgType == websocket.TextMessage {
			s.processMessage(ctx, msg)
		}
	}
}

func (s *stream) processMessage(_ context.Context, msg []byte) {
	if s.stopped.Load() {
		return
	}

	var parsedMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		logger.Warn("failed to unmarshal deepgram message", "error", err)
		return
	}

	switch api.TypeResponse(parsedMsg.Type) {
	case api.TypeMessageResponse:
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			logger.Warn("failed to unmarshal deepgram message", "error", err)
			return
		}

		transcript := ""
		if len(msgResp.Channel.Alternatives) > 0 {
			transcript = strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript)
		}

		if !msgResp.IsFinal {
			if len(transcript) > 0 {
				s.callbacks.partialInterimTranscriptionCallback(transcript)
				s.callbacks.interimTranscriptionCallback(strings.TrimSpace(s.accumulatedTranscript + " " + transcript))
			}
			return
		}

		if len(transcript) > 0 {
			s.accumulatedTranscript += " " + transcript
			s.callbacks.partialTranscriptionCallback(transcript)
		}
		if msgResp.SpeechFinal {
			s.onSpeechEnded()
		}

	case api.TypeUtteranceEndResponse:
		if s.unendedSegment || strings.TrimSpace(s.accumulatedTranscript) != "" {
			s.onSpeechEnded()
		}

	case api.TypeSpeechStartedResponse:
		s.unendedSegment = true
		s.callbacks.startSpeechCallback()
	}
}

func (s *stream) onSpeechEnded() {
	s.unendedSegment = false
	fullTranscript := strings.TrimSpace(s.accumulatedTranscript)
	s.accumulatedTranscript = ""
	if len(fullTranscript) > 0 {
		s.callbacks.transcriptionCallback(fullTranscript)
	}
	s.callbacks.endSpeechCallback()
}

// generateSilence keeps deepgram's endpointing working while the microphone
// is quiet, first with silent audio and then with periodic KeepAlive.
func (s *stream) generateSilence(ctx context.Context, encoding audio.EncodingInfo) {
	type silenceGeneratorState string
	const (
		silenceGeneratorStateWaiting   silenceGeneratorState = "waiting"
		silenceGeneratorStateSilence   silenceGeneratorState = "silence"
		silenceGeneratorStateKeepAlive silenceGeneratorState = "keepAlive"
	)

	const chunkDuration = 50 * time.Millisecond
	ticker := time.NewTicker(chunkDuration)
	defer ticker.Stop()

	chunk := make([]byte, encoding.BytesPerSecond()*int(chunkDuration/time.Millisecond)/1000)
	for i := range chunk {
		chunk[i] = encoding.SilenceValue()
	}

	var state = silenceGeneratorStateWaiting
	var firstSilenceTime *time.Time
	var lastKeepAliveTime *time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			quietFor := s.sinceLastAudio()
			switch state {
			case silenceGeneratorStateWaiting:
				if quietFor > chunkDuration {
					state = silenceGeneratorStateSilence
					firstSilenceTime = utils.Ptr(time.Now())
				}

			case silenceGeneratorStateSilence:
				if quietFor < chunkDuration {
					state = silenceGeneratorStateWaiting
					firstSilenceTime = nil
					continue
				}
				if time.Since(*firstSilenceTime) >= time.Second {
					state = silenceGeneratorStateKeepAlive
					lastKeepAliveTime = utils.Ptr(time.Now())
					firstSilenceTime = nil
					continue
				}

				if err := s.sendSilence(chunk); err != nil {
					logger.Debug("sending silence audio failed", "error", err)
				}

			case silenceGeneratorStateKeepAlive:
				if quietFor < chunkDuration {
					state = silenceGeneratorStateWaiting
					continue
				}

				if time.Since(*lastKeepAliveTime) >= 5*time.Second {
					lastKeepAliveTime = utils.Ptr(time.Now())
					if err := s.sendControl("KeepAlive"); err != nil {
						logger.Debug("sending keep alive failed", "error", err)
					}
				}
			}
		}
	}
}
