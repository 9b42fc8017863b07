package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-campus/core/audio"
	"github.com/koscakluka/ema-campus/core/texttospeech"
)

type streamingRequest struct {
	ws *websocket.Conn
	mu sync.Mutex

	// textBuffer holds the segments not yet confirmed as flushed. The first
	// one has been sent to deepgram, the last one is open for more text
	// unless textComplete is set.
	textBuffer   []string
	textBufferMu sync.Mutex

	options texttospeech.TextToSpeechOptions

	textComplete bool
	cancelled    bool
	closed       bool

	report texttospeech.SpeechEndedReport
}

func (s *Speaker) NewSpeechGenerator(ctx context.Context, opts ...texttospeech.TextToSpeechOption) (texttospeech.SpeechGenerator, error) {
	req := &streamingRequest{
		options: texttospeech.TextToSpeechOptions{
			SpeechAudioCallback: func([]byte) {},
			SpeechMarkCallback:  func(string) {},
			SpeechEndedCallback: func(texttospeech.SpeechEndedReport) {},
			ErrorCallback:       func(error) {},
			EncodingInfo:        audio.GetDefaultEncodingInfo(),
		},
	}

	for _, opt := range opts {
		opt(&req.options)
	}

	var err error
	if req.ws, err = s.connectWebsocket(ctx, req.options.EncodingInfo); err != nil {
		return nil, fmt.Errorf("failed to open websocket: %w", err)
	}

	go req.processIncomingMessages()

	return req, nil
}

func (s *Speaker) connectWebsocket(ctx context.Context, encodingInfo audio.EncodingInfo) (*websocket.Conn, error) {
	if s.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	speakURL, err := url.Parse(s.speakURL)
	if err != nil {
		return nil, fmt.Errorf("invalid speak url: %w", err)
	}

	urlValues := speakURL.Query()
	urlValues.Set("encoding", encodingInfo.Format.Name())
	urlValues.Set("sample_rate", strconv.Itoa(encodingInfo.SampleRate))
	urlValues.Set("model", string(s.voice))
	urlValues.Set("container", "none")
	speakURL.RawQuery = urlValues.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, speakURL.String(),
		http.Header{"Authorization": {"token " + s.apiKey}})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("deepgram refused connection with %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}

func (r *streamingRequest) processIncomingMessages() {
	for {
		msgType, msg, err := r.ws.ReadMessage()
		if err != nil {
			r.textBufferMu.Lock()
			expected := r.closed || r.cancelled
			r.closed = true
			r.textBufferMu.Unlock()

			_ = r.ws.Close()
			if !expected {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					err = errors.New("deepgram closed the stream before speech ended")
				}
				logger.Warn("deepgram speak stream failed", "error", err)
				r.options.ErrorCallback(fmt.Errorf("speech generation failed: %w", err))
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if len(msg) > 0 {
				r.options.SpeechAudioCallback(msg)
			}
		case websocket.TextMessage:
			var parsedMsg struct {
				Type        string `json:"type"`
				Description string `json:"description"`
			}
			if err := json.Unmarshal(msg, &parsedMsg); err != nil {
				logger.Debug("failed to unmarshal deepgram message", "error", err)
				continue
			}

			switch parsedMsg.Type {
			case "Flushed":
				r.onFlushed()
			case "Warning":
				logger.Warn("deepgram warning", "description", parsedMsg.Description)
			case "Error":
				err := fmt.Errorf("deepgram error: %s", parsedMsg.Description)
				r.options.ErrorCallback(err)
				_ = r.Close()
			}
		}
	}
}

func (r *streamingRequest) onFlushed() {
	r.textBufferMu.Lock()
	defer r.textBufferMu.Unlock()
	if r.closed || r.cancelled {
		return
	}

	// notify the user we have reached the mark
	if len(r.textBuffer) > 0 {
		r.options.SpeechMarkCallback(r.textBuffer[0])
		r.textBuffer = r.textBuffer[1:]
		r.report.Segments++
	}

	// nothing left to process, notify the user of the end
	if len(r.textBuffer) == 0 && r.textComplete {
		r.options.SpeechEndedCallback(r.report)
		r.closeLocked()
		return
	}

	// send the next text if there is any
	if len(r.textBuffer) > 0 && r.textBuffer[0] != "" {
		if err := r.sendWebsocketMessage(sendTextMsg(r.textBuffer[0])); err != nil {
			logger.Debug("failed to speak deepgram text", "error", err)
		}
		// the segment is only flushed once nothing more can be added to it
		if len(r.textBuffer) > 1 || r.textComplete {
			if err := r.sendWebsocketMessage(flushMsg); err != nil {
				logger.Debug("failed to flush deepgram buffer", "error", err)
			}
		}
	}
}

func (r *streamingRequest) SendText(text string) error {
	r.textBufferMu.Lock()
	defer r.textBufferMu.Unlock()
	if err := r.checkOpenLocked(); err != nil {
		return err
	} else if r.textComplete {
		return fmt.Errorf("streaming request text already completed")
	}

	if len(r.textBuffer) == 0 {
		r.textBuffer = append(r.textBuffer, "")
	}

	if len(r.textBuffer) == 1 {
		if err := r.sendWebsocketMessage(sendTextMsg(text)); err != nil {
			return fmt.Errorf("failed to send websocket send text message: %w", err)
		}
	}
	r.textBuffer[len(r.textBuffer)-1] += text
	return nil
}

func (r *streamingRequest) Mark() error {
	r.textBufferMu.Lock()
	defer r.textBufferMu.Unlock()
	if err := r.checkOpenLocked(); err != nil {
		return err
	} else if r.textComplete {
		return fmt.Errorf("streaming request text already completed")
	}
	return r.markLocked()
}

func (r *streamingRequest) markLocked() error {
	if len(r.textBuffer) == 0 || r.textBuffer[len(r.textBuffer)-1] == "" {
		return nil
	}

	if len(r.textBuffer) == 1 {
		if err := r.sendWebsocketMessage(flushMsg); err != nil {
			return fmt.Errorf("failed to send websocket flush message: %w", err)
		}
	}

	// NOTE: Deepgram sometimes drops text that is passed after a flush unless
	// there is some kind of break. The next segment is only sent after we get
	// the flush confirmation.
	r.textBuffer = append(r.textBuffer, "")
	return nil
}

func (r *streamingRequest) EndOfText() error {
	r.textBufferMu.Lock()
	defer r.textBufferMu.Unlock()
	if err := r.checkOpenLocked(); err != nil {
		return err
	} else if r.textComplete {
		return nil
	}

	if err := r.markLocked(); err != nil {
		return err
	}
	if len(r.textBuffer) > 0 && r.textBuffer[len(r.textBuffer)-1] == "" {
		r.textBuffer = r.textBuffer[:len(r.textBuffer)-1]
	}

	r.textComplete = true
	if len(r.textBuffer) == 0 {
		r.options.SpeechEndedCallback(r.report)
		r.closeLocked()
	}
	return nil
}

func (r *streamingRequest) Cancel() error {
	r.textBufferMu.Lock()
	defer r.textBufferMu.Unlock()
	if r.closed || r.cancelled {
		return nil
	}

	r.cancelled = true
	r.textBuffer = nil
	clearErr := r.sendWebsocketMessage(clearMsg)
	r.closeLocked()
	if clearErr != nil {
		return fmt.Errorf("failed to send websocket clear message: %w", clearErr)
	}
	return nil
}

func (r *streamingRequest) Close() error {
	r.textBufferMu.Lock()
	defer r.textBufferMu.Unlock()
	r.closeLocked()
	return nil
}

func (r *streamingRequest) closeLocked() {
	if r.closed {
		return
	}
	r.closed = true

	if err := r.sendWebsocketMessage(closeMsg); err != nil {
		logger.Debug("failed to send close message, closing the connection", "error", err)
	}
	_ = r.ws.Close()
}

func (r *streamingRequest) checkOpenLocked() error {
	if r.cancelled {
		return fmt.Errorf("streaming request cancelled")
	} else if r.closed {
		return fmt.Errorf("streaming request closed")
	}
	return nil
}

// writeTimeout bounds every control message, so a stalled connection cannot
// hold up Clear or Close.
var writeTimeout = 5 * time.Second

type websocketMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

var (
	sendTextMsg = func(text string) websocketMessage {
		return websocketMessage{Type: "Speak", Text: text}
	}
	flushMsg = websocketMessage{Type: "Flush"}
	clearMsg = websocketMessage{Type: "Clear"}
	closeMsg = websocketMessage{Type: "Close"}
)

func (r *streamingRequest) sendWebsocketMessage(msg websocketMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ws == nil {
		return fmt.Errorf("websocket connection closed")
	}

	if err := r.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := r.ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write to websocket: %w", err)
	}
	return nil
}
