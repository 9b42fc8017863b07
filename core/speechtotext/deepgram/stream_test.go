package deepgram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-campus/core/speechtotext"
)

func newTestStream(options speechtotext.TranscriptionOptions) *stream {
	callbacks, _ := newCallbackConfig(options)
	return &stream{callbacks: callbacks, done: make(chan struct{}), cancel: func() {}}
}

func TestProcessMessageAccumulatesUntilSpeechFinal(t *testing.T) {
	var transcripts, segments, interim []string
	ended := 0
	s := newTestStream(speechtotext.TranscriptionOptions{
		TranscriptionCallback:        func(transcript string) { transcripts = append(transcripts, transcript) },
		PartialTranscriptionCallback: func(segment string) { segments = append(segments, segment) },
		InterimTranscriptionCallback: func(transcript string) { interim = append(interim, transcript) },
		SpeechEndedCallback:          func() { ended++ },
	})

	ctx := context.Background()
	s.processMessage(ctx, []byte(`{"type":"SpeechStarted"}`))
	s.processMessage(ctx, []byte(`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"what time"}]}}`))
	s.processMessage(ctx, []byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"What time is"}]}}`))
	s.processMessage(ctx, []byte(`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"my OS"}]}}`))
	s.processMessage(ctx, []byte(`{"type":"Results","is_final":true,"speech_final":true,"channel":{"alternatives":[{"transcript":"my OS class?"}]}}`))

	if len(transcripts) != 1 || transcripts[0] != "What time is my OS class?" {
		t.Fatalf("expected one full transcript, got %q", transcripts)
	}
	if len(segments) != 2 {
		t.Fatalf("expected two final segments, got %q", segments)
	}
	if len(interim) != 2 || interim[1] != "What time is my OS" {
		t.Fatalf("expected interim transcript to include finalized text, got %q", interim)
	}
	if ended != 1 {
		t.Fatalf("expected speech end once, got %d", ended)
	}
}

func TestProcessMessageUtteranceEndFlushesTranscript(t *testing.T) {
	var transcripts []string
	s := newTestStream(speechtotext.TranscriptionOptions{
		TranscriptionCallback: func(transcript string) { transcripts = append(transcripts, transcript) },
	})

	ctx := context.Background()
	s.processMessage(ctx, []byte(`{"type":"SpeechStarted"}`))
	s.processMessage(ctx, []byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"help"}]}}`))
	s.processMessage(ctx, []byte(`{"type":"UtteranceEnd"}`))
	s.processMessage(ctx, []byte(`{"type":"UtteranceEnd"}`))

	if len(transcripts) != 1 || transcripts[0] != "help" {
		t.Fatalf("expected a single transcript from utterance end, got %q", transcripts)
	}
}

func TestProcessMessageIgnoredAfterStop(t *testing.T) {
	called := false
	s := newTestStream(speechtotext.TranscriptionOptions{
		TranscriptionCallback: func(string) { called = true },
	})
	s.stopped.Store(true)

	s.processMessage(context.Background(), []byte(`{"type":"Results","is_final":true,"speech_final":true,"channel":{"alternatives":[{"transcript":"late"}]}}`))
	if called {
		t.Fatalf("expected no callbacks after stop")
	}
}

func TestRecognizerStreamsTranscriptFromServer(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var query, authorization string
	closeReceived := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		authorization = r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("failed to upgrade: %v", err)
			return
		}
		defer conn.Close()

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"SpeechStarted"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Results","is_final":true,"speech_final":true,"channel":{"alternatives":[{"transcript":"where is the library"}]}}`))

		for {
			msgType, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if msgType == websocket.TextMessage && strings.Contains(string(msg), "CloseStream") {
				close(closeReceived)
				return
			}
		}
	}))
	defer server.Close()

	recognizer := NewRecognizer("test-key", nil, WithListenURL("ws"+strings.TrimPrefix(server.URL, "http")))
	if !recognizer.Available(context.Background()) {
		t.Fatalf("expected recognizer with a key and no input to be available")
	}

	transcripts := make(chan string, 1)
	if err := recognizer.Start(context.Background(),
		speechtotext.WithTranscriptionCallback(func(transcript string) { transcripts <- transcript }),
	); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}

	select {
	case transcript := <-transcripts:
		if transcript != "where is the library" {
			t.Fatalf("expected transcript, got %q", transcript)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for transcript")
	}

	if err := recognizer.Stop(); err != nil {
		t.Fatalf("expected stop to succeed, got %v", err)
	}
	if err := recognizer.Stop(); err != nil {
		t.Fatalf("expected repeated stop to be a no-op, got %v", err)
	}

	select {
	case <-closeReceived:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected CloseStream to be sent")
	}

	if authorization != "Token test-key" {
		t.Fatalf("expected token authorization, got %q", authorization)
	}
	for _, want := range []string{"model=nova-3", "endpointing=300", "utterance_end_ms=1000", "encoding=linear16", "sample_rate=16000"} {
		if !strings.Contains(query, want) {
			t.Fatalf("expected query to contain %q, got %q", want, query)
		}
	}
}

func TestRecognizerReportsDroppedConnection(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "boom"))
		_ = conn.Close()
	}))
	defer server.Close()

	var mu sync.Mutex
	var reported error
	errs := make(chan struct{})
	recognizer := NewRecognizer("test-key", nil, WithListenURL("ws"+strings.TrimPrefix(server.URL, "http")))
	if err := recognizer.Start(context.Background(), speechtotext.WithErrorCallback(func(err error) {
		mu.Lock()
		reported = err
		mu.Unlock()
		close(errs)
	})); err != nil {
		t.Fatalf("expected start to succeed, got %v", err)
	}
	defer recognizer.Stop()

	select {
	case <-errs:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for error callback")
	}

	mu.Lock()
	defer mu.Unlock()
	if reported == nil {
		t.Fatalf("expected an error to be reported")
	}
}

func TestRecognizerWithoutKeyIsUnavailable(t *testing.T) {
	recognizer := NewRecognizer("", nil)
	if recognizer.Available(context.Background()) {
		t.Fatalf("expected recognizer without key to be unavailable")
	}

	err := recognizer.Start(context.Background())
	if !errors.Is(err, speechtotext.ErrDeviceUnavailable) {
		t.Fatalf("expected device unavailable error, got %v", err)
	}
}
