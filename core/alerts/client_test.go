package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSendPostsMessageAndTimestamp(t *testing.T) {
	var method, contentType string
	var body map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		contentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("expected JSON body, got %v", err)
		}
		_, _ = w.Write([]byte(`{"status":"success"}`))
	}))
	defer server.Close()

	timestamp := time.Date(2025, time.March, 17, 10, 30, 0, 0, time.UTC)
	client := NewClient(server.URL+"/sos", WithHTTPClient(server.Client()))
	if err := client.Send(context.Background(), NewEvent("Medical emergency near Lab201", timestamp)); err != nil {
		t.Fatalf("expected send to succeed, got %v", err)
	}

	if method != http.MethodPost {
		t.Fatalf("expected POST, got %s", method)
	}
	if contentType != "application/json" {
		t.Fatalf("expected JSON content type, got %q", contentType)
	}
	if body["message"] != "Medical emergency near Lab201" {
		t.Fatalf("expected message in body, got %v", body)
	}
	if body["timestamp"] != "2025-03-17T10:30:00Z" {
		t.Fatalf("expected RFC3339 timestamp, got %q", body["timestamp"])
	}
}

func TestSendReturnsStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"status":"error","message":"boom"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, WithHTTPClient(server.Client()))
	err := client.Send(context.Background(), NewEvent("help", time.Now()))

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected status error, got %v", err)
	}
	if statusErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", statusErr.StatusCode)
	}
}

func TestSendFailsWhenEndpointUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(url)
	if err := client.Send(context.Background(), NewEvent("help", time.Now())); err == nil {
		t.Fatalf("expected error for unreachable endpoint")
	}
}

func TestEventJSON(t *testing.T) {
	event := NewEvent("fire in block D", time.Date(2025, time.March, 17, 10, 30, 0, 5, time.FixedZone("IST", 5*3600+1800)))

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("expected marshal to succeed, got %v", err)
	}

	var decoded Event
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("expected unmarshal to succeed, got %v", err)
	}
	if decoded.Message != event.Message || !decoded.Timestamp.Equal(event.Timestamp) {
		t.Fatalf("expected %+v, got %+v", event, decoded)
	}
}
