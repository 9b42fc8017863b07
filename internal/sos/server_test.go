package sos

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/matryer/is"
)

type alarmStub struct {
	mu       sync.Mutex
	messages []string
}

func (a *alarmStub) Trigger(_ context.Context, message string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, message)
}

func (a *alarmStub) Messages() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.messages...)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return body
}

func TestSOS_PostJSON(t *testing.T) {
	is := is.New(t)
	alarm := &alarmStub{}
	router := NewRouter(alarm)

	req := httptest.NewRequest(http.MethodPost, "/sos", strings.NewReader(`{"message":"Medical emergency near Lab201","timestamp":"2025-03-11T09:00:00Z"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	is.Equal(rec.Code, http.StatusOK)
	is.Equal(rec.Header().Get("Content-Type"), "application/json")
	body := decode(t, rec)
	is.Equal(body["status"], "success")
	is.Equal(body["message"], "SOS alarm triggered")
	is.Equal(body["received_message"], "Medical emergency near Lab201")
	is.Equal(alarm.Messages(), []string{"Medical emergency near Lab201"})
}

func TestSOS_PostForm(t *testing.T) {
	is := is.New(t)
	alarm := &alarmStub{}
	router := NewRouter(alarm)

	form := url.Values{"message": {"Fire in block D"}}
	req := httptest.NewRequest(http.MethodPost, "/sos", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	is.Equal(rec.Code, http.StatusOK)
	is.Equal(decode(t, rec)["received_message"], "Fire in block D")
}

func TestSOS_DefaultMessage(t *testing.T) {
	tests := map[string]*http.Request{
		"get without query": httptest.NewRequest(http.MethodGet, "/sos", nil),
		"empty json":        jsonRequest(`{}`),
		"empty post":        httptest.NewRequest(http.MethodPost, "/sos", nil),
	}

	for name, req := range tests {
		t.Run(name, func(t *testing.T) {
			is := is.New(t)
			alarm := &alarmStub{}
			rec := httptest.NewRecorder()
			NewRouter(alarm).ServeHTTP(rec, req)

			is.Equal(rec.Code, http.StatusOK)
			is.Equal(decode(t, rec)["received_message"], DefaultMessage)
			is.Equal(alarm.Messages(), []string{DefaultMessage})
		})
	}
}

func TestSOS_GetWithQuery(t *testing.T) {
	is := is.New(t)
	alarm := &alarmStub{}
	rec := httptest.NewRecorder()
	NewRouter(alarm).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sos?message=help+me", nil))

	is.Equal(rec.Code, http.StatusOK)
	is.Equal(decode(t, rec)["received_message"], "help me")
}

func TestSOS_InvalidJSON(t *testing.T) {
	is := is.New(t)
	alarm := &alarmStub{}
	rec := httptest.NewRecorder()
	NewRouter(alarm).ServeHTTP(rec, jsonRequest(`{"message":`))

	is.Equal(rec.Code, http.StatusInternalServerError)
	body := decode(t, rec)
	is.Equal(body["status"], "error")
	is.True(body["message"] != "") // error should carry a reason
	is.Equal(len(alarm.Messages()), 0) // alarm must not fire
}

func TestHealth(t *testing.T) {
	is := is.New(t)
	rec := httptest.NewRecorder()
	NewRouter(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	is.Equal(rec.Code, http.StatusOK)
	is.Equal(decode(t, rec)["status"], "ok")
}

func jsonRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/sos", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}
