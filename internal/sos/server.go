package sos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const DefaultMessage = "Emergency SOS triggered!"

type Handler struct {
	alarm    Alarm
	received metric.Int64Counter
}

func New(alarm Alarm) *Handler {
	h := &Handler{alarm: alarm}

	var err error
	h.received, err = meter.Int64Counter("sos.received",
		metric.WithDescription("Number of accepted SOS requests"))
	if err != nil {
		logger.Warn("failed to create sos counter", "error", err)
	}
	return h
}

// NewRouter wires the responder routes.
func NewRouter(alarm Alarm) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	h := New(alarm)
	h.RegisterRoutes(r)

	return otelhttp.NewHandler(r, "sos",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}))
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sos", h.handleSOS)
	r.Get("/sos", h.handleSOS)
	r.Get("/health", h.handleHealth)
}

func (h *Handler) handleSOS(w http.ResponseWriter, r *http.Request) {
	message, err := readMessage(r)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if h.alarm != nil {
		h.alarm.Trigger(r.Context(), message)
	}
	if h.received != nil {
		h.received.Add(r.Context(), 1, metric.WithAttributes(attribute.String("http.method", r.Method)))
	}
	logger.Info("SOS received", "request", middleware.GetReqID(r.Context()), "message", message)

	respondJSON(w, http.StatusOK, map[string]string{
		"status":           "success",
		"message":          "SOS alarm triggered",
		"received_message": message,
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readMessage takes the message from the JSON body or the form on POST and
// from the query on GET, falling back to DefaultMessage.
func readMessage(r *http.Request) (string, error) {
	if r.Method == http.MethodGet {
		return orDefault(r.URL.Query().Get("message")), nil
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var payload struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			return "", fmt.Errorf("invalid request body: %w", err)
		}
		return orDefault(payload.Message), nil
	}

	if err := r.ParseForm(); err != nil {
		return "", fmt.Errorf("invalid form: %w", err)
	}
	return orDefault(r.PostForm.Get("message")), nil
}

func orDefault(message string) string {
	if message == "" {
		return DefaultMessage
	}
	return message
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("failed to write response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"status": "error", "message": message})
}

// ListenAndServe serves handler on addr until ctx is cancelled.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("SOS server listening", "addr", addr)
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
