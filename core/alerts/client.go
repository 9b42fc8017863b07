package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const DefaultURL = "http://localhost:5000/sos"

// Client forwards alert events to an SOS responder over HTTP.
type Client struct {
	url        string
	httpClient *http.Client
}

type ClientOption func(*Client)

func NewClient(url string, opts ...ClientOption) *Client {
	if url == "" {
		url = DefaultURL
	}

	client := &Client{
		url: url,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// StatusError is returned when the responder answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("sos endpoint responded with %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("sos endpoint responded with %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// Send posts the event as JSON. It makes a single attempt.
func (c *Client) Send(ctx context.Context, event Event) error {
	ctx, span := tracer.Start(ctx, "send alert")
	defer span.End()
	span.SetAttributes(
		attribute.String("request.url", c.url),
		attribute.Int("alert.message_length", len(event.Message)),
	)

	body, err := json.Marshal(event)
	if err != nil {
		err = fmt.Errorf("error marshalling alert: %w", err)
		span.RecordError(err)
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		err = fmt.Errorf("error creating HTTP request: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("error sending alert: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		responseBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		err := &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(responseBody))}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	logger.Info("alert delivered", "url", c.url, "status", resp.StatusCode)
	return nil
}
