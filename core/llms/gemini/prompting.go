package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/koscakluka/ema-campus/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Generate sends the history, preceded by the system prompt, to Gemini and
// returns the text of the first candidate.
func (c *Client) Generate(ctx context.Context, history []llms.Message, systemPrompt string) (string, error) {
	ctx, span := tracer.Start(ctx, "generate")
	defer span.End()

	response, err := c.generateContent(ctx, span, requestBody{
		Contents:         toContents(systemPrompt, history),
		GenerationConfig: generationConfig{GenerationConfig: c.generationConfig},
	})
	if err != nil {
		return "", err
	}

	text, ok := response.text()
	if !ok {
		err := &llms.NetworkError{Provider: providerName, Err: llms.ErrEmptyResponse}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	span.SetAttributes(attribute.Int("response.length", len(text)))
	return text, nil
}

func (c *Client) generateContent(ctx context.Context, span trace.Span, body requestBody) (*responseBody, error) {
	span.SetAttributes(
		attribute.String("request.model", c.model),
		attribute.Int("request.contents", len(body.Contents)),
	)

	if c.apiKey == "" {
		err := &llms.ConfigError{Provider: providerName, Err: llms.ErrMissingAPIKey}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	requestBodyBytes, err := json.Marshal(body)
	if err != nil {
		err = fmt.Errorf("error marshalling JSON: %w", err)
		span.RecordError(err)
		return nil, err
	}

	endpoint := c.endpoint()
	span.SetAttributes(attribute.String("request.url", endpoint.String()))

	query := endpoint.Query()
	query.Set("key", c.apiKey)
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(requestBodyBytes))
	if err != nil {
		err = fmt.Errorf("error creating HTTP request: %w", err)
		span.RecordError(err)
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			// The wrapped URL carries the API key.
			err = urlErr.Err
		}
		networkErr := &llms.NetworkError{Provider: providerName, Err: fmt.Errorf("error sending request: %w", err)}
		span.RecordError(networkErr)
		span.SetStatus(codes.Error, networkErr.Error())
		return nil, networkErr
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		networkErr := parseError(resp)
		span.SetAttributes(attribute.String("response.error", networkErr.Message))
		span.RecordError(networkErr)
		span.SetStatus(codes.Error, networkErr.Error())
		logger.Warn("gemini request failed", "status", resp.StatusCode, "error", networkErr.Message)
		return nil, networkErr
	}

	var response responseBody
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		networkErr := &llms.NetworkError{Provider: providerName, Err: fmt.Errorf("error unmarshalling JSON: %w", err)}
		span.RecordError(networkErr)
		span.SetStatus(codes.Error, networkErr.Error())
		return nil, networkErr
	}

	span.SetAttributes(
		attribute.Int("response.prompt_tokens", response.UsageMetadata.PromptTokenCount),
		attribute.Int("response.candidates_tokens", response.UsageMetadata.CandidatesTokenCount),
	)
	return &response, nil
}

func (c *Client) endpoint() *url.URL {
	endpoint, err := url.Parse(c.baseURL)
	if err != nil {
		endpoint, _ = url.Parse(DefaultBaseURL)
	}
	return endpoint.JoinPath("v1beta", "models", c.model+":generateContent")
}
