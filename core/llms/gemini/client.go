package gemini

import (
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-2.5-flash"

	providerName = "gemini"
)

type GenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Temperature:     0.7,
		TopK:            40,
		TopP:            0.95,
		MaxOutputTokens: 1024,
	}
}

// Client calls the Gemini generateContent endpoint. Each call is a single
// attempt, errors are returned to the caller without retrying.
type Client struct {
	apiKey           string
	model            string
	baseURL          string
	generationConfig GenerationConfig
	httpClient       *http.Client
}

type ClientOption func(*Client)

func NewClient(apiKey string, opts ...ClientOption) *Client {
	client := &Client{
		apiKey:           apiKey,
		model:            DefaultModel,
		baseURL:          DefaultBaseURL,
		generationConfig: DefaultGenerationConfig(),
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

func WithModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func WithGenerationConfig(config GenerationConfig) ClientOption {
	return func(c *Client) { c.generationConfig = config }
}

func (c *Client) Model() string { return c.model }
