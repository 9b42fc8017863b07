package llm

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	orchestration "github.com/koscakluka/ema-campus/core"
	"github.com/koscakluka/ema-campus/core/llms"
)

//go:embed classifier.tmpl
var classifierSystemPrompt string

type LLM interface {
	Generate(ctx context.Context, history []llms.Message, systemPrompt string) (string, error)
}

type LLMWithStructuredPrompt interface {
	LLM
	GenerateStructured(ctx context.Context, history []llms.Message, systemPrompt string, out any) error
}

type Classification struct {
	Type string `json:"type" jsonschema:"title=Type,description=Whether the message reports an emergency,enum=normal,enum=emergency"`
}

// Classifier asks a language model whether a message is an emergency. When
// the model cannot be reached or answers with something unexpected the
// fallback classifier decides instead.
type Classifier struct {
	llm      LLM
	fallback orchestration.Classifier
}

type ClassifierOption func(*Classifier)

// WithFallback replaces the keyword classifier used when the model fails.
func WithFallback(fallback orchestration.Classifier) ClassifierOption {
	return func(c *Classifier) {
		c.fallback = fallback
	}
}

func NewClassifier(llm LLM, opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		llm:      llm,
		fallback: orchestration.KeywordClassifier{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Classifier) Classify(ctx context.Context, text string) orchestration.Classification {
	ctx, span := tracer.Start(ctx, "classify")
	defer span.End()

	classification, err := c.classify(ctx, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "classification failed")
		logger.Warn("falling back to keyword classification", "error", err)
		classification = c.fallback.Classify(ctx, text)
		span.SetAttributes(attribute.Bool("classification.fallback", true))
	}

	span.SetAttributes(attribute.Stringer("classification", classification))
	return classification
}

func (c *Classifier) classify(ctx context.Context, text string) (orchestration.Classification, error) {
	if c.llm == nil {
		return orchestration.ClassificationNormal, fmt.Errorf("no llm configured")
	}
	history := []llms.Message{llms.UserMessage(text)}

	switch llm := c.llm.(type) {
	case LLMWithStructuredPrompt:
		resp := Classification{}
		if err := llm.GenerateStructured(ctx, history, classifierSystemPrompt, &resp); err != nil {
			return orchestration.ClassificationNormal, fmt.Errorf("failed to prompt classifier: %w", err)
		}
		return toClassification(resp.Type)

	default:
		response, err := llm.Generate(ctx, history, classifierSystemPrompt)
		if err != nil {
			return orchestration.ClassificationNormal, fmt.Errorf("failed to prompt classifier: %w", err)
		}

		var resp Classification
		if err := json.Unmarshal([]byte(stripCodeFence(response)), &resp); err != nil {
			return orchestration.ClassificationNormal, fmt.Errorf("failed to unmarshal classification response: %w", err)
		}
		return toClassification(resp.Type)
	}
}

func toClassification(classification string) (orchestration.Classification, error) {
	switch strings.ToLower(strings.TrimSpace(classification)) {
	case "normal":
		return orchestration.ClassificationNormal, nil
	case "emergency":
		return orchestration.ClassificationEmergency, nil
	default:
		return orchestration.ClassificationNormal, fmt.Errorf("unknown classification: %q", classification)
	}
}

// stripCodeFence removes the markdown fence models like to wrap JSON in.
func stripCodeFence(response string) string {
	response = strings.TrimSpace(response)
	if !strings.HasPrefix(response, "```") {
		return response
	}
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	return strings.TrimSpace(response)
}
