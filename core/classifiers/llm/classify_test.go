package llm

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	orchestration "github.com/koscakluka/ema-campus/core"
	"github.com/koscakluka/ema-campus/core/llms"
)

type generalLLMStub struct {
	response string
	err      error
	prompts  []string
}

func (s *generalLLMStub) Generate(_ context.Context, history []llms.Message, systemPrompt string) (string, error) {
	s.prompts = append(s.prompts, systemPrompt)
	return s.response, s.err
}

type structuredLLMStub struct {
	generalLLMStub
	structured string
}

func (s *structuredLLMStub) GenerateStructured(_ context.Context, history []llms.Message, systemPrompt string, out any) error {
	if s.err != nil {
		return s.err
	}
	return json.Unmarshal([]byte(s.structured), out)
}

func TestClassifyUsesStructuredPromptWhenAvailable(t *testing.T) {
	llm := &structuredLLMStub{structured: `{"type":"emergency"}`}
	classifier := NewClassifier(llm)

	if got := classifier.Classify(context.Background(), "someone fainted near the library"); got != orchestration.ClassificationEmergency {
		t.Fatalf("expected emergency, got %s", got)
	}
	if len(llm.prompts) != 0 {
		t.Fatalf("expected general prompt not to be used")
	}
}

func TestClassifyParsesGeneralPromptResponse(t *testing.T) {
	tests := map[string]orchestration.Classification{
		`{"type":"normal"}`:                    orchestration.ClassificationNormal,
		"```json\n{\"type\": \"emergency\"}\n```": orchestration.ClassificationEmergency,
		`{"type":" Emergency "}`:               orchestration.ClassificationEmergency,
	}

	for response, want := range tests {
		llm := &generalLLMStub{response: response}
		if got := NewClassifier(llm).Classify(context.Background(), "help"); got != want {
			t.Errorf("response %q: expected %s, got %s", response, want, got)
		}
		if len(llm.prompts) != 1 || llm.prompts[0] != classifierSystemPrompt {
			t.Errorf("expected classifier prompt to be used")
		}
	}
}

func TestClassifyFallsBackToKeywords(t *testing.T) {
	tests := map[string]LLM{
		"error":        &generalLLMStub{err: errors.New("quota exceeded")},
		"invalid json": &generalLLMStub{response: "it is an emergency"},
		"unknown type": &structuredLLMStub{structured: `{"type":"maybe"}`},
		"no llm":       nil,
	}

	for name, llm := range tests {
		t.Run(name, func(t *testing.T) {
			classifier := NewClassifier(llm)
			if got := classifier.Classify(context.Background(), "EMERGENCY in lab 201"); got != orchestration.ClassificationEmergency {
				t.Fatalf("expected keyword fallback to flag emergency, got %s", got)
			}
			if got := classifier.Classify(context.Background(), "where is the library"); got != orchestration.ClassificationNormal {
				t.Fatalf("expected keyword fallback to return normal, got %s", got)
			}
		})
	}
}

func TestClassifyWithCustomFallback(t *testing.T) {
	classifier := NewClassifier(&generalLLMStub{err: errors.New("down")},
		WithFallback(orchestration.ClassifierFunc(func(context.Context, string) orchestration.Classification {
			return orchestration.ClassificationEmergency
		})),
	)

	if got := classifier.Classify(context.Background(), "hello"); got != orchestration.ClassificationEmergency {
		t.Fatalf("expected custom fallback to decide, got %s", got)
	}
}
