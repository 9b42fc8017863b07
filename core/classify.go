package orchestration

import (
	"context"
	"strings"
)

type Classification int

const (
	ClassificationNormal Classification = iota
	ClassificationEmergency
)

func (c Classification) String() string {
	if c == ClassificationEmergency {
		return "emergency"
	}
	return "normal"
}

type Classifier interface {
	Classify(ctx context.Context, text string) Classification
}

type ClassifierFunc func(ctx context.Context, text string) Classification

func (f ClassifierFunc) Classify(ctx context.Context, text string) Classification {
	return f(ctx, text)
}

var emergencyKeywords = []string{"emergency", "alert"}

// KeywordClassifier flags any input mentioning one of its keywords as an
// emergency. Matching is case-insensitive substring search, so "alerted"
// and "non-emergency" both match.
type KeywordClassifier struct {
	Keywords []string
}

func (k KeywordClassifier) Classify(_ context.Context, text string) Classification {
	keywords := k.Keywords
	if len(keywords) == 0 {
		keywords = emergencyKeywords
	}

	lowered := strings.ToLower(strings.TrimSpace(text))
	for _, keyword := range keywords {
		if strings.Contains(lowered, strings.ToLower(keyword)) {
			return ClassificationEmergency
		}
	}
	return ClassificationNormal
}
