package gemini

import "github.com/koscakluka/ema-campus/core/llms"

type content struct {
	Role  contentRole `json:"role"`
	Parts []part      `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type contentRole string

const (
	contentRoleUser  contentRole = "user"
	contentRoleModel contentRole = "model"
)

type requestBody struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	GenerationConfig
	ResponseMimeType   string `json:"responseMimeType,omitempty"`
	ResponseJSONSchema any    `json:"responseJsonSchema,omitempty"`
}

type responseBody struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

// toContents places the system prompt in front of the history as a user
// message, Gemini is not sent a separate system instruction.
func toContents(systemPrompt string, history []llms.Message) []content {
	contents := make([]content, 0, len(history)+1)
	if systemPrompt != "" {
		contents = append(contents, content{
			Role:  contentRoleUser,
			Parts: []part{{Text: systemPrompt}},
		})
	}

	for _, message := range history {
		role := contentRoleUser
		if message.Role == llms.MessageRoleAssistant {
			role = contentRoleModel
		}
		contents = append(contents, content{
			Role:  role,
			Parts: []part{{Text: message.Content}},
		})
	}

	return contents
}

func (r responseBody) text() (string, bool) {
	if len(r.Candidates) == 0 || len(r.Candidates[0].Content.Parts) == 0 {
		return "", false
	}
	return r.Candidates[0].Content.Parts[0].Text, true
}
