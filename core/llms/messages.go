package llms

// MessageRole describes who a message in the conversation is from
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Message is a single entry in the conversation history. Messages are never
// mutated after they have been appended to a history.
type Message struct {
	Role    MessageRole
	Content string
}

func UserMessage(content string) Message {
	return Message{Role: MessageRoleUser, Content: content}
}

func AssistantMessage(content string) Message {
	return Message{Role: MessageRoleAssistant, Content: content}
}
