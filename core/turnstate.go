package orchestration

// TurnState is the single source of truth for what the assistant is doing.
// Exactly one state is active at a time and every state other than Idle
// belongs to exactly one in-flight turn.
type TurnState int

const (
	StateIdle TurnState = iota
	StateListening
	StateProcessing
	StateSpeaking
)

func (s TurnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	case StateSpeaking:
		return "speaking"
	}
	return "unknown"
}
