package alerts

import (
	"encoding/json"
	"time"
)

// Event is a single emergency forwarded to the responder endpoint. It is
// built once per emergency and discarded after it has been sent.
type Event struct {
	Message   string
	Timestamp time.Time
}

func NewEvent(message string, timestamp time.Time) Event {
	return Event{Message: message, Timestamp: timestamp}
}

type eventBody struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventBody{
		Message:   e.Message,
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
	})
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var body eventBody
	if err := json.Unmarshal(data, &body); err != nil {
		return err
	}

	e.Message = body.Message
	e.Timestamp = time.Time{}
	if body.Timestamp != "" {
		timestamp, err := time.Parse(time.RFC3339Nano, body.Timestamp)
		if err != nil {
			return err
		}
		e.Timestamp = timestamp
	}
	return nil
}
