package config

import (
	"strings"
)

type Requirement int

const (
	RequireGemini Requirement = iota
	RequireDeepgram
	RequireStudent
)

// Error lists every setting a command needs but did not get.
type Error struct {
	Missing []string
}

func (e *Error) Error() string {
	return "missing configuration: " + strings.Join(e.Missing, ", ")
}

// Validate checks that everything the requirements need is set.
func (c *Config) Validate(requirements ...Requirement) error {
	var missing []string
	for _, requirement := range requirements {
		switch requirement {
		case RequireGemini:
			if c.Gemini.APIKey == "" {
				missing = append(missing, "GEMINI_API_KEY")
			}
		case RequireDeepgram:
			if c.Deepgram.APIKey == "" {
				missing = append(missing, "DEEPGRAM_API_KEY")
			}
		case RequireStudent:
			if c.Student.Name == "" {
				missing = append(missing, "STUDENT_NAME")
			}
			if c.Student.USN == "" {
				missing = append(missing, "STUDENT_USN")
			}
		}
	}

	if len(missing) > 0 {
		return &Error{Missing: missing}
	}
	return nil
}
