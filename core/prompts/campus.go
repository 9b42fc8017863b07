package prompts

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/invopop/jsonschema"
)

//go:embed campus.json
var defaultCampusData []byte

// Campus is the static campus data the assistant is allowed to talk about.
type Campus struct {
	Name       string                 `json:"name" jsonschema:"title=Name,description=Campus name used when addressing the student"`
	Classes    map[string]DaySchedule `json:"classes" jsonschema:"title=Classes,description=Timetable keyed by three letter weekday (Sun to Sat)"`
	Facilities []Facility             `json:"facilities,omitempty" jsonschema:"title=Facilities"`
	Events     []Event                `json:"events,omitempty" jsonschema:"title=Events"`
}

type DaySchedule struct {
	Day      string    `json:"day" jsonschema:"enum=Sun,enum=Mon,enum=Tue,enum=Wed,enum=Thu,enum=Fri,enum=Sat"`
	Subjects []Subject `json:"subjects"`
}

type Subject struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	Instructor string `json:"instructor"`
	Time       string `json:"time" jsonschema:"description=Human readable time range, e.g. 8:00 AM to 9:00 AM"`
	Room       string `json:"room"`
}

type Facility struct {
	Name     string `json:"name"`
	Timings  string `json:"timings"`
	Location string `json:"location"`
}

type Event struct {
	Title       string `json:"title"`
	Date        string `json:"date"`
	Location    string `json:"location"`
	Description string `json:"description,omitempty"`
}

// DefaultCampus returns the campus data bundled with the binary.
func DefaultCampus() *Campus {
	campus, err := ParseCampus(defaultCampusData)
	if err != nil {
		panic(fmt.Sprintf("bundled campus data is invalid: %v", err))
	}
	return campus
}

// LoadCampus reads campus data from path, an empty path returns the bundled
// campus.
func LoadCampus(path string) (*Campus, error) {
	if path == "" {
		return DefaultCampus(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read campus data: %w", err)
	}

	campus, err := ParseCampus(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return campus, nil
}

func ParseCampus(data []byte) (*Campus, error) {
	var campus Campus
	if err := json.Unmarshal(data, &campus); err != nil {
		return nil, fmt.Errorf("invalid campus data: %w", err)
	}
	if campus.Name == "" {
		return nil, fmt.Errorf("invalid campus data: name is required")
	}
	return &campus, nil
}

// Today returns the schedule for the weekday of now, if there is one.
func (c *Campus) Today(now time.Time) (DaySchedule, bool) {
	schedule, ok := c.Classes[Weekday(now)]
	return schedule, ok
}

// CampusSchema describes the campus data file.
func CampusSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{DoNotReference: true}
	schema := reflector.Reflect(&Campus{})
	schema.Title = "Campus data"
	return schema
}
