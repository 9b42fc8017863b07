package prompts

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"
)

//go:embed system.tmpl
var systemTemplateText string

//go:embed alert.tmpl
var alertTemplateText string

var (
	templateFuncs = template.FuncMap{"ordinal": ordinal}

	systemTemplate = template.Must(template.New("system").Funcs(templateFuncs).Parse(systemTemplateText))
	alertTemplate  = template.Must(template.New("alert").Funcs(templateFuncs).Parse(alertTemplateText))
)

// Student is the profile of the logged in student. It is only used to
// parameterize prompts.
type Student struct {
	Name     string
	USN      string
	Semester int
	Branch   string
}

type promptData struct {
	CampusName string
	Student    Student
	Day        string
	Classes    string
	Facilities string
	Events     string
}

// System builds the instructions for answering general campus questions.
func System(student Student, campus *Campus, now time.Time) (string, error) {
	if campus == nil {
		campus = DefaultCampus()
	}

	data := promptData{
		CampusName: campus.Name,
		Student:    student,
		Day:        Weekday(now),
	}

	var err error
	if data.Classes, err = marshal(campus.Classes); err != nil {
		return "", err
	}
	if len(campus.Facilities) > 0 {
		if data.Facilities, err = marshal(campus.Facilities); err != nil {
			return "", err
		}
	}
	if len(campus.Events) > 0 {
		if data.Events, err = marshal(campus.Events); err != nil {
			return "", err
		}
	}

	return execute(systemTemplate, data)
}

// Alert builds the instructions for summarizing an emergency into a short
// alert message.
func Alert(student Student, campus *Campus, now time.Time) (string, error) {
	if campus == nil {
		campus = DefaultCampus()
	}

	return execute(alertTemplate, promptData{
		CampusName: campus.Name,
		Student:    student,
		Day:        Weekday(now),
	})
}

// Weekday returns the three letter day name used as the timetable key.
func Weekday(t time.Time) string {
	return t.Weekday().String()[:3]
}

func execute(tmpl *template.Template, data promptData) (string, error) {
	var prompt strings.Builder
	if err := tmpl.Execute(&prompt, data); err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", tmpl.Name(), err)
	}
	return prompt.String(), nil
}

func marshal(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode campus data: %w", err)
	}
	return string(data), nil
}

func ordinal(n int) string {
	suffix := "th"
	switch n % 100 {
	case 11, 12, 13:
	default:
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return strconv.Itoa(n) + suffix
}
