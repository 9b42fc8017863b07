package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	subtitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Padding(1, 2)
	userStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	botStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("120")).Bold(true)
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	statusStyles = map[string]lipgloss.Style{
		"idle":       lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		"listening":  lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		"processing": lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
		"speaking":   lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
	}

	toastStyles = map[string]lipgloss.Style{
		"info":    lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		"warning": lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		"error":   lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	}
)
