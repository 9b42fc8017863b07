package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
)

// Run shows the chat UI until the user quits or ctx is cancelled.
func Run(ctx context.Context, controller Controller, bridge *Bridge, title string) error {
	program := tea.NewProgram(New(ctx, controller, title), tea.WithAltScreen(), tea.WithContext(ctx))
	bridge.Attach(program)

	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}
