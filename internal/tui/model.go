package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"

	orchestration "github.com/koscakluka/ema-campus/core"
	"github.com/koscakluka/ema-campus/core/llms"
)

const toastTimeout = 5 * time.Second

// Controller is the part of the orchestration controller the UI drives.
type Controller interface {
	Submit(ctx context.Context, input string) (*orchestration.Turn, error)
	StartListening(ctx context.Context) (*orchestration.Turn, error)
	StopListening() error
	StopSpeaking() error
	Ready(ctx context.Context) bool
}

type toast struct {
	id           int
	notification orchestration.Notification
}

type toastExpiredMsg int

type commandErrMsg struct{ err error }

// submittedMsg reports that the controller accepted the typed text.
type submittedMsg string

type Model struct {
	ctx        context.Context
	controller Controller
	title      string

	input    textinput.Model
	history  viewport.Model
	spinner  spinner.Model
	state    orchestration.TurnState
	subtitle string
	messages []llms.Message
	toasts   []toast
	nextID   int

	width  int
	height int
}

func New(ctx context.Context, controller Controller, title string) Model {
	input := textinput.New()
	input.Placeholder = "Ask about classes, events or facilities..."
	input.Prompt = "> "
	input.CharLimit = 500
	input.Focus()

	return Model{
		ctx:        ctx,
		controller: controller,
		title:      title,
		input:      input,
		history:    viewport.New(80, 10),
		spinner:    spinner.New(spinner.WithSpinner(spinner.Dot)),
		width:      80,
		height:     24,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.checkReady())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit()
		case tea.KeyCtrlL:
			return m, m.toggleListening()
		case tea.KeyCtrlS:
			return m, m.stopSpeaking()
		}

	case stateMsg:
		m.state = orchestration.TurnState(msg)
		return m, nil

	case subtitleMsg:
		m.subtitle = string(msg)
		return m, nil

	case chatMsg:
		m.messages = append(m.messages, llms.Message(msg))
		m.refreshHistory()
		return m, nil

	case notificationMsg:
		return m, m.pushToast(orchestration.Notification(msg))

	case submittedMsg:
		if strings.TrimSpace(m.input.Value()) == string(msg) {
			m.input.Reset()
		}
		return m, nil

	case commandErrMsg:
		return m, m.pushToast(orchestration.Notification{
			Level:   orchestration.NotificationWarning,
			Title:   "Busy",
			Message: describeCommandError(msg.err),
			Err:     msg.err,
		})

	case toastExpiredMsg:
		for i, t := range m.toasts {
			if t.id == int(msg) {
				m.toasts = append(m.toasts[:i], m.toasts[i+1:]...)
				break
			}
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.history, cmd = m.history.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	if m.state != orchestration.StateIdle {
		return m, m.pushToast(orchestration.Notification{
			Level:   orchestration.NotificationWarning,
			Title:   "Busy",
			Message: describeCommandError(orchestration.ErrTurnInProgress),
		})
	}

	ctx, controller := m.ctx, m.controller
	return m, func() tea.Msg {
		if _, err := controller.Submit(ctx, text); err != nil {
			return commandErrMsg{err: err}
		}
		return submittedMsg(text)
	}
}

func (m Model) toggleListening() tea.Cmd {
	ctx, controller := m.ctx, m.controller
	switch m.state {
	case orchestration.StateListening:
		return func() tea.Msg {
			if err := controller.StopListening(); err != nil {
				return commandErrMsg{err: err}
			}
			return nil
		}
	case orchestration.StateIdle:
		return func() tea.Msg {
			if _, err := controller.StartListening(ctx); err != nil {
				return commandErrMsg{err: err}
			}
			return nil
		}
	}
	return func() tea.Msg { return commandErrMsg{err: orchestration.ErrTurnInProgress} }
}

func (m Model) stopSpeaking() tea.Cmd {
	if m.state != orchestration.StateSpeaking {
		return nil
	}
	controller := m.controller
	return func() tea.Msg {
		if err := controller.StopSpeaking(); err != nil {
			return commandErrMsg{err: err}
		}
		return nil
	}
}

func (m Model) checkReady() tea.Cmd {
	ctx, controller := m.ctx, m.controller
	return func() tea.Msg {
		controller.Ready(ctx)
		return nil
	}
}

func (m *Model) pushToast(n orchestration.Notification) tea.Cmd {
	m.nextID++
	id := m.nextID
	m.toasts = append(m.toasts, toast{id: id, notification: n})
	return tea.Tick(toastTimeout, func(time.Time) tea.Msg { return toastExpiredMsg(id) })
}

func (m *Model) resize() {
	m.input.Width = max(m.width-4, 10)
	m.history.Width = m.width
	// Header, subtitle block, status line, input and toasts.
	m.history.Height = max(m.height-12, 3)
	m.refreshHistory()
}

func (m *Model) refreshHistory() {
	width := max(m.width-2, 10)

	var b strings.Builder
	for i, message := range m.messages {
		if i > 0 {
			b.WriteString("\n")
		}
		label := userStyle.Render("You")
		if message.Role == llms.MessageRoleAssistant {
			label = botStyle.Render("Assistant")
		}
		b.WriteString(label + "\n")
		b.WriteString(wordwrap.String(message.Content, width) + "\n")
	}
	m.history.SetContent(b.String())
	m.history.GotoBottom()
}

func (m Model) View() string {
	width := max(m.width, 20)

	header := titleStyle.Render(m.title)

	subtitle := m.subtitle
	if subtitle == "" {
		subtitle = " "
	}
	subtitleBlock := subtitleStyle.Render(wordwrap.String(subtitle, max(width-4, 10)))

	status := statusStyles[m.state.String()].Render(strings.ToUpper(m.state.String()))
	if m.state == orchestration.StateProcessing || m.state == orchestration.StateListening {
		status = m.spinner.View() + " " + status
	}
	help := helpStyle.Render("enter send • ctrl+l listen • ctrl+s stop speaking • esc quit")

	var toasts []string
	for _, t := range m.toasts {
		line := fmt.Sprintf("%s: %s", t.notification.Title, t.notification.Message)
		style, ok := toastStyles[string(t.notification.Level)]
		if !ok {
			style = toastStyles["info"]
		}
		toasts = append(toasts, style.Render(truncate.StringWithTail(line, uint(width), "…")))
	}

	sections := []string{header, m.history.View(), subtitleBlock, status + "  " + help}
	if len(toasts) > 0 {
		sections = append(sections, strings.Join(toasts, "\n"))
	}
	sections = append(sections, m.input.View())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func describeCommandError(err error) string {
	switch {
	case errors.Is(err, orchestration.ErrTurnInProgress):
		return "Please wait for the current response to finish."
	case errors.Is(err, orchestration.ErrClosed):
		return "The assistant has been shut down."
	case errors.Is(err, orchestration.ErrEmptyInput):
		return "Please type a message first."
	}
	return err.Error()
}
