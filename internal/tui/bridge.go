package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	orchestration "github.com/koscakluka/ema-campus/core"
	"github.com/koscakluka/ema-campus/core/llms"
)

type stateMsg orchestration.TurnState

type subtitleMsg string

type chatMsg llms.Message

type notificationMsg orchestration.Notification

// Bridge forwards controller callbacks into a running program. Messages
// sent before a program is attached are queued and delivered on Attach.
type Bridge struct {
	mu      sync.Mutex
	program *tea.Program
	queued  []tea.Msg
}

func NewBridge() *Bridge {
	return &Bridge{}
}

func (b *Bridge) Attach(program *tea.Program) {
	b.mu.Lock()
	queued := b.queued
	b.queued = nil
	b.program = program
	b.mu.Unlock()

	for _, msg := range queued {
		program.Send(msg)
	}
}

func (b *Bridge) send(msg tea.Msg) {
	b.mu.Lock()
	program := b.program
	if program == nil {
		b.queued = append(b.queued, msg)
	}
	b.mu.Unlock()

	if program != nil {
		program.Send(msg)
	}
}

// ControllerOptions wires the controller callbacks and notification sink to
// the bridge.
func (b *Bridge) ControllerOptions() []orchestration.ControllerOption {
	return []orchestration.ControllerOption{
		orchestration.WithStateCallback(func(state orchestration.TurnState) { b.send(stateMsg(state)) }),
		orchestration.WithSubtitleCallback(func(subtitle string) { b.send(subtitleMsg(subtitle)) }),
		orchestration.WithMessageCallback(func(message llms.Message) { b.send(chatMsg(message)) }),
		orchestration.WithNotificationSink(b),
	}
}

func (b *Bridge) Notify(n orchestration.Notification) {
	b.send(notificationMsg(n))
}
