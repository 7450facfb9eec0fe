package surface

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"rynx/protocol"
)

// Lockscreen is the bubbletea user surface: a full-screen lock wall with a
// member login form while locked, and a floating timer while a session runs.
// It is its own event loop; the orchestrator talks to it only through
// program messages and reads only the Events channel back.
type Lockscreen struct {
	prog   *tea.Program
	events chan Event
	locked atomic.Bool
	closed atomic.Bool
}

type (
	setLockedMsg struct{ locked bool }
	showMsgMsg   struct{ text string }
	timerMsg     struct {
		seconds int64
		typ     protocol.SessionType
	}
	timerVisMsg struct{ visible bool }
	osActionMsg struct {
		action OSAction
		grace  time.Duration
	}
)

func NewLockscreen(deviceCode string) *Lockscreen {
	l := &Lockscreen{events: make(chan Event, 16)}
	m := newLockModel(deviceCode, l.events)
	l.prog = tea.NewProgram(m, tea.WithAltScreen())
	return l
}

// Run blocks running the TUI event loop; call from its own goroutine.
func (l *Lockscreen) Run() error {
	_, err := l.prog.Run()
	return err
}

func (l *Lockscreen) Lock() {
	l.locked.Store(true)
	l.prog.Send(setLockedMsg{locked: true})
}

func (l *Lockscreen) Unlock() {
	l.locked.Store(false)
	l.prog.Send(setLockedMsg{locked: false})
}

func (l *Lockscreen) IsLocked() bool { return l.locked.Load() }

func (l *Lockscreen) ShowMessage(text string) { l.prog.Send(showMsgMsg{text: text}) }

func (l *Lockscreen) UpdateTimer(seconds int64, typ protocol.SessionType) {
	l.prog.Send(timerMsg{seconds: seconds, typ: typ})
}

func (l *Lockscreen) ShowTimer() { l.prog.Send(timerVisMsg{visible: true}) }
func (l *Lockscreen) HideTimer() { l.prog.Send(timerVisMsg{visible: false}) }

func (l *Lockscreen) ExecuteOS(action OSAction, grace time.Duration) {
	l.prog.Send(osActionMsg{action: action, grace: grace})
}

func (l *Lockscreen) Events() <-chan Event { return l.events }

func (l *Lockscreen) Close() {
	if l.closed.CompareAndSwap(false, true) {
		l.prog.Quit()
		close(l.events)
	}
}

// lockModel is the tea.Model behind the lockscreen.
type lockModel struct {
	deviceCode string
	events     chan<- Event

	locked   bool
	killMode bool

	inputs   []textinput.Model // username, pin
	focusIdx int
	killIn   textinput.Model

	message  string
	osBanner string

	timerVisible bool
	seconds      int64
	sessType     protocol.SessionType

	width  int
	height int
}

const (
	inputUsername = iota
	inputPIN
)

func newLockModel(deviceCode string, events chan<- Event) lockModel {
	inputs := make([]textinput.Model, 2)

	inputs[inputUsername] = textinput.New()
	inputs[inputUsername].Placeholder = "username"
	inputs[inputUsername].Prompt = "Member: "
	inputs[inputUsername].Focus()

	inputs[inputPIN] = textinput.New()
	inputs[inputPIN].Placeholder = "PIN"
	inputs[inputPIN].Prompt = "PIN: "
	inputs[inputPIN].EchoMode = textinput.EchoPassword

	killIn := textinput.New()
	killIn.Prompt = "Authorization code: "
	killIn.EchoMode = textinput.EchoPassword

	return lockModel{
		deviceCode: deviceCode,
		events:     events,
		locked:     true,
		inputs:     inputs,
		killIn:     killIn,
	}
}

func (m lockModel) Init() tea.Cmd { return textinput.Blink }

func (m lockModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case setLockedMsg:
		m.locked = msg.locked
		m.killMode = false
		m.message = ""
		if m.locked {
			m.resetLogin()
		}
		return m, nil

	case showMsgMsg:
		m.message = msg.text
		return m, nil

	case timerMsg:
		m.seconds, m.sessType = msg.seconds, msg.typ
		return m, nil

	case timerVisMsg:
		m.timerVisible = msg.visible
		return m, nil

	case osActionMsg:
		if msg.action == OSCancel {
			m.osBanner = ""
		} else {
			m.osBanner = fmt.Sprintf("System will %s in %s", msg.action, msg.grace)
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m lockModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// ctrl+c never quits: the only sanctioned exit is the kill code.
	if msg.Type == tea.KeyCtrlC {
		return m, nil
	}

	if msg.Type == tea.KeyCtrlK {
		m.killMode = !m.killMode
		m.killIn.SetValue("")
		if m.killMode {
			m.killIn.Focus()
		}
		return m, nil
	}

	if m.killMode {
		if msg.Type == tea.KeyEnter {
			m.sendEvent(KillCode{Code: m.killIn.Value()})
			m.killIn.SetValue("")
			return m, nil
		}
		var cmd tea.Cmd
		m.killIn, cmd = m.killIn.Update(msg)
		return m, cmd
	}

	if !m.locked {
		if msg.Type == tea.KeyCtrlE {
			m.sendEvent(EndSession{})
		}
		return m, nil
	}

	switch msg.Type {
	case tea.KeyTab, tea.KeyShiftTab, tea.KeyUp, tea.KeyDown:
		if msg.Type == tea.KeyShiftTab || msg.Type == tea.KeyUp {
			m.focusIdx--
		} else {
			m.focusIdx++
		}
		if m.focusIdx < 0 {
			m.focusIdx = len(m.inputs) - 1
		}
		if m.focusIdx >= len(m.inputs) {
			m.focusIdx = 0
		}
		for i := range m.inputs {
			if i == m.focusIdx {
				m.inputs[i].Focus()
			} else {
				m.inputs[i].Blur()
			}
		}
		return m, nil

	case tea.KeyEnter:
		user := m.inputs[inputUsername].Value()
		pin := m.inputs[inputPIN].Value()
		if user != "" && pin != "" {
			m.sendEvent(MemberLogin{Username: user, PIN: pin})
			m.inputs[inputPIN].SetValue("")
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.inputs[m.focusIdx], cmd = m.inputs[m.focusIdx].Update(msg)
	return m, cmd
}

func (m *lockModel) resetLogin() {
	for i := range m.inputs {
		m.inputs[i].SetValue("")
		m.inputs[i].Blur()
	}
	m.focusIdx = 0
	m.inputs[0].Focus()
}

func (m *lockModel) sendEvent(ev Event) {
	// never block the UI loop on a slow consumer
	select {
	case m.events <- ev:
	default:
	}
}
