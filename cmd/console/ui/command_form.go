package ui

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"rynx/protocol"
)

type FormState int

const (
	StateSelecting FormState = iota
	StateFilling
)

type cmdItem struct {
	title, desc string
	index       int
}

func (i cmdItem) Title() string       { return i.title }
func (i cmdItem) Description() string { return i.desc }
func (i cmdItem) FilterValue() string { return i.title }

type CommandSentMsg struct{ Log string }

type FieldDef struct {
	Name        string
	Placeholder string
	Default     string
}

type CommandDef struct {
	Name        string
	Description string
	Type        protocol.CommandType
	Fields      []FieldDef
}

var availableCommands = []CommandDef{
	{
		Name:        "guest session",
		Description: "Start a prepaid guest session and unlock",
		Type:        protocol.CmdUnlock,
		Fields: []FieldDef{
			{Name: "minutes", Placeholder: "Prepaid minutes", Default: "60"},
		},
	},
	{
		Name:        "lock",
		Description: "Terminate any session and lock the device",
		Type:        protocol.CmdLock,
	},
	{
		Name:        "admin unlock",
		Description: "Unlock for maintenance without a session",
		Type:        protocol.CmdAdminUnlock,
		Fields: []FieldDef{
			{Name: "minutes", Placeholder: "Duration in minutes, 0 = unlimited", Default: "0"},
			{Name: "granted_by", Placeholder: "Operator name", Default: "admin"},
		},
	},
	{
		Name:        "message",
		Description: "Show a message on the device",
		Type:        protocol.CmdMessage,
		Fields: []FieldDef{
			{Name: "text", Placeholder: "Message text"},
		},
	},
	{
		Name:        "restart",
		Description: "Restart the device",
		Type:        protocol.CmdRestart,
	},
	{
		Name:        "shutdown",
		Description: "Shut the device down",
		Type:        protocol.CmdShutdown,
	},
}

type CommandFormModel struct {
	DeviceCode  string
	Client      *Client
	State       FormState
	List        list.Model
	Inputs      []textinput.Model
	Focused     int
	SelectedCmd int
	Status      string
	Err         error
}

func NewCommandFormModel(code string, client *Client, width, height int) CommandFormModel {
	items := make([]list.Item, 0, len(availableCommands))
	for i, c := range availableCommands {
		items = append(items, cmdItem{title: c.Name, desc: c.Description, index: i})
	}
	l := list.New(items, list.NewDefaultDelegate(), width, max(height, 10))
	l.Title = "Command for " + code
	l.SetShowHelp(false)

	return CommandFormModel{DeviceCode: code, Client: client, State: StateSelecting, List: l}
}

func (m *CommandFormModel) initInputs() {
	def := availableCommands[m.SelectedCmd]
	m.Inputs = make([]textinput.Model, len(def.Fields))
	for i, f := range def.Fields {
		ti := textinput.New()
		ti.Placeholder = f.Placeholder
		ti.CharLimit = 256
		if f.Default != "" {
			ti.SetValue(f.Default)
		}
		if i == 0 {
			ti.Focus()
		}
		m.Inputs[i] = ti
	}
	m.Focused = 0
}

func (m CommandFormModel) Init() tea.Cmd { return nil }

func (m CommandFormModel) Update(msg tea.Msg) (CommandFormModel, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case CommandSentMsg:
		m.Status = msg.Log
		m.Err = nil
		m.State = StateSelecting
		return m, nil
	case errMsg:
		m.Err = msg
		return m, nil
	}

	if m.State == StateSelecting {
		switch msg := msg.(type) {
		case tea.KeyMsg:
			switch msg.String() {
			case "enter":
				if i, ok := m.List.SelectedItem().(cmdItem); ok {
					m.SelectedCmd = i.index
					if len(availableCommands[i.index].Fields) == 0 {
						return m, m.submitCommand()
					}
					m.State = StateFilling
					m.initInputs()
					return m, textinput.Blink
				}
			case "esc":
				return m, func() tea.Msg { return BackToDashboardMsg{} }
			}
		case tea.WindowSizeMsg:
			m.List.SetWidth(msg.Width)
			m.List.SetHeight(msg.Height)
		}
		m.List, cmd = m.List.Update(msg)
		cmds = append(cmds, cmd)
	} else {
		switch msg := msg.(type) {
		case tea.KeyMsg:
			switch msg.String() {
			case "esc":
				m.State = StateSelecting
				return m, nil
			case "enter":
				if m.Focused == len(m.Inputs) {
					return m, m.submitCommand()
				}
				m.Focused++
				m.updateFocus()
				return m, nil
			case "tab", "down":
				m.Focused = (m.Focused + 1) % (len(m.Inputs) + 1)
				m.updateFocus()
				return m, nil
			case "shift+tab", "up":
				m.Focused--
				if m.Focused < 0 {
					m.Focused = len(m.Inputs)
				}
				m.updateFocus()
				return m, nil
			}
		}
		if m.Focused >= 0 && m.Focused < len(m.Inputs) {
			m.Inputs[m.Focused], cmd = m.Inputs[m.Focused].Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	return m, tea.Batch(cmds...)
}

func (m *CommandFormModel) updateFocus() {
	for i := range m.Inputs {
		if i == m.Focused {
			m.Inputs[i].Focus()
		} else {
			m.Inputs[i].Blur()
		}
	}
}

func (m CommandFormModel) submitCommand() tea.Cmd {
	def := availableCommands[m.SelectedCmd]
	values := make([]string, len(m.Inputs))
	for i := range m.Inputs {
		values[i] = m.Inputs[i].Value()
	}
	code := m.DeviceCode
	client := m.Client

	return func() tea.Msg {
		switch def.Type {
		case protocol.CmdUnlock:
			minutes, err := strconv.ParseInt(values[0], 10, 64)
			if err != nil || minutes <= 0 {
				return errMsg(fmt.Errorf("invalid minutes"))
			}
			seconds := minutes * 60
			sess, err := client.StartGuestSession(code, seconds)
			if err != nil {
				return errMsg(err)
			}
			payload := protocol.UnlockPayload{SessionID: sess.ID, TimeRemaining: &seconds}
			if err := client.SendCommand(code, protocol.CmdUnlock, payload); err != nil {
				return errMsg(err)
			}
			return CommandSentMsg{Log: fmt.Sprintf("guest session %s started", sess.ID)}

		case protocol.CmdAdminUnlock:
			minutes, err := strconv.ParseInt(values[0], 10, 64)
			if err != nil || minutes < 0 {
				return errMsg(fmt.Errorf("invalid minutes"))
			}
			payload := protocol.AdminUnlockPayload{DurationSeconds: minutes * 60, GrantedBy: values[1]}
			if err := client.SendCommand(code, def.Type, payload); err != nil {
				return errMsg(err)
			}
			return CommandSentMsg{Log: "admin unlock sent"}

		case protocol.CmdMessage:
			if values[0] == "" {
				return errMsg(fmt.Errorf("message text required"))
			}
			if err := client.SendCommand(code, def.Type, protocol.MessagePayload{Text: values[0]}); err != nil {
				return errMsg(err)
			}
			return CommandSentMsg{Log: "message sent"}

		default:
			if err := client.SendCommand(code, def.Type, nil); err != nil {
				return errMsg(err)
			}
			return CommandSentMsg{Log: string(def.Type) + " sent"}
		}
	}
}

func (m CommandFormModel) View() string {
	if m.State == StateSelecting {
		s := m.List.View()
		if m.Status != "" {
			s += "\n" + statusMessageStyle(m.Status)
		}
		if m.Err != nil {
			s += "\n" + errorMessageStyle(m.Err.Error())
		}
		s += "\n" + blurredStyle.Render("enter select · esc back")
		return s
	}

	def := availableCommands[m.SelectedCmd]
	var s string
	s += lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")).Render("Parameters: "+def.Name) + "\n\n"
	for i, f := range def.Fields {
		labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
		if i == m.Focused {
			labelStyle = labelStyle.Foreground(lipgloss.Color("205")).Bold(true)
		}
		s += labelStyle.Render(f.Name) + "\n"
		s += m.Inputs[i].View() + "\n\n"
	}
	s += m.renderButton("Submit", m.Focused == len(m.Inputs))
	if m.Err != nil {
		s += "\n\n" + errorMessageStyle(m.Err.Error())
	}
	return lipgloss.NewStyle().Padding(1, 2).Render(s)
}

func (m CommandFormModel) renderButton(text string, focused bool) string {
	if focused {
		return lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("205")).Padding(0, 3).Bold(true).Render(text)
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color("254")).Background(lipgloss.Color("240")).Padding(0, 3).Render(text)
}
