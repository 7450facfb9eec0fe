package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

type state int

const (
	stateLogin state = iota
	stateDashboard
	stateCommandForm
)

type BackToDashboardMsg struct{}

type RootModel struct {
	State     state
	Client    *Client
	Login     LoginModel
	Dashboard DashboardModel
	Form      CommandFormModel
	Quitting  bool
	width     int
	height    int
}

func NewRootModel(client *Client) RootModel {
	return RootModel{
		State:  stateLogin,
		Client: client,
		Login:  NewLoginModel(client),
	}
}

func (m RootModel) Init() tea.Cmd {
	return m.Login.Init()
}

func (m RootModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.State == stateDashboard {
			m.Dashboard.Table.SetHeight(max(msg.Height-10, 5))
		}

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.Quitting = true
			return m, tea.Quit
		}

	case loginDoneMsg:
		m.State = stateDashboard
		m.Dashboard = NewDashboardModel(m.Client, m.width, m.height)
		return m, m.Dashboard.Init()

	case DeviceSelectedMsg:
		m.State = stateCommandForm
		m.Form = NewCommandFormModel(msg.Code, m.Client, m.width, max(m.height-6, 10))
		return m, m.Form.Init()

	case BackToDashboardMsg:
		m.State = stateDashboard
		return m, m.Dashboard.Init()
	}

	switch m.State {
	case stateLogin:
		login, cmd := m.Login.Update(msg)
		m.Login = login
		cmds = append(cmds, cmd)
	case stateDashboard:
		dash, cmd := m.Dashboard.Update(msg)
		m.Dashboard = dash
		cmds = append(cmds, cmd)
	case stateCommandForm:
		form, cmd := m.Form.Update(msg)
		m.Form = form
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m RootModel) View() string {
	if m.Quitting {
		return "Bye!\n"
	}
	switch m.State {
	case stateLogin:
		return m.Login.View()
	case stateDashboard:
		return m.Dashboard.View()
	case stateCommandForm:
		return m.Form.View()
	}
	return ""
}
