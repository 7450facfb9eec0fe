package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"rynx/protocol"
)

type devicesMsg []protocol.Device

type DeviceSelectedMsg struct{ Code string }

type DashboardModel struct {
	Client  *Client
	Table   table.Model
	Devices []protocol.Device
	Status  string
	Err     error
}

func NewDashboardModel(client *Client, width, height int) DashboardModel {
	columns := []table.Column{
		{Title: "Code", Width: 16},
		{Title: "Status", Width: 12},
		{Title: "Locked", Width: 8},
		{Title: "Branch", Width: 8},
		{Title: "Last Seen", Width: 20},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(max(height-10, 5)),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return DashboardModel{Client: client, Table: t}
}

func (m DashboardModel) Init() tea.Cmd { return m.refreshCmd() }

func (m DashboardModel) refreshCmd() tea.Cmd {
	return func() tea.Msg {
		devices, err := m.Client.Devices()
		if err != nil {
			return errMsg(err)
		}
		return devicesMsg(devices)
	}
}

func (m DashboardModel) Update(msg tea.Msg) (DashboardModel, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "r":
			return m, m.refreshCmd()
		case "a":
			// approve: assign the default branch and rate
			if row := m.Table.SelectedRow(); len(row) > 0 {
				code := row[0]
				return m, func() tea.Msg {
					if err := m.Client.Assign(code, 1, 1); err != nil {
						return errMsg(err)
					}
					return statusMsg(fmt.Sprintf("assigned %s", code))
				}
			}
		case "enter":
			if row := m.Table.SelectedRow(); len(row) > 0 {
				code := row[0]
				return m, func() tea.Msg { return DeviceSelectedMsg{Code: code} }
			}
		case "q":
			return m, tea.Quit
		}

	case devicesMsg:
		m.Err = nil
		m.Devices = msg
		rows := make([]table.Row, 0, len(msg))
		for _, d := range msg {
			branch := "-"
			if d.BranchID != nil {
				branch = fmt.Sprintf("%d", *d.BranchID)
			}
			rows = append(rows, table.Row{
				d.Code,
				string(d.Status),
				fmt.Sprintf("%t", d.IsLocked),
				branch,
				d.LastHeartbeat.Format(time.DateTime),
			})
		}
		m.Table.SetRows(rows)

	case statusMsg:
		m.Status = string(msg)
		return m, m.refreshCmd()

	case errMsg:
		m.Err = msg
	}

	m.Table, cmd = m.Table.Update(msg)
	return m, cmd
}

type statusMsg string

func (m DashboardModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Rynx Console - Devices") + "\n\n")
	b.WriteString(m.Table.View())
	b.WriteString("\n\n")
	b.WriteString(blurredStyle.Render("r refresh · a assign · enter command · q quit"))
	if m.Status != "" {
		b.WriteString("\n" + statusMessageStyle(m.Status))
	}
	if m.Err != nil {
		b.WriteString("\n" + errorMessageStyle(m.Err.Error()))
	}
	return b.String()
}
