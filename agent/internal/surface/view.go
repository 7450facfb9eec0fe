package surface

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"rynx/protocol"
)

var (
	wallStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			Padding(1, 4).
			Align(lipgloss.Center)
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203"))
	codeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	msgStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bannerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	timerStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 2).
			Foreground(lipgloss.Color("42"))
)

func (m lockModel) View() string {
	var b strings.Builder

	if m.osBanner != "" {
		b.WriteString(bannerStyle.Render(m.osBanner) + "\n\n")
	}

	if m.killMode {
		b.WriteString(titleStyle.Render("OPERATOR ACCESS") + "\n\n")
		b.WriteString(m.killIn.View() + "\n")
	} else if m.locked {
		b.WriteString(titleStyle.Render("THIS PC IS LOCKED") + "\n")
		b.WriteString(codeStyle.Render(m.deviceCode) + "\n\n")
		b.WriteString("Log in with your member account\nor ask the counter for time.\n\n")
		for i := range m.inputs {
			b.WriteString(m.inputs[i].View() + "\n")
		}
	} else {
		b.WriteString(titleStyle.Render("SESSION ACTIVE") + "\n\n")
		if m.timerVisible {
			b.WriteString(timerStyle.Render(m.timerText()) + "\n\n")
		}
		b.WriteString(codeStyle.Render("ctrl+e ends the session") + "\n")
	}

	if m.message != "" {
		b.WriteString("\n" + msgStyle.Render(m.message) + "\n")
	}

	wall := wallStyle.Render(b.String())
	if m.width > 0 && m.height > 0 {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, wall)
	}
	return wall
}

func (m lockModel) timerText() string {
	h := m.seconds / 3600
	mm := (m.seconds % 3600) / 60
	ss := m.seconds % 60
	if m.sessType == protocol.SessionMember {
		return fmt.Sprintf("used %02d:%02d:%02d", h, mm, ss)
	}
	return fmt.Sprintf("left %02d:%02d:%02d", h, mm, ss)
}
