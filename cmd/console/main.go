package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"rynx/cmd/console/ui"
)

func main() {
	backendURL := flag.String("backend", "http://127.0.0.1:9400", "backend base URL")
	flag.Parse()

	client := ui.NewClient(*backendURL)
	p := tea.NewProgram(ui.NewRootModel(client), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "console:", err)
		os.Exit(1)
	}
}
