package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/hilthontt/ghostline/internal/client"
	"github.com/hilthontt/ghostline/internal/infrastructure/env"
	"github.com/hilthontt/ghostline/internal/infrastructure/ws"
	"github.com/hilthontt/ghostline/internal/tui"
)

func main() {
	url := flag.String("url", env.GetString("GHOSTLINE_URL", "ws://localhost:3001/ws"), "relay websocket URL")
	room := flag.String("room", "main", "room to join")
	name := flag.String("name", "", "display name (generated when empty)")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := client.New(client.Options{
		URL:    *url,
		User:   ws.UserDTO{Username: *name},
		RoomID: *room,
	})
	defer c.Disconnect()

	// A failed first dial keeps retrying in the background; the UI shows it.
	_ = c.Connect(ctx)

	model := tui.NewModel(lipgloss.DefaultRenderer(), c)
	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		fmt.Println("Error running program:", err)
		os.Exit(1)
	}
}
