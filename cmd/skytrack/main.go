// Command skytrack is a terminal flight tracker: search an airport code
// or city, then browse airborne aircraft as cards or on a radar map.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/unklstewy/skytrack/internal/app"
	"github.com/unklstewy/skytrack/internal/controller"
	"github.com/unklstewy/skytrack/internal/logging"
	"github.com/unklstewy/skytrack/pkg/config"
)

func main() {
	configPath := flag.String("config", "configs/config.json", "path to configuration file")
	here := flag.String("here", "", "fixed device position as lat,lon")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := app.ApplyHere(cfg, *here); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid -here: %v\n", err)
		os.Exit(1)
	}

	// The screen belongs to the UI: log to file only
	lg := logging.New(cfg.Logging.Level, cfg.Logging.Dir, "skytrack")
	defer lg.Close()

	svc, err := app.New(context.Background(), cfg, lg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer svc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.RunCleanup(ctx)

	state := app.InitialState(cfg)
	if state.Query != "" {
		state = controller.Reduce(state, controller.SearchStarted{Query: state.Query, Radius: state.Radius})
	}

	positions, headings := app.UserSources(cfg.UserLocation)
	m := newModel(svc.Controller, state, positions, headings, cfg.Map.RefreshInterval(), lg.Logger)

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		lg.Error("ui exited", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Log file: %s\n", lg.LogFile)
}
