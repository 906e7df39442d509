package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/unklstewy/skytrack/internal/app"
	"github.com/unklstewy/skytrack/internal/controller"
	"github.com/unklstewy/skytrack/internal/logging"
	"github.com/unklstewy/skytrack/pkg/config"
)

var (
	// Version information (set by build flags)
	version = "dev"
	commit  = "unknown"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "configs/config.json", "Path to configuration file")
	here := flag.String("here", "", "Fixed device position as lat,lon")
	showVersion := flag.Bool("version", false, "Show version information")
	showHelp := flag.Bool("help", false, "Show help information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("skytrack-console version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}
	if *showHelp {
		printHelp()
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := app.ApplyHere(cfg, *here); err != nil {
		log.Fatalf("Invalid -here: %v", err)
	}

	// Records go to the log file and are mirrored into the log panel
	logs := NewLogManager(200)
	level, _ := logging.ParseLevel(cfg.Logging.Level)
	lg := logging.New(cfg.Logging.Level, cfg.Logging.Dir, "skytrack-console", logs.Handler(level))
	defer lg.Close()
	logs.Info("Log file: %s", lg.LogFile)

	svc, err := app.New(context.Background(), cfg, lg.Logger)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer svc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.RunCleanup(ctx)

	store := controller.NewStore(svc.Controller, app.InitialState(cfg), lg.Logger)
	positions, headings := app.UserSources(cfg.UserLocation)

	console := NewApp(AppConfig{
		Store:     store,
		Logs:      logs,
		Logger:    lg.Logger,
		Positions: positions,
		Headings:  headings,
		Refresh:   cfg.Map.RefreshInterval(),
	})

	if err := console.Run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

// printHelp prints usage information
func printHelp() {
	fmt.Println("skytrack-console - multi-panel terminal flight tracker")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  skytrack-console [options]")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        Path to configuration file (default: configs/config.json)")
	fmt.Println("  -here lat,lon")
	fmt.Println("        Fixed device position shown on the map")
	fmt.Println("  -version")
	fmt.Println("        Show version information")
	fmt.Println("  -help")
	fmt.Println("        Show this help message")
	fmt.Println()
	fmt.Println("KEYBOARD SHORTCUTS:")
	fmt.Println("  ENTER          Search (in the search field)")
	fmt.Println("  TAB            Cycle search, radius and flights")
	fmt.Println("  /              Focus the search field")
	fmt.Println("  v              Toggle list and map")
	fmt.Println("  ↑/↓            Select a flight")
	fmt.Println("  u              Toggle your location on the map")
	fmt.Println("  g              Refresh now")
	fmt.Println("  q or Ctrl+C    Quit")
}
