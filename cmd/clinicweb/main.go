package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nutriplan/clinicweb"
)

// version is set at build time via ldflags.
var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	cmd := "serve"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "serve":
		if err := serve(); err != nil {
			log.Fatal().Err(err).Msg("clinicweb: server stopped")
		}
	case "check":
		cfg, err := clinicweb.LoadConfig()
		if err == nil {
			err = cfg.Validate()
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("configuration ok")
	case "version":
		fmt.Printf("clinicweb %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func serve() error {
	cfg, err := clinicweb.LoadConfig()
	if err != nil {
		return err
	}
	logger := clinicweb.InitLogger(cfg.Env, cfg.LogLevel)

	app := clinicweb.New(cfg, clinicweb.DefaultViews(), clinicweb.WithLogger(logger))
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- app.Start() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("clinicweb: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.Echo.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func printUsage() {
	fmt.Println(`clinicweb - web frontend of the nutrition clinic

Usage:
  clinicweb [command]

Commands:
  serve      Start the web server (default)
  check      Validate the configuration from the environment
  version    Print the clinicweb version
  help       Show this help message

Configuration is read from the environment and an optional .env file.
API_BASE_URL and SESSION_SECRET are required.`)
}
