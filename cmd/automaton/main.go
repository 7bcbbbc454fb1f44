// Command automaton runs the standalone automaton actor (spec.md §4.6)
// against a YAML or JS manifest, exposing the UNIX socket line protocol.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/wisbric/kontrol/internal/telemetry"
	"github.com/wisbric/kontrol/pkg/automaton"
)

func main() {
	manifestPath := flag.String("manifest", "", "path to a YAML or JS automaton manifest")
	socketPath := flag.String("socket", "/var/run/automaton.sock", "UNIX socket path to serve the line protocol on")
	logFormat := flag.String("log-format", envOr("LOG_FORMAT", "json"), "log format: json or text")
	logLevel := flag.String("log-level", envOr("LOG_LEVEL", "info"), "log level")
	flag.Parse()

	logger := telemetry.NewLogger(*logFormat, *logLevel)
	slog.SetDefault(logger)

	if *manifestPath == "" {
		fmt.Fprintln(os.Stderr, "error: -manifest is required")
		os.Exit(1)
	}

	manifest, err := loadManifest(*manifestPath)
	if err != nil {
		logger.Error("loading manifest failed", "error", err)
		os.Exit(1)
	}

	machine := automaton.New(manifest, *socketPath, logger)

	srv, err := automaton.NewServer(*socketPath, machine, logger)
	if err != nil {
		logger.Error("binding socket failed", "error", err)
		os.Exit(1)
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("automaton listening", "socket", *socketPath, "initial", manifest.Initial)
	if err := machine.Run(ctx); err != nil {
		logger.Error("automaton stopped", "error", err)
		os.Exit(1)
	}
}

// loadManifest dispatches on the manifest's file extension: .js sources are
// evaluated by the embedded goja VM (spec.md §9's scripting redesign), every
// other extension is parsed as YAML.
func loadManifest(path string) (*automaton.Manifest, error) {
	if strings.HasSuffix(path, ".js") {
		return automaton.LoadJS(path)
	}
	return automaton.LoadYAML(path)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
