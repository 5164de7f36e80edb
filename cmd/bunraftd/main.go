// Bunraftd is the Bunraft consensus daemon. It parses flags and BUNRAFT_*
// environment variables, recovers durable state, joins the static cluster,
// and runs until SIGINT/SIGTERM.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kartikbazzad/bunraft/internal/config"
	"github.com/kartikbazzad/bunraft/internal/logger"
	"github.com/kartikbazzad/bunraft/internal/server"
)

func main() {
	cfg := config.Default()
	if err := cfg.ParseFlags(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	srv, err := server.NewServer(cfg, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "start: %v\n", err)
		os.Exit(1)
	}
	logger.Info("bunraftd running",
		"id", cfg.ID, "addr", cfg.ListenAddr, "peers", len(cfg.Peers), "data", cfg.DataDir)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	if err := srv.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "close: %v\n", err)
		os.Exit(1)
	}
	logger.Info("bunraftd stopped")
}
