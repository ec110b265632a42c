// Command bb runs the Bulletin Board: the system's single source of
// truth, a relational store behind an HTTP surface.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	sharedapi "github.com/lokivote/cbr-voting/api"
	"github.com/lokivote/cbr-voting/bb/api"
	"github.com/lokivote/cbr-voting/bb/store"
	"github.com/lokivote/cbr-voting/log"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.LogLevel, cfg.LogOutput, nil)
	log.Info("starting bulletin board")

	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	st, err := store.Open(cfg.DSN)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer st.Close() //nolint:errcheck

	if _, err := api.New(&api.Config{
		Host:  cfg.Host,
		Port:  cfg.Port,
		Store: st,
		Peers: sharedapi.ServicePeers{VSURL: cfg.VSURL, RAURL: cfg.RAURL, TSURL: cfg.TSURL},
	}); err != nil {
		log.Fatalf("failed to start API: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Infow("received signal, shutting down", "signal", sig.String())
}
