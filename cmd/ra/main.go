// Command ra runs the Registration Authority: group-parameter bootstrap,
// per-election voter key generation and B0 construction.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lokivote/cbr-voting/client"
	"github.com/lokivote/cbr-voting/crypto/ecc/bn254"
	"github.com/lokivote/cbr-voting/log"
	"github.com/lokivote/cbr-voting/ra/api"
	"github.com/lokivote/cbr-voting/ra/keystore"
	"github.com/lokivote/cbr-voting/ra/service"
	"github.com/lokivote/cbr-voting/store/kv"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.LogLevel, cfg.LogOutput, nil)
	log.Info("starting registration authority")

	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	database, err := kv.Open("pebble", cfg.KeystoreDir)
	if err != nil {
		log.Fatalf("failed to open keystore: %v", err)
	}
	defer database.Close() //nolint:errcheck

	svc := service.New(
		keystore.New(kv.New(database)),
		bn254.New(),
		cfg.DataDir,
		client.New(cfg.BBURL),
		client.New(cfg.VSURL),
		client.New(cfg.TSURL),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := svc.Bootstrap(ctx); err != nil {
		log.Fatalf("bootstrap failed: %v", err)
	}

	if _, err := api.New(&api.Config{Host: cfg.Host, Port: cfg.Port, Service: svc}); err != nil {
		log.Fatalf("failed to start API: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Infow("received signal, shutting down", "signal", sig.String())
}
