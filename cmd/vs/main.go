// Command vs runs the Voting Server: the per-voter ballot schedule, the
// ballot validate/obfuscate crypto, and the two local tables backing
// them.
package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lokivote/cbr-voting/client"
	"github.com/lokivote/cbr-voting/crypto/ecc"
	"github.com/lokivote/cbr-voting/crypto/ecc/bn254"
	"github.com/lokivote/cbr-voting/crypto/elgamal"
	"github.com/lokivote/cbr-voting/crypto/svckey"
	"github.com/lokivote/cbr-voting/log"
	"github.com/lokivote/cbr-voting/store/kv"
	"github.com/lokivote/cbr-voting/vs/api"
	"github.com/lokivote/cbr-voting/vs/clock"
	"github.com/lokivote/cbr-voting/vs/scheduler"
	"github.com/lokivote/cbr-voting/vs/store"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.LogLevel, cfg.LogOutput, nil)
	log.Info("starting voting server")

	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	database, err := kv.Open("pebble", cfg.KVDir)
	if err != nil {
		log.Fatalf("failed to open local store: %v", err)
	}
	defer database.Close() //nolint:errcheck

	st := store.New(kv.New(database))
	group := bn254.New()
	bb := client.New(cfg.BBURL)

	cachedClock := clock.NewCached()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go cachedClock.Run(ctx)

	schedulerCfg := scheduler.Config{
		VoteAmountMin:         cfg.VoteAmountMin,
		VoteAmountMax:         cfg.VoteAmountMax,
		MinInterval:           time.Duration(cfg.MinIntervalSeconds) * time.Second,
		FinalObfuscationDelay: time.Duration(cfg.FinalObfuscationDelay) * time.Second,
	}

	sk, err := loadOrGenerateKey(cfg.KeyPath, group)
	if err != nil {
		log.Fatalf("failed to obtain service keypair: %v", err)
	}

	sched := scheduler.New(st, bb, group, sk, cachedClock, schedulerCfg)

	if _, err := api.New(&api.Config{
		Host:      cfg.Host,
		Port:      cfg.Port,
		Group:     group,
		KeyPath:   cfg.KeyPath,
		Store:     st,
		Scheduler: sched,
		Clock:     cachedClock,
		BB:        bb,
	}); err != nil {
		log.Fatalf("failed to start API: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Infow("received signal, shutting down", "signal", sig.String())
}

// loadOrGenerateKey loads VS's persisted secret key, generating and
// persisting a fresh one on first boot.
func loadOrGenerateKey(path string, group ecc.Point) (*big.Int, error) {
	sk, err := svckey.Load(path)
	if err == nil {
		return sk, nil
	}
	if err != svckey.ErrNotExist {
		return nil, err
	}
	_, sk, err = elgamal.GenerateKey(group)
	if err != nil {
		return nil, err
	}
	if err := svckey.Save(path, sk); err != nil {
		return nil, err
	}
	return sk, nil
}
