// Command ts runs the Tallying Server: wait for an election to close,
// aggregate and decrypt each candidate's vote count, and publish the
// result with a proof of correct decryption.
package main

import (
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
	"github.com/lokivote/cbr-voting/ts/api"
	"github.com/lokivote/cbr-voting/ts/service"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.LogLevel, cfg.LogOutput, nil)
	log.Info("starting tallying server")

	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	group := bn254.New()
	bb := client.New(cfg.BBURL)

	sk, err := loadOrGenerateKey(cfg.KeyPath, group)
	if err != nil {
		log.Fatalf("failed to obtain service keypair: %v", err)
	}

	svc := service.New(group, sk, bb, time.Duration(cfg.GracePeriodSeconds)*time.Second)

	if _, err := api.New(&api.Config{
		Host:    cfg.Host,
		Port:    cfg.Port,
		Group:   group,
		KeyPath: cfg.KeyPath,
		Service: svc,
		BB:      bb,
	}); err != nil {
		log.Fatalf("failed to start API: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Infow("received signal, shutting down", "signal", sig.String())
}

// loadOrGenerateKey loads TS's persisted secret key, generating and
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
