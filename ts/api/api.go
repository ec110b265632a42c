// Package api implements the Tallying Server's HTTP surface: the BB
// key-exchange trigger and the notification, sent when an election is
// loaded, that starts the wait-then-tally background task.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	sharedapi "github.com/lokivote/cbr-voting/api"
	"github.com/lokivote/cbr-voting/client"
	"github.com/lokivote/cbr-voting/crypto/ecc"
	"github.com/lokivote/cbr-voting/crypto/elgamal"
	"github.com/lokivote/cbr-voting/crypto/svckey"
	"github.com/lokivote/cbr-voting/log"
	"github.com/lokivote/cbr-voting/ts/service"
	"github.com/lokivote/cbr-voting/types"
)

const (
	TSRespEndpoint          = "/ts_resp"
	ReceiveElectionEndpoint = "/receive-election"
	PingEndpoint            = "/ping"
)

// Config is the Tallying Server API's dependencies.
type Config struct {
	Host    string
	Port    int
	Group   ecc.Point
	KeyPath string
	Service *service.Service
	BB      *client.Client
}

// API is the Tallying Server's HTTP server.
type API struct {
	router  *chi.Mux
	group   ecc.Point
	keyPath string
	svc     *service.Service
	bb      *client.Client
}

// New builds a Tallying Server API bound to conf and starts serving in
// the background.
func New(conf *Config) (*API, error) {
	if conf == nil || conf.Service == nil || conf.BB == nil || conf.Group == nil {
		return nil, fmt.Errorf("ts/api: missing configuration")
	}
	a := &API{group: conf.Group, keyPath: conf.KeyPath, svc: conf.Service, bb: conf.BB}
	a.initRouter()
	go func() {
		log.Infow("starting tallying server API server", "host", conf.Host, "port", conf.Port)
		if err := http.ListenAndServe(fmt.Sprintf("%s:%d", conf.Host, conf.Port), a.router); err != nil {
			log.Fatalf("tallying server API server failed: %v", err)
		}
	}()
	return a, nil
}

// Router returns the chi router, for tests.
func (a *API) Router() *chi.Mux {
	return a.router
}

func (a *API) initRouter() {
	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Timeout(45 * time.Second))

	a.router.Get(PingEndpoint, func(w http.ResponseWriter, r *http.Request) { sharedapi.WriteOK(w) })
	a.router.Get(TSRespEndpoint, a.tsResp)
	a.router.Post(ReceiveElectionEndpoint, a.receiveElection)
}

// tsResp handles BB's notification that global parameters are available:
// it loads (or generates, on first boot) TS's own keypair and publishes
// the public half to BB.
func (a *API) tsResp(w http.ResponseWriter, r *http.Request) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), client.DefaultTimeout)
		defer cancel()

		sk, err := a.loadOrGenerateKey()
		if err != nil {
			log.Errorw(err, "ts: failed to obtain service keypair")
			return
		}
		pk := a.group.New()
		pk.ScalarBaseMult(sk)

		if err := a.bb.Post(ctx, "/receive-public-key", types.PublicKeyNotification{
			Service:   "ts",
			PublicKey: pk.Marshal(),
		}, nil); err != nil {
			log.Errorw(err, "ts: failed to publish public key to bulletin board")
		}
	}()
	sharedapi.WriteOK(w)
}

func (a *API) loadOrGenerateKey() (*big.Int, error) {
	sk, err := svckey.Load(a.keyPath)
	if err == nil {
		return sk, nil
	}
	if err != svckey.ErrNotExist {
		return nil, err
	}
	_, sk, err = elgamal.GenerateKey(a.group)
	if err != nil {
		return nil, err
	}
	if err := svckey.Save(a.keyPath, sk); err != nil {
		return nil, err
	}
	return sk, nil
}

// receiveElection starts the wait-then-tally background task for a newly
// loaded election.
func (a *API) receiveElection(w http.ResponseWriter, r *http.Request) {
	var n types.ElectionIDNotification
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		sharedapi.ErrMalformedBody.WithErr(err).Write(w)
		return
	}
	a.svc.ScheduleTally(n.ElectionID)
	sharedapi.WriteOK(w)
}
