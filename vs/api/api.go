// Package api implements the Voting Server's HTTP surface: the BB
// key-exchange trigger, RA's ballot0list hand-off into the scheduler, and
// the voter-facing ballot submission endpoint, in the same chi router
// shape as bb/api and ra/api.
package api

import (
	"context"
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
	"github.com/lokivote/cbr-voting/types"
	"github.com/lokivote/cbr-voting/vs/clock"
	"github.com/lokivote/cbr-voting/vs/scheduler"
	"github.com/lokivote/cbr-voting/vs/store"
)

const (
	VSRespEndpoint        = "/vs_resp"
	Ballot0ListEndpoint   = "/ballot0list"
	ReceiveBallotEndpoint = "/receive-ballot"
	PingEndpoint          = "/ping"
)

// Config is the Voting Server API's dependencies.
type Config struct {
	Host      string
	Port      int
	Group     ecc.Point
	KeyPath   string
	Store     *store.Store
	Scheduler *scheduler.Scheduler
	Clock     clock.Clock
	BB        *client.Client
}

// API is the Voting Server's HTTP server.
type API struct {
	router    *chi.Mux
	group     ecc.Point
	keyPath   string
	store     *store.Store
	scheduler *scheduler.Scheduler
	clock     clock.Clock
	bb        *client.Client
}

// New builds a Voting Server API bound to conf and starts serving in the
// background.
func New(conf *Config) (*API, error) {
	if conf == nil {
		return nil, errMissing("missing configuration")
	}
	if conf.Store == nil || conf.Scheduler == nil || conf.BB == nil || conf.Group == nil {
		return nil, errMissing("missing store, scheduler, group or BB client")
	}
	a := &API{
		group:     conf.Group,
		keyPath:   conf.KeyPath,
		store:     conf.Store,
		scheduler: conf.Scheduler,
		clock:     conf.Clock,
		bb:        conf.BB,
	}
	a.initRouter()
	go func() {
		log.Infow("starting voting server API server", "host", conf.Host, "port", conf.Port)
		if err := http.ListenAndServe(addr(conf.Host, conf.Port), a.router); err != nil {
			log.Fatalf("voting server API server failed: %v", err)
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
	a.router.Get(VSRespEndpoint, a.vsResp)
	a.router.Post(Ballot0ListEndpoint, a.ballot0List)
	a.router.Post(ReceiveBallotEndpoint, a.receiveBallot)
}

// vsResp handles BB's notification that global parameters are available:
// it loads (or generates, on first boot) VS's own keypair and publishes
// the public half to BB.
func (a *API) vsResp(w http.ResponseWriter, r *http.Request) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), client.DefaultTimeout)
		defer cancel()

		sk, err := a.loadOrGenerateKey()
		if err != nil {
			log.Errorw(err, "vs: failed to obtain service keypair")
			return
		}
		pk := a.group.New()
		pk.ScalarBaseMult(sk)

		if err := a.bb.Post(ctx, "/receive-public-key", types.PublicKeyNotification{
			Service:   "vs",
			PublicKey: pk.Marshal(),
		}, nil); err != nil {
			log.Errorw(err, "vs: failed to publish public key to bulletin board")
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

// ballot0List receives RA's B₀ batch for a newly loaded election and hands
// it to the scheduler, which computes schedules, publishes the stamped
// batch to BB, and spawns the per-voter tasks.
func (a *API) ballot0List(w http.ResponseWriter, r *http.Request) {
	var batch []types.Ballot
	if err := decode(r, &batch); err != nil {
		sharedapi.ErrMalformedBody.WithErr(err).Write(w)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := a.scheduler.PrepareElection(ctx, batch); err != nil {
			log.Errorw(err, "vs: failed to prepare election")
		}
	}()
	sharedapi.WriteOK(w)
}

// receiveBallot is the voter-facing ballot submission endpoint: it accepts
// a ballot only while the election is active, stores it as the voter's
// single pending vote, and answers with the image filename the voter
// should memorise for their next scheduled slot.
func (a *API) receiveBallot(w http.ResponseWriter, r *http.Request) {
	var b types.SubmittedBallot
	if err := decode(r, &b); err != nil {
		sharedapi.ErrMalformedBody.WithErr(err).Write(w)
		return
	}

	var election types.Election
	if err := a.bb.Get(r.Context(), "/election", urlValues("election_id", b.ElectionID), &election); err != nil {
		sharedapi.ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}

	now := a.clock.Now()
	if now.Before(election.Start) || now.After(election.End) {
		sharedapi.WriteJSON(w, types.ReceiveBallotResponse{ImagePath: types.RejectedImagePath})
		return
	}

	if err := a.store.PutPending(b.VoterID, b.ElectionID, b); err != nil {
		sharedapi.ErrStorageFailure.WithErr(err).Write(w)
		return
	}

	entry, _, err := a.store.NextUnprocessed(b.VoterID, b.ElectionID)
	if err != nil {
		if err == store.ErrNotFound {
			sharedapi.WriteJSON(w, types.ReceiveBallotResponse{ImagePath: types.RejectedImagePath})
			return
		}
		sharedapi.ErrStorageFailure.WithErr(err).Write(w)
		return
	}
	sharedapi.WriteJSON(w, types.ReceiveBallotResponse{ImagePath: entry.ImagePath})
}
