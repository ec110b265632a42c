// Package api implements the Registration Authority's HTTP surface:
// the election load-file trigger, BB's key-ready fan-out target, and the
// voter-facing keypair lookup.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	sharedapi "github.com/lokivote/cbr-voting/api"
	"github.com/lokivote/cbr-voting/log"
	"github.com/lokivote/cbr-voting/ra/keystore"
	"github.com/lokivote/cbr-voting/ra/service"
	"github.com/lokivote/cbr-voting/types"
)

const (
	LoadFileEndpoint  = "/elections/load-file"
	KeyReadyEndpoint  = "/key_ready"
	VoterKeysEndpoint = "/voter-keys"
	PingEndpoint      = "/ping"
)

// Config is the Registration Authority API's dependencies.
type Config struct {
	Host    string
	Port    int
	Service *service.Service
}

// API is the Registration Authority's HTTP server.
type API struct {
	router *chi.Mux
	svc    *service.Service
}

// New builds a Registration Authority API and starts serving in the
// background.
func New(conf *Config) (*API, error) {
	if conf == nil || conf.Service == nil {
		return nil, fmt.Errorf("ra/api: missing configuration")
	}
	a := &API{svc: conf.Service}
	a.initRouter()
	go func() {
		log.Infow("starting registration authority API server", "host", conf.Host, "port", conf.Port)
		if err := http.ListenAndServe(fmt.Sprintf("%s:%d", conf.Host, conf.Port), a.router); err != nil {
			log.Fatalf("registration authority API server failed: %v", err)
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
	a.router.Post(LoadFileEndpoint, a.loadFile)
	a.router.Post(KeyReadyEndpoint, a.keyReady)
	a.router.Get(VoterKeysEndpoint, a.voterKeys)
}

func (a *API) loadFile(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		sharedapi.ErrMissingParameter.Withf("name").Write(w)
		return
	}
	electionID, err := a.svc.LoadFile(r.Context(), name)
	if err != nil {
		if err == service.ErrKeysNotReady {
			sharedapi.ErrKeysNotReady.Write(w)
			return
		}
		sharedapi.ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	sharedapi.WriteJSON(w, map[string]string{"status": "loaded", "electionId": electionID})
}

func (a *API) keyReady(w http.ResponseWriter, r *http.Request) {
	var n types.KeyReadyNotification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		sharedapi.ErrMalformedBody.WithErr(err).Write(w)
		return
	}
	a.svc.Ready.Mark(n.Service)
	log.Infow("key ready", "service", n.Service)
	sharedapi.WriteOK(w)
}

func (a *API) voterKeys(w http.ResponseWriter, r *http.Request) {
	voterID := r.URL.Query().Get("voter_id")
	electionID := r.URL.Query().Get("election_id")
	if voterID == "" || electionID == "" {
		sharedapi.ErrMissingParameter.Withf("voter_id and election_id required").Write(w)
		return
	}
	entry, err := a.svc.Keys.Get(voterID, electionID)
	if err != nil {
		if err == keystore.ErrNotFound {
			sharedapi.ErrVoterNotFound.Write(w)
			return
		}
		sharedapi.ErrStorageFailure.WithErr(err).Write(w)
		return
	}
	sharedapi.WriteJSON(w, types.VoterKeyPair{
		VoterID:    entry.VoterID,
		ElectionID: entry.ElectionID,
		SecretKey:  entry.SecretKey,
		PublicKey:  entry.PublicKey,
	})
}
