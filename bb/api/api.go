// Package api implements the Bulletin Board's HTTP surface: a chi
// router over bb/store (cors, request logging, recoverer, throttle and
// timeout middleware), plus fire-and-forget
// notification fan-out to RA/VS/TS via the shared client package.
package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	sharedapi "github.com/lokivote/cbr-voting/api"
	"github.com/lokivote/cbr-voting/bb/store"
	"github.com/lokivote/cbr-voting/client"
	"github.com/lokivote/cbr-voting/log"
)

// Config is the Bulletin Board API's dependencies: its store and the peer
// base URLs it fans notifications out to.
type Config struct {
	Host  string
	Port  int
	Store *store.Store
	Peers sharedapi.ServicePeers
}

// API is the Bulletin Board's HTTP server.
type API struct {
	router *chi.Mux
	store  *store.Store
	peers  sharedapi.ServicePeers
	vs     *client.Client
	ts     *client.Client
	ra     *client.Client
}

// New builds a Bulletin Board API bound to conf and starts serving in the
// background.
func New(conf *Config) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("bb/api: missing configuration")
	}
	if conf.Store == nil {
		return nil, fmt.Errorf("bb/api: missing store instance")
	}
	a := &API{
		store: conf.Store,
		peers: conf.Peers,
		vs:    client.New(conf.Peers.VSURL),
		ts:    client.New(conf.Peers.TSURL),
		ra:    client.New(conf.Peers.RAURL),
	}
	a.initRouter()
	go func() {
		log.Infow("starting bulletin board API server", "host", conf.Host, "port", conf.Port)
		if err := http.ListenAndServe(fmt.Sprintf("%s:%d", conf.Host, conf.Port), a.router); err != nil {
			log.Fatalf("bulletin board API server failed: %v", err)
		}
	}()
	return a, nil
}

// Router returns the chi router, for tests.
func (a *API) Router() *chi.Mux {
	return a.router
}

var bufPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

func (a *API) initRouter() {
	logHandler := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if log.Level() != log.LogLevelDebug || r.URL.Path == PingEndpoint {
				next.ServeHTTP(w, r)
				return
			}
			buf := bufPool.Get().(*bytes.Buffer)
			buf.Reset()
			bodyBytes, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, "unable to read request body", http.StatusInternalServerError)
				bufPool.Put(buf)
				return
			}
			buf.Write(bodyBytes)
			log.Debugw("api request",
				"method", r.Method,
				"url", r.URL.String(),
				"body", strings.ReplaceAll(buf.String(), "\"", ""),
			)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			bufPool.Put(buf)
			next.ServeHTTP(w, r)
		})
	}

	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)
	a.router.Use(logHandler)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(100))
	a.router.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	a.router.Use(middleware.Timeout(45 * time.Second))

	a.router.Get(PingEndpoint, func(w http.ResponseWriter, r *http.Request) { sharedapi.WriteOK(w) })

	a.router.Get(ElectionEndpoint, a.election)
	a.router.Get(CandidatesEndpoint, a.candidates)
	a.router.Get(VotersEndpoint, a.voters)
	a.router.Get(ElgamalParamsEndpoint, a.elgamalParams)
	a.router.Post(ReceiveParamsEndpoint, a.receiveParams)
	a.router.Post(ReceivePublicKeyEndpoint, a.receivePublicKey)
	a.router.Post(ReceiveElectionEndpoint, a.receiveElection)
	a.router.Post(ReceiveBallot0Endpoint, a.receiveBallot0)
	a.router.Post(ReceiveBallotEndpoint, a.receiveBallot)
	a.router.Post(ReceiveVoterKeysEndpoint, a.receiveVoterKeys)
	a.router.Post(SendElectionStartdateEndpoint, a.sendElectionStartdate)
	a.router.Get(ElectionsForVoterEndpoint, a.electionsForVoter)
	a.router.Get(PublicKeysTSVSEndpoint, a.publicKeysTSVS)
	a.router.Get(VoterPublicKeyEndpoint, a.voterPublicKey)
	a.router.Get(LastPreviousLastEndpoint, a.lastPreviousLast)
	a.router.Get(CBRLengthEndpoint, a.cbrLength)
	a.router.Get(CBRForVoterEndpoint, a.cbrForVoter)
	a.router.Get(FetchBallotHashesEndpoint, a.fetchBallotHashes)
	a.router.Get(FetchLastBallotCTVsEndpoint, a.fetchLastBallotCTVs)
	a.router.Post(ReceiveElectionResultEndpoint, a.receiveElectionResult)
	a.router.Get(ElectionResultEndpoint, a.electionResult)
	a.router.Get(BallotEndpoint, a.ballotByImage)
	a.router.Get(PrecedingBallotsEndpoint, a.precedingBallots)
}
