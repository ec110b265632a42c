package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	sharedapi "github.com/lokivote/cbr-voting/api"
	"github.com/lokivote/cbr-voting/bb/store"
	"github.com/lokivote/cbr-voting/client"
	"github.com/lokivote/cbr-voting/types"
)

func decode(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func (a *API) candidates(w http.ResponseWriter, r *http.Request) {
	electionID := r.URL.Query().Get("election_id")
	if electionID == "" {
		sharedapi.ErrMissingParameter.Withf("election_id").Write(w)
		return
	}
	cands, err := a.store.Candidates(electionID)
	if err != nil {
		sharedapi.ErrStorageFailure.WithErr(err).Write(w)
		return
	}
	sharedapi.WriteJSON(w, cands)
}

func (a *API) voters(w http.ResponseWriter, r *http.Request) {
	electionID := r.URL.Query().Get("election_id")
	if electionID == "" {
		sharedapi.ErrMissingParameter.Withf("election_id").Write(w)
		return
	}
	voters, err := a.store.Voters(electionID)
	if err != nil {
		sharedapi.ErrStorageFailure.WithErr(err).Write(w)
		return
	}
	sharedapi.WriteJSON(w, voters)
}

func (a *API) elgamalParams(w http.ResponseWriter, r *http.Request) {
	g, err := a.store.GlobalInfo()
	if err != nil {
		if err == store.ErrNotFound {
			sharedapi.ErrResourceNotFound.Write(w)
			return
		}
		sharedapi.ErrStorageFailure.WithErr(err).Write(w)
		return
	}
	sharedapi.WriteJSON(w, g.GroupParams)
}

// receiveParams persists group parameters freshly published by RA and fans
// the news out to VS and TS so each can generate and publish its own
// keypair.
func (a *API) receiveParams(w http.ResponseWriter, r *http.Request) {
	var p types.GroupParams
	if err := decode(r, &p); err != nil {
		sharedapi.ErrMalformedBody.WithErr(err).Write(w)
		return
	}
	if err := a.store.SetGroupParams(p); err != nil {
		sharedapi.ErrStorageFailure.WithErr(err).Write(w)
		return
	}
	client.Notify("vs:/vs_resp", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), client.DefaultTimeout)
		defer cancel()
		return a.vs.Get(ctx, "/vs_resp", nil, nil)
	})
	client.Notify("ts:/ts_resp", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), client.DefaultTimeout)
		defer cancel()
		return a.ts.Get(ctx, "/ts_resp", nil, nil)
	})
	sharedapi.WriteOK(w)
}

// receivePublicKey persists a service's public key and notifies RA, which
// tracks readiness of both keys before allowing an election to load.
func (a *API) receivePublicKey(w http.ResponseWriter, r *http.Request) {
	var n types.PublicKeyNotification
	if err := decode(r, &n); err != nil {
		sharedapi.ErrMalformedBody.WithErr(err).Write(w)
		return
	}
	if err := a.store.SetPublicKey(n.Service, n.PublicKey); err != nil {
		sharedapi.ErrStorageFailure.WithErr(err).Write(w)
		return
	}
	client.Notify("ra:/key_ready", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), client.DefaultTimeout)
		defer cancel()
		return a.ra.Post(ctx, "/key_ready", types.KeyReadyNotification{Service: n.Service}, nil)
	})
	sharedapi.WriteOK(w)
}

func (a *API) receiveElection(w http.ResponseWriter, r *http.Request) {
	var e types.Election
	if err := decode(r, &e); err != nil {
		sharedapi.ErrMalformedBody.WithErr(err).Write(w)
		return
	}
	if err := a.store.InsertElection(e); err != nil {
		sharedapi.ErrStorageFailure.WithErr(err).Write(w)
		return
	}
	sharedapi.WriteOK(w)
}

func (a *API) receiveBallot0(w http.ResponseWriter, r *http.Request) {
	var batch []types.Ballot
	if err := decode(r, &batch); err != nil {
		sharedapi.ErrMalformedBody.WithErr(err).Write(w)
		return
	}
	for _, b := range batch {
		if err := a.store.InsertBallot(b); err != nil {
			sharedapi.ErrStorageFailure.WithErr(err).Write(w)
			return
		}
	}
	sharedapi.WriteOK(w)
}

func (a *API) receiveBallot(w http.ResponseWriter, r *http.Request) {
	var b types.Ballot
	if err := decode(r, &b); err != nil {
		sharedapi.ErrMalformedBody.WithErr(err).Write(w)
		return
	}
	if err := a.store.InsertBallot(b); err != nil {
		sharedapi.ErrStorageFailure.WithErr(err).Write(w)
		return
	}
	sharedapi.WriteOK(w)
}

func (a *API) receiveVoterKeys(w http.ResponseWriter, r *http.Request) {
	var entries []types.VoterKeyEntry
	if err := decode(r, &entries); err != nil {
		sharedapi.ErrMalformedBody.WithErr(err).Write(w)
		return
	}
	if err := a.store.InsertVoterKeys(entries); err != nil {
		sharedapi.ErrStorageFailure.WithErr(err).Write(w)
		return
	}
	sharedapi.WriteOK(w)
}

// sendElectionStartdate relays the election id to TS so it can schedule its
// wait-then-tally task.
func (a *API) sendElectionStartdate(w http.ResponseWriter, r *http.Request) {
	var n types.ElectionIDNotification
	if err := decode(r, &n); err != nil {
		sharedapi.ErrMalformedBody.WithErr(err).Write(w)
		return
	}
	client.Notify("ts:/receive-election", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), client.DefaultTimeout)
		defer cancel()
		return a.ts.Post(ctx, "/receive-election", n, nil)
	})
	sharedapi.WriteOK(w)
}

func (a *API) election(w http.ResponseWriter, r *http.Request) {
	electionID := r.URL.Query().Get("election_id")
	if electionID == "" {
		sharedapi.ErrMissingParameter.Withf("election_id").Write(w)
		return
	}
	e, err := a.store.Election(electionID)
	if err != nil {
		if err == store.ErrNotFound {
			sharedapi.ErrElectionNotFound.Write(w)
			return
		}
		sharedapi.ErrStorageFailure.WithErr(err).Write(w)
		return
	}
	sharedapi.WriteJSON(w, e)
}

func (a *API) electionsForVoter(w http.ResponseWriter, r *http.Request) {
	voterID := r.URL.Query().Get("voter_id")
	if voterID == "" {
		sharedapi.ErrMissingParameter.Withf("voter_id").Write(w)
		return
	}
	elections, err := a.store.ElectionsForVoter(voterID)
	if err != nil {
		sharedapi.ErrStorageFailure.WithErr(err).Write(w)
		return
	}
	sharedapi.WriteJSON(w, elections)
}

func (a *API) publicKeysTSVS(w http.ResponseWriter, r *http.Request) {
	g, err := a.store.GlobalInfo()
	if err != nil {
		if err == store.ErrNotFound {
			sharedapi.ErrResourceNotFound.Write(w)
			return
		}
		sharedapi.ErrStorageFailure.WithErr(err).Write(w)
		return
	}
	sharedapi.WriteJSON(w, types.PublicKeysTSVS{PublicKeyTS: g.PublicKeyTS, PublicKeyVS: g.PublicKeyVS})
}

func (a *API) voterPublicKey(w http.ResponseWriter, r *http.Request) {
	voterID := r.URL.Query().Get("voter_id")
	electionID := r.URL.Query().Get("election_id")
	if voterID == "" || electionID == "" {
		sharedapi.ErrMissingParameter.Withf("voter_id and election_id required").Write(w)
		return
	}
	key, err := a.store.VoterPublicKey(voterID, electionID)
	if err != nil {
		if err == store.ErrNotFound {
			sharedapi.ErrVoterNotFound.Write(w)
			return
		}
		sharedapi.ErrStorageFailure.WithErr(err).Write(w)
		return
	}
	sharedapi.WriteJSON(w, key)
}

func (a *API) lastPreviousLast(w http.ResponseWriter, r *http.Request) {
	voterID := r.URL.Query().Get("voter_id")
	electionID := r.URL.Query().Get("election_id")
	if voterID == "" || electionID == "" {
		sharedapi.ErrMissingParameter.Withf("voter_id and election_id required").Write(w)
		return
	}
	last, previousLast, err := a.store.LastPreviousLastBallot(voterID, electionID)
	if err != nil {
		if err == store.ErrNotFound {
			sharedapi.ErrVoterNotFound.Write(w)
			return
		}
		sharedapi.ErrStorageFailure.WithErr(err).Write(w)
		return
	}
	sharedapi.WriteJSON(w, types.LastPreviousLast{Last: last, PreviousLast: previousLast})
}

func (a *API) precedingBallots(w http.ResponseWriter, r *http.Request) {
	voterID := r.URL.Query().Get("voter_id")
	electionID := r.URL.Query().Get("election_id")
	ts := r.URL.Query().Get("timestamp")
	if voterID == "" || electionID == "" || ts == "" {
		sharedapi.ErrMissingParameter.Withf("voter_id, election_id and timestamp required").Write(w)
		return
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		sharedapi.ErrMalformedBody.WithErr(err).Write(w)
		return
	}
	last, previousLast, err := a.store.PrecedingBallots(voterID, electionID, t)
	if err != nil {
		if err == store.ErrNotFound {
			sharedapi.ErrVoterNotFound.Write(w)
			return
		}
		sharedapi.ErrStorageFailure.WithErr(err).Write(w)
		return
	}
	sharedapi.WriteJSON(w, types.LastPreviousLast{Last: last, PreviousLast: previousLast})
}

func (a *API) cbrLength(w http.ResponseWriter, r *http.Request) {
	voterID := r.URL.Query().Get("voter_id")
	electionID := r.URL.Query().Get("election_id")
	if voterID == "" || electionID == "" {
		sharedapi.ErrMissingParameter.Withf("voter_id and election_id required").Write(w)
		return
	}
	n, err := a.store.CBRLength(voterID, electionID)
	if err != nil {
		sharedapi.ErrStorageFailure.WithErr(err).Write(w)
		return
	}
	sharedapi.WriteJSON(w, types.CBRLength{Length: n})
}

func (a *API) cbrForVoter(w http.ResponseWriter, r *http.Request) {
	voterID := r.URL.Query().Get("voter_id")
	electionID := r.URL.Query().Get("election_id")
	if voterID == "" || electionID == "" {
		sharedapi.ErrMissingParameter.Withf("voter_id and election_id required").Write(w)
		return
	}
	cbr, err := a.store.CBRForVoter(voterID, electionID)
	if err != nil {
		sharedapi.ErrStorageFailure.WithErr(err).Write(w)
		return
	}
	sharedapi.WriteJSON(w, cbr)
}

func (a *API) fetchBallotHashes(w http.ResponseWriter, r *http.Request) {
	electionID := r.URL.Query().Get("election_id")
	if electionID == "" {
		sharedapi.ErrMissingParameter.Withf("election_id").Write(w)
		return
	}
	hashes, err := a.store.FetchBallotHashes(electionID)
	if err != nil {
		sharedapi.ErrStorageFailure.WithErr(err).Write(w)
		return
	}
	sharedapi.WriteJSON(w, hashes)
}

func (a *API) fetchLastBallotCTVs(w http.ResponseWriter, r *http.Request) {
	electionID := r.URL.Query().Get("election_id")
	if electionID == "" {
		sharedapi.ErrMissingParameter.Withf("election_id").Write(w)
		return
	}
	ctvs, err := a.store.FetchLastBallotCTVs(electionID)
	if err != nil {
		sharedapi.ErrStorageFailure.WithErr(err).Write(w)
		return
	}
	sharedapi.WriteJSON(w, ctvs)
}

func (a *API) receiveElectionResult(w http.ResponseWriter, r *http.Request) {
	var res types.ElectionResult
	if err := decode(r, &res); err != nil {
		sharedapi.ErrMalformedBody.WithErr(err).Write(w)
		return
	}
	if err := a.store.InsertElectionResult(res); err != nil {
		sharedapi.ErrStorageFailure.WithErr(err).Write(w)
		return
	}
	sharedapi.WriteOK(w)
}

func (a *API) electionResult(w http.ResponseWriter, r *http.Request) {
	electionID := r.URL.Query().Get("election_id")
	if electionID == "" {
		sharedapi.ErrMissingParameter.Withf("election_id").Write(w)
		return
	}
	res, err := a.store.ElectionResult(electionID)
	if err != nil {
		if err == store.ErrNotFound {
			sharedapi.ErrResultNotReady.Write(w)
			return
		}
		sharedapi.ErrStorageFailure.WithErr(err).Write(w)
		return
	}
	sharedapi.WriteJSON(w, res)
}

func (a *API) ballotByImage(w http.ResponseWriter, r *http.Request) {
	electionID := r.URL.Query().Get("election_id")
	voterID := r.URL.Query().Get("voter_id")
	image := r.URL.Query().Get("image_filename")
	if electionID == "" || voterID == "" || image == "" {
		sharedapi.ErrMissingParameter.Withf("election_id, voter_id and image_filename required").Write(w)
		return
	}
	b, err := a.store.BallotByImage(electionID, voterID, image)
	if err != nil {
		if err == store.ErrNotFound {
			sharedapi.ErrResourceNotFound.Write(w)
			return
		}
		sharedapi.ErrStorageFailure.WithErr(err).Write(w)
		return
	}
	sharedapi.WriteJSON(w, b)
}
