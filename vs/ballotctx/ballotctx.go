// Package ballotctx fetches the per-tick context both validation and
// obfuscation need from the Bulletin Board — the current public
// parameters, a voter's public key and their two most recent CBR entries
// — in one place, so vs/validate and vs/obfuscate never duplicate the BB
// round-trips.
package ballotctx

import (
	"context"
	"fmt"
	"math/big"
	"net/url"

	"github.com/lokivote/cbr-voting/client"
	"github.com/lokivote/cbr-voting/crypto/ecc"
	"github.com/lokivote/cbr-voting/crypto/nizk"
	"github.com/lokivote/cbr-voting/types"
)

// two is the scalar ct_i = 2*ctlid is built with (nizk.PriorBallotContext's
// CTi term).
var two = big.NewInt(2)

// Context carries everything a validation or obfuscation pass over one
// voter's next tick needs, fetched from BB once per tick.
type Context struct {
	Params       nizk.BallotParams
	UPKBytes     []byte
	Last         types.Ballot
	PreviousLast types.Ballot
}

// Fetch retrieves the group's public parameters, the voter's own public
// key, and their two most recent CBR entries from BB, assembling them into
// the statement context NIZK proving/verification needs.
func Fetch(ctx context.Context, bb *client.Client, group ecc.Point, voterID, electionID string) (*Context, error) {
	var keys types.PublicKeysTSVS
	if err := bb.Get(ctx, "/public-keys-tsvs", nil, &keys); err != nil {
		return nil, fmt.Errorf("ballotctx: failed to fetch TS/VS public keys: %w", err)
	}
	pkTS := group.New()
	if err := pkTS.Unmarshal(keys.PublicKeyTS); err != nil {
		return nil, fmt.Errorf("ballotctx: failed to decode TS public key: %w", err)
	}
	pkVS := group.New()
	if err := pkVS.Unmarshal(keys.PublicKeyVS); err != nil {
		return nil, fmt.Errorf("ballotctx: failed to decode VS public key: %w", err)
	}

	var upkBytes []byte
	if err := bb.Get(ctx, "/voter-public-key", url.Values{"voter_id": {voterID}, "election_id": {electionID}}, &upkBytes); err != nil {
		return nil, fmt.Errorf("ballotctx: failed to fetch voter public key: %w", err)
	}
	upk := group.New()
	if err := upk.Unmarshal(upkBytes); err != nil {
		return nil, fmt.Errorf("ballotctx: failed to decode voter public key: %w", err)
	}

	var lpl types.LastPreviousLast
	if err := bb.Get(ctx, "/last_previous_last_ballot", url.Values{"voter_id": {voterID}, "election_id": {electionID}}, &lpl); err != nil {
		return nil, fmt.Errorf("ballotctx: failed to fetch last/previous-last ballots: %w", err)
	}
	if lpl.Last == nil || lpl.PreviousLast == nil {
		return nil, fmt.Errorf("ballotctx: voter %s has no recorded ballots for election %s", voterID, electionID)
	}

	return &Context{
		Params: nizk.BallotParams{
			Group: group,
			PkTS:  pkTS,
			PkVS:  pkVS,
			UPK:   upk,
		},
		UPKBytes:     upkBytes,
		Last:         *lpl.Last,
		PreviousLast: *lpl.PreviousLast,
	}, nil
}

// PriorBallotContext derives the R1/R2/R3 statement's ct_i/diffCT terms
// from the fetched Last/PreviousLast ballots.
func (c *Context) PriorBallotContext() nizk.PriorBallotContext {
	cti := c.Last.CTLID.Clone().ScalarMul(c.Last.CTLID, two)
	diff := c.Last.CTLV.Clone().Sub(c.Last.CTLV, c.Last.CTLID)
	return nizk.PriorBallotContext{
		CTi:         cti,
		DiffCT:      diff,
		LastCTV:     c.Last.CTV,
		PrevLastCTV: c.PreviousLast.CTV,
	}
}
