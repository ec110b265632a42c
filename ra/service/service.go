// Package service implements the Registration Authority's bootstrap and
// election-loading logic: group-parameter publication, per-voter key
// generation, and initialisation-ballot construction over the
// curve-agnostic elgamal/nizk stack.
package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sync"

	"github.com/lokivote/cbr-voting/client"
	"github.com/lokivote/cbr-voting/crypto/ecc"
	"github.com/lokivote/cbr-voting/crypto/elgamal"
	"github.com/lokivote/cbr-voting/crypto/hash"
	"github.com/lokivote/cbr-voting/log"
	"github.com/lokivote/cbr-voting/ra/keystore"
	"github.com/lokivote/cbr-voting/types"
)

// ReceivedKeys tracks whether VS's and TS's public keys have arrived via
// BB's /key_ready notification, the gate LoadFile checks before
// bootstrapping an election.
type ReceivedKeys struct {
	mu sync.Mutex
	vs bool
	ts bool
}

// Mark records that service ("vs" or "ts") has published its public key.
func (r *ReceivedKeys) Mark(service string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch service {
	case "vs":
		r.vs = true
	case "ts":
		r.ts = true
	}
}

// Ready reports whether both services have published their keys.
func (r *ReceivedKeys) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.vs && r.ts
}

// Service is the Registration Authority's runtime: its secret-key table,
// the group it issues keys over, and the peers it talks to.
type Service struct {
	Keys    *keystore.Store
	Group   ecc.Point
	DataDir string
	BB      *client.Client
	VS      *client.Client
	TS      *client.Client
	Ready   *ReceivedKeys
}

// New builds a Service bound to an already-open keystore.
func New(keys *keystore.Store, group ecc.Point, dataDir string, bb, vs, ts *client.Client) *Service {
	return &Service{Keys: keys, Group: group, DataDir: dataDir, BB: bb, VS: vs, TS: ts, Ready: &ReceivedKeys{}}
}

// Bootstrap runs once at startup: fixes the group generator and order and
// publishes them to BB.
func (s *Service) Bootstrap(ctx context.Context) error {
	gen := s.Group.New()
	gen.SetGenerator()
	params := types.GroupParams{
		Curve:     s.Group.Type(),
		Generator: gen.Marshal(),
		Order:     s.Group.Order().Bytes(),
	}
	if err := s.BB.Post(ctx, "/receive-params", params, nil); err != nil {
		return fmt.Errorf("ra: failed to publish group parameters: %w", err)
	}
	log.Infow("published group parameters", "curve", params.Curve)
	return nil
}

// electionFile is the on-disk shape of an election description dropped
// into the data directory.
type electionFile struct {
	Election   types.Election    `json:"election"`
	Candidates []types.Candidate `json:"candidates"`
	Voters     []types.Voter     `json:"voters"`
}

// LoadFile runs the full per-election bootstrap against the election
// description stored at name within DataDir: publish the election,
// generate and publish voter keys, build every voter's initialisation
// ballot, ship the batch to VS and notify TS.
func (s *Service) LoadFile(ctx context.Context, name string) (electionID string, err error) {
	if !s.Ready.Ready() {
		return "", ErrKeysNotReady
	}

	path := filepath.Join(s.DataDir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("ra: failed to read election file %s: %w", path, err)
	}
	var ef electionFile
	if err := json.Unmarshal(data, &ef); err != nil {
		return "", fmt.Errorf("ra: failed to parse election file %s: %w", path, err)
	}
	election := ef.Election
	election.Candidates = ef.Candidates
	election.Voters = ef.Voters

	if err := s.BB.Post(ctx, "/receive-election", election, nil); err != nil {
		return "", fmt.Errorf("ra: failed to publish election: %w", err)
	}

	voterKeys := make([]types.VoterKeyEntry, 0, len(election.Voters))
	for _, v := range election.Voters {
		pk, sk, err := elgamal.GenerateKey(s.Group)
		if err != nil {
			return "", fmt.Errorf("ra: failed to generate voter key for %s: %w", v.ID, err)
		}
		entry := keystore.Entry{
			VoterID:    v.ID,
			ElectionID: election.ID,
			SecretKey:  sk.Bytes(),
			PublicKey:  pk.Marshal(),
		}
		if err := s.Keys.Put(entry); err != nil {
			return "", fmt.Errorf("ra: failed to persist voter key for %s: %w", v.ID, err)
		}
		voterKeys = append(voterKeys, types.VoterKeyEntry{
			VoterID:    v.ID,
			ElectionID: election.ID,
			PublicKey:  pk.Marshal(),
		})
	}
	if err := s.BB.Post(ctx, "/receive-voter-keys", voterKeys, nil); err != nil {
		return "", fmt.Errorf("ra: failed to publish voter keys: %w", err)
	}

	var keysResp types.PublicKeysTSVS
	if err := s.BB.Get(ctx, "/public-keys-tsvs", nil, &keysResp); err != nil {
		return "", fmt.Errorf("ra: failed to fetch TS/VS public keys: %w", err)
	}
	pkTS := s.Group.New()
	if err := pkTS.Unmarshal(keysResp.PublicKeyTS); err != nil {
		return "", fmt.Errorf("ra: failed to decode TS public key: %w", err)
	}
	pkVS := s.Group.New()
	if err := pkVS.Unmarshal(keysResp.PublicKeyVS); err != nil {
		return "", fmt.Errorf("ra: failed to decode VS public key: %w", err)
	}

	batch := make([]types.Ballot, 0, len(election.Voters))
	for i, v := range election.Voters {
		r0, err := rand.Int(rand.Reader, s.Group.Order())
		if err != nil {
			return "", fmt.Errorf("ra: failed to draw ballot0 randomness for %s: %w", v.ID, err)
		}
		entry := voterKeys[i]
		ctv := make([]*elgamal.Ciphertext, len(election.Candidates))
		for j := range election.Candidates {
			ct, err := elgamal.NewCiphertext(s.Group).Encrypt(big.NewInt(0), pkTS, r0)
			if err != nil {
				return "", fmt.Errorf("ra: failed to encrypt ballot0 ctv[%d] for %s: %w", j, v.ID, err)
			}
			ctv[j] = ct
		}
		ctl0, err := elgamal.NewCiphertext(s.Group).Encrypt(big.NewInt(0), pkVS, r0)
		if err != nil {
			return "", fmt.Errorf("ra: failed to encrypt ballot0 ctl0 for %s: %w", v.ID, err)
		}
		ctlid := ctl0.Clone()

		h, err := hash.BallotHash(v.ID, entry.PublicKey, ctv, ctl0, ctlid, r0.Bytes())
		if err != nil {
			return "", fmt.Errorf("ra: failed to hash ballot0 for %s: %w", v.ID, err)
		}
		b := types.Ballot{
			VoterID:    v.ID,
			ElectionID: election.ID,
			UPK:        entry.PublicKey,
			CTV:        ctv,
			CTLV:       ctl0,
			CTLID:      ctlid,
			Proof:      r0.Bytes(),
			Hash:       h,
		}
		batch = append(batch, b)
	}

	if err := s.VS.Post(ctx, "/ballot0list", batch, nil); err != nil {
		return "", fmt.Errorf("ra: failed to ship ballot0 batch to VS: %w", err)
	}

	client.Notify("ts:/receive-election", func() error {
		return s.TS.Post(context.Background(), "/receive-election", types.ElectionIDNotification{ElectionID: election.ID}, nil)
	})

	return election.ID, nil
}

// ErrKeysNotReady is returned by LoadFile when VS or TS has not yet
// published its public key.
var ErrKeysNotReady = fmt.Errorf("ra: voting server and tallying server keys not yet registered")
