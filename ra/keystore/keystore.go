// Package keystore implements the Registration Authority's local
// per-voter secret-key table, built on store/kv. Voter secret keys live
// here and never appear on the wire; the voter-facing app fetches its own
// pair out of band.
package keystore

import (
	"fmt"

	"github.com/lokivote/cbr-voting/store/kv"
)

// prefix scopes every key under this table within the shared RA database.
var prefix = []byte("sk/")

// Entry is one voter's keypair for one election.
type Entry struct {
	VoterID    string
	ElectionID string
	SecretKey  []byte
	PublicKey  []byte
}

// Store is the Registration Authority's local secret-key table.
type Store struct {
	kv *kv.Store
}

// New wraps an already-open kv.Store.
func New(store *kv.Store) *Store {
	return &Store{kv: store}
}

func key(voterID, electionID string) []byte {
	return []byte(electionID + "/" + voterID)
}

// Put persists a voter's keypair for an election.
func (s *Store) Put(e Entry) error {
	return s.kv.Set(prefix, key(e.VoterID, e.ElectionID), e)
}

// Get retrieves a voter's keypair for an election.
func (s *Store) Get(voterID, electionID string) (*Entry, error) {
	var e Entry
	if err := s.kv.Get(prefix, key(voterID, electionID), &e); err != nil {
		if err == kv.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("keystore: %w", err)
	}
	return &e, nil
}

// ErrNotFound is returned by Get when no keypair is recorded for the pair.
var ErrNotFound = fmt.Errorf("keystore: voter keypair not found")
