// Package kv is a prefixed key-value artifact store over
// go.vocdoni.io/dvote/db + prefixeddb (pebble-backed): gob-encode/decode any value behind a byte-string prefix,
// with set/get/delete/iterate and a GetFirst helper that decodes the first
// value under a prefix. No operation here combines a read and a delete
// atomically; vs/store serialises its get-then-delete of PendingVotes
// rows behind its own mutex.
//
// It backs the Registration Authority's per-voter secret-key table and the
// Voting Server's VoterTimestamps/PendingVotes local tables:
// neither needs a relational query surface, both need exactly the
// prefix-scoped KV operations this package exposes.
package kv

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/metadb"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

// ErrNotFound is returned when a key does not exist under its prefix.
var ErrNotFound = fmt.Errorf("kv: key not found")

// Open opens (creating if necessary) a pebble-backed database at dir. typ is
// normally "pebble"; it is threaded through verbatim so tests can force an
// in-memory/alternate backend the same way go.vocdoni.io/dvote/db/metadb
// supports.
func Open(typ, dir string) (db.Database, error) {
	return metadb.New(typ, dir)
}

// Store wraps a db.Database with gob-encoded artifact access scoped by
// caller-chosen key prefixes (e.g. "vt/" for VoterTimestamps, "pv/" for
// PendingVotes).
type Store struct {
	db db.Database
}

// New wraps an already-open database.
func New(database db.Database) *Store {
	return &Store{db: database}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Set gob-encodes value and stores it under prefix+key.
func (s *Store) Set(prefix, key []byte, value any) error {
	buf := new(bytes.Buffer)
	if err := gob.NewEncoder(buf).Encode(value); err != nil {
		return fmt.Errorf("kv: encode failed: %w", err)
	}
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), prefix)
	if err := wTx.Set(key, buf.Bytes()); err != nil {
		return err
	}
	return wTx.Commit()
}

// Get decodes the value stored under prefix+key into dst, a pointer to the
// concrete type Set was called with. Returns ErrNotFound if absent.
func (s *Store) Get(prefix, key []byte, dst any) error {
	data, err := prefixeddb.NewPrefixedReader(s.db, prefix).Get(key)
	if err != nil {
		return ErrNotFound
	}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(dst); err != nil {
		return fmt.Errorf("kv: decode failed: %w", err)
	}
	return nil
}

// Delete removes prefix+key. Deleting an absent key is not an error.
func (s *Store) Delete(prefix, key []byte) error {
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), prefix)
	if err := wTx.Delete(key); err != nil {
		return err
	}
	return wTx.Commit()
}

// Iterate calls fn for every key/value pair under prefix (with innerPrefix,
// possibly empty, further scoping the scan), in the underlying database's
// iteration order, stopping early if fn returns false.
func (s *Store) Iterate(prefix, innerPrefix []byte, fn func(key, value []byte) bool) error {
	return prefixeddb.NewPrefixedReader(s.db, prefix).Iterate(innerPrefix, fn)
}

// GetFirst decodes the first value found under prefix (in iteration order)
// into dst, returning its key. Returns ErrNotFound if the prefix is empty.
func (s *Store) GetFirst(prefix []byte, dst any) (key []byte, err error) {
	var foundKey, foundValue []byte
	if err := s.Iterate(prefix, nil, func(k, v []byte) bool {
		foundKey, foundValue = append([]byte(nil), k...), append([]byte(nil), v...)
		return false
	}); err != nil {
		return nil, err
	}
	if foundValue == nil {
		return nil, ErrNotFound
	}
	if err := gob.NewDecoder(bytes.NewReader(foundValue)).Decode(dst); err != nil {
		return nil, fmt.Errorf("kv: decode failed: %w", err)
	}
	return foundKey, nil
}
