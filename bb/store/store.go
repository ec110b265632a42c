// Package store implements the Bulletin Board's durable relational store:
// a thin wrapper over *sql.DB (driver github.com/lib/pq) exposing the
// schema's query contracts and the insert paths every other service
// drives. Every write is idempotent via ON CONFLICT DO NOTHING; hash
// uniqueness on ballots is the safety net against replay.
package store

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/lokivote/cbr-voting/crypto/elgamal"
	"github.com/lokivote/cbr-voting/types"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned by reads with no matching row; api handlers
// translate it to HTTP 404.
var ErrNotFound = fmt.Errorf("store: not found")

// Store wraps a Postgres connection pool.
type Store struct {
	db *sql.DB
}

// Open connects to dsn, applies the embedded schema and returns a ready
// Store.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("store: failed to connect to database: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("store: failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- Global parameters & service keys -------------------------------------

// SetGroupParams persists the group parameters RA publishes once at
// bootstrap. Idempotent: a second call with the same id=0 row is a no-op.
func (s *Store) SetGroupParams(p types.GroupParams) error {
	_, err := s.db.Exec(`
		INSERT INTO global_info (id, group_curve, generator, order_p)
		VALUES (0, $1, $2, $3)
		ON CONFLICT (id) DO NOTHING`, p.Curve, p.Generator, p.Order)
	return err
}

// SetPublicKey records the Voting Server's or Tallying Server's public key.
// service must be "vs" or "ts".
func (s *Store) SetPublicKey(service string, key []byte) error {
	var col string
	switch service {
	case "vs":
		col = "public_key_vs"
	case "ts":
		col = "public_key_ts"
	default:
		return fmt.Errorf("store: unknown service %q", service)
	}
	_, err := s.db.Exec(fmt.Sprintf(`UPDATE global_info SET %s = $1 WHERE id = 0`, col), key) //nolint:gosec // col is one of two fixed literals above
	return err
}

// GlobalInfo returns the singleton row of group parameters and service
// public keys.
func (s *Store) GlobalInfo() (*types.GlobalInfo, error) {
	var g types.GlobalInfo
	row := s.db.QueryRow(`SELECT group_curve, generator, order_p, public_key_ts, public_key_vs FROM global_info WHERE id = 0`)
	if err := row.Scan(&g.Curve, &g.Generator, &g.Order, &g.PublicKeyTS, &g.PublicKeyVS); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &g, nil
}

// PublicKeysReady reports whether both the VS and TS public keys have
// arrived, the gate RA's load-file flow checks before bootstrapping an
// election.
func (s *Store) PublicKeysReady() (bool, error) {
	var tsKey, vsKey []byte
	row := s.db.QueryRow(`SELECT public_key_ts, public_key_vs FROM global_info WHERE id = 0`)
	if err := row.Scan(&tsKey, &vsKey); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return tsKey != nil && vsKey != nil, nil
}

// --- Elections, candidates, voters -----------------------------------------

// InsertElection persists an election and its fixed candidate/voter lists.
func (s *Store) InsertElection(e types.Election) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`
		INSERT INTO elections (id, name, start_date, end_date)
		VALUES ($1, $2, $3, $4) ON CONFLICT (id) DO NOTHING`,
		e.ID, e.Name, e.Start, e.End); err != nil {
		return fmt.Errorf("store: insert election: %w", err)
	}
	for i, c := range e.Candidates {
		if _, err := tx.Exec(`INSERT INTO candidates (id, name) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`, c.ID, c.Name); err != nil {
			return fmt.Errorf("store: insert candidate: %w", err)
		}
		if _, err := tx.Exec(`
			INSERT INTO candidate_runs_in_election (candidate_id, election_id, ord)
			VALUES ($1, $2, $3) ON CONFLICT (candidate_id, election_id) DO NOTHING`,
			c.ID, e.ID, i); err != nil {
			return fmt.Errorf("store: insert candidate run: %w", err)
		}
	}
	for _, v := range e.Voters {
		if _, err := tx.Exec(`INSERT INTO voters (id, name) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`, v.ID, v.Name); err != nil {
			return fmt.Errorf("store: insert voter: %w", err)
		}
		if _, err := tx.Exec(`
			INSERT INTO voter_participates_in_election (voter_id, election_id)
			VALUES ($1, $2) ON CONFLICT (voter_id, election_id) DO NOTHING`,
			v.ID, e.ID); err != nil {
			return fmt.Errorf("store: insert voter participation: %w", err)
		}
	}
	return tx.Commit()
}

// InsertVoterKeys records each voter's per-election public key, the batch
// RA POSTs after generating keypairs.
func (s *Store) InsertVoterKeys(entries []types.VoterKeyEntry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck
	for _, e := range entries {
		if _, err := tx.Exec(`
			UPDATE voter_participates_in_election SET public_key = $1
			WHERE voter_id = $2 AND election_id = $3`,
			e.PublicKey, e.VoterID, e.ElectionID); err != nil {
			return fmt.Errorf("store: update voter key: %w", err)
		}
	}
	return tx.Commit()
}

// Election returns one election by id.
func (s *Store) Election(id string) (*types.Election, error) {
	var e types.Election
	row := s.db.QueryRow(`SELECT id, name, start_date, end_date FROM elections WHERE id = $1`, id)
	if err := row.Scan(&e.ID, &e.Name, &e.Start, &e.End); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	cands, err := s.Candidates(id)
	if err != nil {
		return nil, err
	}
	e.Candidates = cands
	voters, err := s.Voters(id)
	if err != nil {
		return nil, err
	}
	e.Voters = voters
	return &e, nil
}

// ElectionsForVoter returns every election a voter is registered in,
// backing /send-elections-for-voter.
func (s *Store) ElectionsForVoter(voterID string) ([]types.Election, error) {
	rows, err := s.db.Query(`
		SELECT e.id, e.name, e.start_date, e.end_date
		FROM elections e JOIN voter_participates_in_election v ON v.election_id = e.id
		WHERE v.voter_id = $1 ORDER BY e.start_date`, voterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.Election
	for rows.Next() {
		var e types.Election
		if err := rows.Scan(&e.ID, &e.Name, &e.Start, &e.End); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Candidates returns an election's candidates, preserving ballot-index
// order.
func (s *Store) Candidates(electionID string) ([]types.Candidate, error) {
	rows, err := s.db.Query(`
		SELECT c.id, c.name FROM candidates c
		JOIN candidate_runs_in_election r ON r.candidate_id = c.id
		WHERE r.election_id = $1 ORDER BY r.ord`, electionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.Candidate
	for rows.Next() {
		var c types.Candidate
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Voters returns an election's registered voters.
func (s *Store) Voters(electionID string) ([]types.Voter, error) {
	rows, err := s.db.Query(`
		SELECT v.id, v.name FROM voters v
		JOIN voter_participates_in_election p ON p.voter_id = v.id
		WHERE p.election_id = $1 ORDER BY v.id`, electionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.Voter
	for rows.Next() {
		var v types.Voter
		if err := rows.Scan(&v.ID, &v.Name); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// VoterPublicKey returns a voter's per-election public key.
func (s *Store) VoterPublicKey(voterID, electionID string) ([]byte, error) {
	var key []byte
	row := s.db.QueryRow(`
		SELECT public_key FROM voter_participates_in_election
		WHERE voter_id = $1 AND election_id = $2`, voterID, electionID)
	if err := row.Scan(&key); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if key == nil {
		return nil, ErrNotFound
	}
	return key, nil
}

// --- Ballots & CBR ----------------------------------------------------------

type ctvWire = []*elgamal.Ciphertext

// InsertBallot appends one ballot to a voter's CBR. ON CONFLICT on the
// unique ballot_hash absorbs replays:
// the caller cannot distinguish "already existed" from "inserted" and
// should not need to (replay protection is the only consumer of the
// distinction, and that check happens before this call, in VS validation).
func (s *Store) InsertBallot(b types.Ballot) error {
	ctv, err := json.Marshal(b.CTV)
	if err != nil {
		return fmt.Errorf("store: marshal ctv: %w", err)
	}
	ctlv, err := json.Marshal(b.CTLV)
	if err != nil {
		return fmt.Errorf("store: marshal ctlv: %w", err)
	}
	ctlid, err := json.Marshal(b.CTLID)
	if err != nil {
		return fmt.Errorf("store: marshal ctlid: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	var ballotID int64
	row := tx.QueryRow(`
		INSERT INTO ballots (voter_id, election_id, upk, ctv, ctlv, ctlid, proof, ballot_hash, image_path)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (ballot_hash) DO NOTHING
		RETURNING id`,
		b.VoterID, b.ElectionID, b.UPK, ctv, ctlv, ctlid, b.Proof, b.Hash, b.ImagePath)
	if err := row.Scan(&ballotID); err != nil {
		if err == sql.ErrNoRows {
			// Hash collision: ballot already recorded, nothing more to do.
			return tx.Commit()
		}
		return fmt.Errorf("store: insert ballot: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO voter_casts_ballot (ballot_id, voter_id, election_id, vote_timestamp)
		VALUES ($1, $2, $3, $4) ON CONFLICT (ballot_id) DO NOTHING`,
		ballotID, b.VoterID, b.ElectionID, b.Timestamp); err != nil {
		return fmt.Errorf("store: insert cast row: %w", err)
	}
	if b.ImagePath != "" {
		if _, err := tx.Exec(`
			INSERT INTO images (image_filename, ballot_id) VALUES ($1, $2)
			ON CONFLICT (image_filename) DO NOTHING`, b.ImagePath, ballotID); err != nil {
			return fmt.Errorf("store: insert image: %w", err)
		}
	}
	return tx.Commit()
}

func scanBallot(row interface {
	Scan(dest ...any) error
}) (*types.Ballot, error) {
	var b types.Ballot
	var ctv, ctlv, ctlid []byte
	if err := row.Scan(&b.VoterID, &b.ElectionID, &b.UPK, &ctv, &ctlv, &ctlid, &b.Proof, &b.Hash, &b.ImagePath, &b.Timestamp); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(ctv, &b.CTV); err != nil {
		return nil, fmt.Errorf("store: unmarshal ctv: %w", err)
	}
	b.CTLV = new(elgamal.Ciphertext)
	if err := json.Unmarshal(ctlv, b.CTLV); err != nil {
		return nil, fmt.Errorf("store: unmarshal ctlv: %w", err)
	}
	b.CTLID = new(elgamal.Ciphertext)
	if err := json.Unmarshal(ctlid, b.CTLID); err != nil {
		return nil, fmt.Errorf("store: unmarshal ctlid: %w", err)
	}
	return &b, nil
}

const ballotColumns = `b.voter_id, b.election_id, b.upk, b.ctv, b.ctlv, b.ctlid, b.proof, b.ballot_hash, b.image_path, c.vote_timestamp`

// LastPreviousLastBallot returns the two most recent CBR rows for a voter,
// ordered newest-first, duplicating the single row when only B0 exists.
func (s *Store) LastPreviousLastBallot(voterID, electionID string) (last, previousLast *types.Ballot, err error) {
	rows, err := s.db.Query(`
		SELECT `+ballotColumns+`
		FROM ballots b JOIN voter_casts_ballot c ON c.ballot_id = b.id
		WHERE c.voter_id = $1 AND c.election_id = $2
		ORDER BY c.vote_timestamp DESC LIMIT 2`, voterID, electionID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	var out []*types.Ballot
	for rows.Next() {
		b, err := scanBallot(rows)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	if len(out) == 0 {
		return nil, nil, ErrNotFound
	}
	if len(out) == 1 {
		return out[0], out[0], nil
	}
	return out[0], out[1], nil
}

// PrecedingBallots returns the two CBR rows immediately preceding timestamp
// t (strictly less than t), duplicating the single row when only one
// predecessor exists.
func (s *Store) PrecedingBallots(voterID, electionID string, t time.Time) (last, previousLast *types.Ballot, err error) {
	rows, err := s.db.Query(`
		SELECT `+ballotColumns+`
		FROM ballots b JOIN voter_casts_ballot c ON c.ballot_id = b.id
		WHERE c.voter_id = $1 AND c.election_id = $2 AND c.vote_timestamp < $3
		ORDER BY c.vote_timestamp DESC LIMIT 2`, voterID, electionID, t)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	var out []*types.Ballot
	for rows.Next() {
		b, err := scanBallot(rows)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	if len(out) == 0 {
		return nil, nil, ErrNotFound
	}
	if len(out) == 1 {
		return out[0], out[0], nil
	}
	return out[0], out[1], nil
}

// CBRLength returns the number of ballots recorded for a voter in an
// election.
func (s *Store) CBRLength(voterID, electionID string) (int, error) {
	var n int
	row := s.db.QueryRow(`
		SELECT COUNT(*) FROM voter_casts_ballot
		WHERE voter_id = $1 AND election_id = $2`, voterID, electionID)
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// CBRForVoter returns a voter's full Cast Ballot Record in timestamp order,
// index 0 being B0.
func (s *Store) CBRForVoter(voterID, electionID string) ([]types.CBREntry, error) {
	rows, err := s.db.Query(`
		SELECT `+ballotColumns+`
		FROM ballots b JOIN voter_casts_ballot c ON c.ballot_id = b.id
		WHERE c.voter_id = $1 AND c.election_id = $2
		ORDER BY c.vote_timestamp ASC`, voterID, electionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.CBREntry
	idx := 0
	for rows.Next() {
		b, err := scanBallot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, types.CBREntry{Index: idx, Ballot: *b})
		idx++
	}
	return out, rows.Err()
}

// BallotByImage returns the single ballot tagged with imageFilename for a
// voter's election, backing GET /ballot.
func (s *Store) BallotByImage(electionID, voterID, imageFilename string) (*types.Ballot, error) {
	row := s.db.QueryRow(`
		SELECT `+ballotColumns+`
		FROM ballots b
		JOIN voter_casts_ballot c ON c.ballot_id = b.id
		JOIN images i ON i.ballot_id = b.id
		WHERE c.voter_id = $1 AND c.election_id = $2 AND i.image_filename = $3`,
		voterID, electionID, imageFilename)
	b, err := scanBallot(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

// FetchBallotHashes returns every ballot hash recorded for an election,
// across all voters.
func (s *Store) FetchBallotHashes(electionID string) ([]string, error) {
	rows, err := s.db.Query(`SELECT ballot_hash FROM ballots WHERE election_id = $1`, electionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// BallotHashExists reports whether a ballot with this hash already exists
// on the Bulletin Board, the replay check VS validation runs before
// emitting a voter-submitted ballot.
func (s *Store) BallotHashExists(hash string) (bool, error) {
	var n int
	row := s.db.QueryRow(`SELECT COUNT(*) FROM ballots WHERE ballot_hash = $1`, hash)
	if err := row.Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// FetchLastBallotCTVs returns, per distinct voter, the ctv of their most
// recent ballot — the tallying input.
func (s *Store) FetchLastBallotCTVs(electionID string) (map[string][]*elgamal.Ciphertext, error) {
	rows, err := s.db.Query(`
		SELECT DISTINCT ON (c.voter_id) c.voter_id, b.ctv
		FROM ballots b JOIN voter_casts_ballot c ON c.ballot_id = b.id
		WHERE c.election_id = $1
		ORDER BY c.voter_id, c.vote_timestamp DESC`, electionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string][]*elgamal.Ciphertext{}
	for rows.Next() {
		var voterID string
		var raw []byte
		if err := rows.Scan(&voterID, &raw); err != nil {
			return nil, err
		}
		var ctv ctvWire
		if err := json.Unmarshal(raw, &ctv); err != nil {
			return nil, fmt.Errorf("store: unmarshal ctv: %w", err)
		}
		out[voterID] = ctv
	}
	return out, rows.Err()
}

// --- Election results --------------------------------------------------

// InsertElectionResult persists the Tallying Server's published outcome.
// The election_results row enforces the one-result-per-election
// invariant via its primary key.
func (s *Store) InsertElectionResult(r types.ElectionResult) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.Exec(`INSERT INTO election_results (election_id) VALUES ($1) ON CONFLICT DO NOTHING`, r.ElectionID)
	if err != nil {
		return fmt.Errorf("store: insert election result marker: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// A result already exists for this election; idempotent no-op.
		return tx.Commit()
	}
	for _, c := range r.Results {
		if _, err := tx.Exec(`
			UPDATE candidate_runs_in_election SET result = $1, tally_proof = $2
			WHERE candidate_id = $3 AND election_id = $4`,
			c.Votes, c.Proof, c.CandidateID, r.ElectionID); err != nil {
			return fmt.Errorf("store: update candidate result: %w", err)
		}
	}
	return tx.Commit()
}

// ElectionResult returns the published outcome for an election, or
// ErrNotFound if the Tallying Server has not posted one yet.
func (s *Store) ElectionResult(electionID string) (*types.ElectionResult, error) {
	var exists bool
	if err := s.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM election_results WHERE election_id = $1)`, electionID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}
	rows, err := s.db.Query(`
		SELECT candidate_id, COALESCE(result, 0), COALESCE(tally_proof, '\x')
		FROM candidate_runs_in_election WHERE election_id = $1 ORDER BY ord`, electionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	r := &types.ElectionResult{ElectionID: electionID}
	for rows.Next() {
		var c types.CandidateResult
		if err := rows.Scan(&c.CandidateID, &c.Votes, &c.Proof); err != nil {
			return nil, err
		}
		r.Results = append(r.Results, c)
	}
	return r, rows.Err()
}
