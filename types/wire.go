package types

import "github.com/lokivote/cbr-voting/crypto/elgamal"

// This file collects the small request/response DTOs exchanged between
// the services, shared between each service's api package (decoding
// incoming requests) and the client package (encoding outgoing calls), so
// the wire shape is defined exactly once.

// PublicKeyNotification is POSTed by VS/TS to BB's /receive-public-key; BB
// then notifies RA's /key_ready with a KeyReadyNotification.
type PublicKeyNotification struct {
	Service   string `json:"service"` // "vs" or "ts"
	PublicKey []byte `json:"key"`
}

// VoterKeyEntry is one row of the batch RA POSTs to BB's /receive-voter-keys.
type VoterKeyEntry struct {
	VoterID    string `json:"voterId"`
	ElectionID string `json:"electionId"`
	PublicKey  []byte `json:"publicKey"`
}

// VoterKeyPair is returned by RA's /voter-keys, built from RA's local
// keystore entry: the
// voter's own secret key handed out-of-band to the voter-facing app, plus
// the matching public key already posted to BB.
type VoterKeyPair struct {
	VoterID    string `json:"voterId"`
	ElectionID string `json:"electionId"`
	SecretKey  []byte `json:"secretKey"`
	PublicKey  []byte `json:"publicKey"`
}

// PublicKeysTSVS is BB's /public-keys-tsvs response.
type PublicKeysTSVS struct {
	PublicKeyTS []byte `json:"publicKeyTallyingServer"`
	PublicKeyVS []byte `json:"publicKeyVotingServer"`
}

// LastPreviousLast is BB's /last_previous_last_ballot and /preceding-ballots
// response: the two most recent (or immediately preceding) CBR rows for a
// voter, duplicated into both fields when only one row exists.
type LastPreviousLast struct {
	Last         *Ballot `json:"last"`
	PreviousLast *Ballot `json:"previousLast"`
}

// CBRLength is BB's /cbr_length response.
type CBRLength struct {
	Length int `json:"length"`
}

// KeyReadyNotification is POSTed by BB to RA's /key_ready once a service's
// public key has been persisted.
type KeyReadyNotification struct {
	Service string `json:"service"` // "vs" or "ts"
}

// ElectionIDNotification carries just an election id, used by BB's
// /send-election-startdate and TS's /receive-election.
type ElectionIDNotification struct {
	ElectionID string `json:"electionid"`
}

// ReceiveBallotResponse is VS's /receive-ballot response: the image
// filename the voter should memorise for their next scheduled slot, or
// the literal string "Ballot rejected" when the election is not active.
type ReceiveBallotResponse struct {
	ImagePath string `json:"image"`
}

// RejectedImagePath is the sentinel ReceiveBallotResponse.ImagePath value
// returned when a ballot is submitted outside the election's active window.
const RejectedImagePath = "Ballot rejected"

// SubmittedBallot is the wire shape a voter-facing client POSTs to VS's
// /receive-ballot: a ballot the voter has assembled and proved themselves,
// not yet timestamped or slotted into an image (VS fills those in at
// emission time).
type SubmittedBallot struct {
	VoterID    string                `json:"voterId"`
	ElectionID string                `json:"electionId"`
	UPK        []byte                `json:"upk"`
	CTV        []*elgamal.Ciphertext `json:"ctv"`
	CTLV       *elgamal.Ciphertext   `json:"ctlv"`
	CTLID      *elgamal.Ciphertext   `json:"ctlid"`
	Proof      []byte                `json:"proof"`
}
