package api

// Endpoint path constants for the Bulletin Board's HTTP surface.
const (
	ElectionEndpoint              = "/election"
	CandidatesEndpoint            = "/candidates"
	VotersEndpoint                = "/voters"
	ElgamalParamsEndpoint         = "/elgamalparams"
	ReceiveParamsEndpoint         = "/receive-params"
	ReceivePublicKeyEndpoint      = "/receive-public-key"
	ReceiveElectionEndpoint       = "/receive-election"
	ReceiveBallot0Endpoint        = "/receive-ballot0"
	ReceiveBallotEndpoint         = "/receive-ballot"
	ReceiveVoterKeysEndpoint      = "/receive-voter-keys"
	SendElectionStartdateEndpoint = "/send-election-startdate"
	ElectionsForVoterEndpoint     = "/send-elections-for-voter"
	PublicKeysTSVSEndpoint        = "/public-keys-tsvs"
	VoterPublicKeyEndpoint        = "/voter-public-key"
	LastPreviousLastEndpoint      = "/last_previous_last_ballot"
	CBRLengthEndpoint             = "/cbr_length"
	CBRForVoterEndpoint           = "/cbr-for-voter"
	FetchBallotHashesEndpoint     = "/fetch-ballot-hashes"
	FetchLastBallotCTVsEndpoint  = "/fetch_last_ballot_ctvs"
	ReceiveElectionResultEndpoint = "/receive-election-result"
	ElectionResultEndpoint        = "/election-result"
	BallotEndpoint                = "/ballot"
	PrecedingBallotsEndpoint      = "/preceding-ballots"
	PingEndpoint                  = "/ping"
)
