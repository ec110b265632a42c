// Package api implements the shared HTTP error vocabulary used by every
// service's own api package (bb/api, ra/api, vs/api, ts/api). It does not
// itself expose any endpoint: each service wires its own chi router and
// imports this package only for the Error type and the response helpers.
package api

// ServicePeers carries the outbound base URLs a service needs to reach its
// collaborators, taken from each binary's --bburl / --vsurl / --raurl /
// --tsurl flags or their service-prefixed environment variables (e.g.
// BB_VSURL, VS_BBURL); variables named BB_API_URL, VS_API_URL, RA_API_URL
// or TS_API_URL are not read. Not every service needs every peer; a
// service leaves the URLs it does not use at their zero value.
type ServicePeers struct {
	BBURL string
	RAURL string
	VSURL string
	TSURL string
}
