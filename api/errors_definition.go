//nolint:lll
package api

import (
	"fmt"
	"net/http"
)

// The custom Error type satisfies the error interface.
// Error() returns a human-readable description of the error.
//
// Error codes in the 40001-49999 range are the caller's fault, and return
// HTTP Status 400 or 404, whatever is most appropriate.
//
// Error codes 50001-59999 are the server's fault and return HTTP Status 500
// or 503, or something else if appropriate.
//
// NEVER change any of the current error codes, only append new errors after
// the current last 4XXX or 5XXX. If you notice there's a gap in the
// numbering, DON'T fill it in: that code was used in the past for some
// error (not anymore) and shouldn't be reused.
var (
	ErrResourceNotFound   = Error{Code: 40001, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("resource not found")}
	ErrMalformedBody      = Error{Code: 40004, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("malformed JSON body")}
	ErrMissingParameter   = Error{Code: 40005, HTTPstatus: http.StatusBadRequest, Err: fmt.Errorf("missing required parameter")}
	ErrElectionNotFound   = Error{Code: 40006, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("election not found")}
	ErrVoterNotFound      = Error{Code: 40007, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("voter not registered for this election")}
	ErrResultNotReady     = Error{Code: 40011, HTTPstatus: http.StatusNotFound, Err: fmt.Errorf("election result not yet available")}
	ErrKeysNotReady       = Error{Code: 40012, HTTPstatus: http.StatusPreconditionFailed, Err: fmt.Errorf("voting server and tallying server keys not yet registered")}

	ErrMarshalingServerJSONFailed = Error{Code: 50001, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("marshaling (server-side) JSON failed")}
	ErrGenericInternalServerError = Error{Code: 50002, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("internal server error")}
	ErrStorageFailure             = Error{Code: 50003, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("storage operation failed")}
	ErrCryptoFailure              = Error{Code: 50004, HTTPstatus: http.StatusInternalServerError, Err: fmt.Errorf("cryptographic operation failed")}
)
