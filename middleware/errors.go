package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	goCred "github.com/MrEthical07/goCred"
)

// ErrUnauthorized is the single answer for a rejected credential. Clients
// cannot tell an unknown principal from a bad signature.
var ErrUnauthorized = errors.New("unauthorized")

// tokenFailures are the verification outcomes [Unauthorized] collapses.
var tokenFailures = []error{
	goCred.ErrUnauthenticated,
	goCred.ErrInvalidToken,
	goCred.ErrTokenRevoked,
	goCred.ErrTokenStale,
	goCred.ErrPrincipalNotFound,
	goCred.ErrPrincipalInactive,
}

// Unauthorized maps token verification failures to [ErrUnauthorized].
// Backend outages and other errors are returned unchanged.
func Unauthorized(err error) error {
	for _, target := range tokenFailures {
		if errors.Is(err, target) {
			return ErrUnauthorized
		}
	}
	return err
}

type errorBody struct {
	Error string `json:"error"`
}

var statusByError = []struct {
	err    error
	status int
}{
	{ErrUnauthorized, http.StatusUnauthorized},
	{goCred.ErrUnauthenticated, http.StatusUnauthorized},
	{goCred.ErrInvalidToken, http.StatusUnauthorized},
	{goCred.ErrTokenRevoked, http.StatusUnauthorized},
	{goCred.ErrTokenStale, http.StatusUnauthorized},
	{goCred.ErrInvalidCredentials, http.StatusUnauthorized},
	{goCred.ErrFederatedIdentityInvalid, http.StatusUnauthorized},
	{goCred.ErrForbidden, http.StatusForbidden},
	{goCred.ErrPrincipalInactive, http.StatusForbidden},
	{goCred.ErrEmailNotConfirmed, http.StatusForbidden},
	{goCred.ErrPrincipalNotFound, http.StatusNotFound},
	{goCred.ErrPrincipalExists, http.StatusConflict},
	{goCred.ErrPrincipalConflict, http.StatusConflict},
	{goCred.ErrPasswordReused, http.StatusConflict},
	{goCred.ErrOTPExpired, http.StatusBadRequest},
	{goCred.ErrOTPMismatch, http.StatusBadRequest},
	{goCred.ErrOTPPreconditionFailed, http.StatusBadRequest},
	{goCred.ErrPasswordPolicy, http.StatusBadRequest},
	{goCred.ErrInvalidInput, http.StatusBadRequest},
	{goCred.ErrRateLimited, http.StatusTooManyRequests},
	{goCred.ErrStoreUnavailable, http.StatusServiceUnavailable},
	{goCred.ErrRevocationUnavailable, http.StatusServiceUnavailable},
}

// StatusCode maps an engine error to an HTTP status. Unknown errors are 500.
func StatusCode(err error) int {
	for _, e := range statusByError {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// WriteError writes err as {"error": "..."} with [StatusCode]. Server errors
// are reported without their cause.
func WriteError(w http.ResponseWriter, _ *http.Request, err error) {
	status := StatusCode(err)
	msg := http.StatusText(status)
	if status < http.StatusInternalServerError {
		msg = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: msg})
}
