package flows

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goCred/jwt"
)

// VerifyFailureKind classifies verification failures for root-level mapping.
type VerifyFailureKind int

const (
	VerifyFailureNone VerifyFailureKind = iota
	VerifyFailureMissingHeader
	VerifyFailureScheme
	VerifyFailureDecode
	VerifyFailurePrincipalNotFound
	VerifyFailureStore
	VerifyFailureInactive
	VerifyFailureLevelMismatch
	VerifyFailureSignature
	VerifyFailureRevoked
	VerifyFailureRevocationStore
	VerifyFailureStale
)

// String returns the metric/audit suffix for the failure kind.
func (k VerifyFailureKind) String() string {
	switch k {
	case VerifyFailureNone:
		return "none"
	case VerifyFailureMissingHeader:
		return "missing_header"
	case VerifyFailureScheme:
		return "scheme"
	case VerifyFailureDecode:
		return "decode"
	case VerifyFailurePrincipalNotFound:
		return "principal_not_found"
	case VerifyFailureStore:
		return "store_unavailable"
	case VerifyFailureInactive:
		return "principal_inactive"
	case VerifyFailureLevelMismatch:
		return "level_mismatch"
	case VerifyFailureSignature:
		return "signature"
	case VerifyFailureRevoked:
		return "revoked"
	case VerifyFailureRevocationStore:
		return "revocation_unavailable"
	case VerifyFailureStale:
		return "stale"
	default:
		return "unknown"
	}
}

// VerifyResult returns either the principal and claims or a classified failure.
type VerifyResult[P any] struct {
	Failure   VerifyFailureKind
	Err       error
	Scheme    string
	Principal P
	Claims    *jwt.Claims
}

// VerifyDeps captures verification dependencies.
type VerifyDeps[P any] struct {
	KnownScheme      func(string) bool
	DecodeUnverified func(string) (*jwt.Claims, error)
	LoadPrincipal    func(context.Context, string) (P, error)
	IsDeleted        func(P) bool
	LevelOf          func(P) string
	Key              func(level string, refresh bool) ([]byte, error)
	Parse            func(token string, key []byte) (*jwt.Claims, error)
	IsRevoked        func(context.Context, string) (bool, error)
	ChangedAt        func(P) time.Time
	NotFound         error
}

// SplitAuthorization splits "<Scheme> <token>". Both parts must be non-empty.
func SplitAuthorization(header string) (scheme, token string, ok bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// RunVerify applies the verification checks in order and stops at the first failure.
func RunVerify[P any](ctx context.Context, header string, refresh bool, deps VerifyDeps[P]) VerifyResult[P] {
	var res VerifyResult[P]

	scheme, token, ok := SplitAuthorization(header)
	if !ok {
		res.Failure = VerifyFailureMissingHeader
		return res
	}
	res.Scheme = scheme
	if !deps.KnownScheme(scheme) {
		res.Failure = VerifyFailureScheme
		return res
	}

	unverified, err := deps.DecodeUnverified(token)
	if err != nil {
		res.Failure = VerifyFailureDecode
		res.Err = err
		return res
	}

	principal, err := deps.LoadPrincipal(ctx, unverified.Subject)
	if err != nil {
		if deps.NotFound != nil && errors.Is(err, deps.NotFound) {
			res.Failure = VerifyFailurePrincipalNotFound
		} else {
			res.Failure = VerifyFailureStore
		}
		res.Err = err
		return res
	}
	res.Principal = principal

	if deps.IsDeleted(principal) {
		res.Failure = VerifyFailureInactive
		return res
	}

	level := deps.LevelOf(principal)
	if scheme != level {
		res.Failure = VerifyFailureLevelMismatch
		return res
	}

	key, err := deps.Key(level, refresh)
	if err != nil {
		res.Failure = VerifyFailureSignature
		res.Err = err
		return res
	}
	claims, err := deps.Parse(token, key)
	if err != nil {
		res.Failure = VerifyFailureSignature
		res.Err = err
		return res
	}
	if claims.Subject != unverified.Subject || claims.SignatureLevel != level {
		res.Failure = VerifyFailureSignature
		return res
	}
	res.Claims = claims

	revoked, err := deps.IsRevoked(ctx, claims.ID)
	if err != nil {
		res.Failure = VerifyFailureRevocationStore
		res.Err = err
		return res
	}
	if revoked {
		res.Failure = VerifyFailureRevoked
		return res
	}

	changedAt := deps.ChangedAt(principal)
	if !changedAt.IsZero() && claims.IssuedBefore(changedAt) {
		res.Failure = VerifyFailureStale
		return res
	}

	return res
}
