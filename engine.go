package goCred

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/goCred/internal"
	"github.com/MrEthical07/goCred/internal/flows"
	"github.com/MrEthical07/goCred/internal/limiters"
	"github.com/MrEthical07/goCred/internal/rate"
	"github.com/MrEthical07/goCred/jwt"
	"github.com/MrEthical07/goCred/password"
	"github.com/MrEthical07/goCred/secret"
)

// Engine issues and verifies tokens and drives the OTP and password flows.
//
// Engine instances are configured once through [Builder] and then treated as
// immutable. All methods are safe for concurrent use; principal state is only
// ever changed through conditional store updates.
type Engine struct {
	config      Config
	secrets     *secret.Resolver
	principals  PrincipalStore
	revocations RevocationStore
	notifier    Notifier
	cipher      FieldCipher
	federated   FederatedVerifier
	logger      *slog.Logger
	now         func() time.Time

	signInLimiter *rate.Limiter
	signUpLimiter *limiters.AccountCreationLimiter
	otpLimiter    *limiters.OTPLimiter
	audit         *auditDispatcher
	metrics       *Metrics
	passwords     *password.Hasher
	otpHasher     *password.Bcrypt
	jwtManager    *jwt.Manager
	flows         flows.Deps[Principal]
}

// Close drains the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditStats reports what the audit dispatcher did with emitted events. It
// is zero while auditing is disabled.
func (e *Engine) AuditStats() AuditStats {
	if e == nil || e.audit == nil {
		return AuditStats{}
	}
	return e.audit.Stats()
}

// MetricsSnapshot returns a copy of the engine's counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return e.config
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() error {
	if e == nil || e.jwtManager == nil || e.principals == nil || e.revocations == nil || e.secrets == nil {
		return ErrEngineNotReady
	}
	return nil
}

func (e *Engine) newFlowDeps() flows.Deps[Principal] {
	return flows.Deps[Principal]{
		Verify: flows.VerifyDeps[Principal]{
			KnownScheme:      secret.Known,
			DecodeUnverified: e.jwtManager.DecodeUnverified,
			LoadPrincipal:    e.principals.FindByID,
			IsDeleted:        Principal.Deleted,
			LevelOf: func(p Principal) string {
				return string(LevelForRole(p.Role))
			},
			Key: func(level string, refresh bool) ([]byte, error) {
				return e.secrets.Key(secret.Level(level), refresh)
			},
			Parse:     e.jwtManager.Parse,
			IsRevoked: e.revocations.Exists,
			ChangedAt: func(p Principal) time.Time {
				return p.ChangeCredentialsAt
			},
			NotFound: ErrPrincipalNotFound,
		},
	}
}

/*
====================================
ISSUE
====================================
*/

// Issue mints an access and refresh token pair for p. Both tokens share one
// jti and carry the signature level derived from p's current role.
func (e *Engine) Issue(ctx context.Context, p Principal) (TokenPair, error) {
	if err := e.ready(); err != nil {
		return TokenPair{}, err
	}
	if p.ID == "" {
		return TokenPair{}, fmt.Errorf("%w: principal id", ErrInvalidInput)
	}
	if p.Deleted() {
		return TokenPair{}, ErrPrincipalInactive
	}

	level := LevelForRole(p.Role)
	pair, err := e.secrets.Pair(level)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrConfigurationMissing, err)
	}

	jti, err := internal.NewJTI()
	if err != nil {
		return TokenPair{}, err
	}

	claims := jwt.Claims{SignatureLevel: string(level)}
	claims.Subject = p.ID
	claims.ID = jti

	now := e.now()
	access, err := e.jwtManager.Sign(claims, []byte(pair.Access), e.config.JWT.AccessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := e.jwtManager.Sign(claims, []byte(pair.Refresh), e.config.JWT.RefreshTTL)
	if err != nil {
		return TokenPair{}, err
	}

	e.metricInc(MetricIssue)
	e.emitAudit(ctx, auditEventTokenIssued, true, p.ID, jti, nil, func() map[string]string {
		return map[string]string{"scheme": string(level)}
	})

	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		Scheme:           level,
		JTI:              jti,
		AccessExpiresAt:  now.Add(e.config.JWT.AccessTTL),
		RefreshExpiresAt: now.Add(e.config.JWT.RefreshTTL),
	}, nil
}

/*
====================================
VERIFY
====================================
*/

// Verify authenticates an Authorization header of the form "<Scheme> <token>".
//
// Checks run in a fixed order and stop at the first failure: header shape,
// scheme, unverified decode, principal lookup, soft delete, level against the
// principal's current role, signature and registered claims, revocation, and
// finally staleness against ChangeCredentialsAt. Backend failures fail closed.
// Verify never writes.
func (e *Engine) Verify(ctx context.Context, authorization string, tokenType TokenType) (*AuthResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if tokenType != TokenAccess && tokenType != TokenRefresh {
		return nil, fmt.Errorf("%w: token type %q", ErrInvalidInput, tokenType)
	}

	start := time.Now()
	defer func() {
		if e.metrics.LatencyEnabled() {
			e.metrics.Observe(MetricVerifyLatency, time.Since(start))
		}
	}()

	res := flows.RunVerify(ctx, authorization, tokenType == TokenRefresh, e.flows.Verify)
	if res.Failure != flows.VerifyFailureNone {
		err := e.verifyError(ctx, res.Failure, res.Err)
		principalID := ""
		if res.Failure >= flows.VerifyFailureInactive {
			principalID = res.Principal.ID
		}
		e.emitAudit(ctx, auditEventVerifyFailure, false, principalID, "", err, func() map[string]string {
			return map[string]string{
				"reason":     res.Failure.String(),
				"token_type": string(tokenType),
			}
		})
		return nil, err
	}

	e.metricInc(MetricVerifySuccess)
	return &AuthResult{
		Principal: res.Principal,
		Claims:    res.Claims,
		TokenType: tokenType,
	}, nil
}

func (e *Engine) verifyError(ctx context.Context, kind flows.VerifyFailureKind, cause error) error {
	switch kind {
	case flows.VerifyFailureMissingHeader:
		e.metricInc(MetricVerifyUnauthenticated)
		return ErrUnauthenticated
	case flows.VerifyFailureScheme:
		e.metricInc(MetricVerifyBadScheme)
		return fmt.Errorf("%w: malformed scheme", ErrInvalidToken)
	case flows.VerifyFailureDecode:
		e.metricInc(MetricVerifyMalformed)
		return ErrInvalidToken
	case flows.VerifyFailurePrincipalNotFound:
		e.metricInc(MetricVerifyPrincipalNotFound)
		return ErrPrincipalNotFound
	case flows.VerifyFailureStore:
		e.metricInc(MetricVerifyStoreUnavailable)
		e.logger.ErrorContext(ctx, "goCred: principal lookup failed", "error", cause)
		return storeUnavailable(cause)
	case flows.VerifyFailureInactive:
		e.metricInc(MetricVerifyPrincipalInactive)
		return ErrPrincipalInactive
	case flows.VerifyFailureLevelMismatch:
		e.metricInc(MetricVerifyLevelMismatch)
		return ErrInvalidToken
	case flows.VerifyFailureSignature:
		e.metricInc(MetricVerifyBadSignature)
		return ErrInvalidToken
	case flows.VerifyFailureRevoked:
		e.metricInc(MetricVerifyRevoked)
		return ErrTokenRevoked
	case flows.VerifyFailureRevocationStore:
		e.metricInc(MetricVerifyRevocationUnavailable)
		e.logger.ErrorContext(ctx, "goCred: revocation lookup failed", "error", cause)
		return fmt.Errorf("%w: %v", ErrRevocationUnavailable, cause)
	case flows.VerifyFailureStale:
		e.metricInc(MetricVerifyStale)
		return ErrTokenStale
	default:
		return ErrInvalidToken
	}
}

/*
====================================
REFRESH
====================================
*/

// Refresh verifies a refresh-token header and issues a new pair for the
// principal. With RevokeOnRefresh the presented jti is revoked first, so a
// refresh token works once.
func (e *Engine) Refresh(ctx context.Context, authorization string) (TokenPair, error) {
	res, err := e.Verify(ctx, authorization, TokenRefresh)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshFailure, false, "", "", err, nil)
		return TokenPair{}, err
	}

	if e.config.JWT.RevokeOnRefresh {
		if err := e.revoke(ctx, res.Principal.ID, res.Claims.ID, res.Claims.ExpiresAt.Time); err != nil {
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshFailure, false, res.Principal.ID, res.Claims.ID, err, nil)
			return TokenPair{}, err
		}
	}

	pair, err := e.Issue(ctx, res.Principal)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshFailure, false, res.Principal.ID, res.Claims.ID, err, nil)
		return TokenPair{}, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, res.Principal.ID, pair.JTI, nil, func() map[string]string {
		return map[string]string{"previous_jti": res.Claims.ID}
	})
	return pair, nil
}

/*
====================================
LOGOUT
====================================
*/

// Logout invalidates credentials according to mode. LogoutSignout revokes
// the presented pair until its refresh token would have expired.
// LogoutEverywhere moves the principal's credential watermark to now, which
// makes every earlier token stale. LogoutStay does nothing.
func (e *Engine) Logout(ctx context.Context, res *AuthResult, mode LogoutMode) error {
	if err := e.ready(); err != nil {
		return err
	}
	if res == nil || res.Claims == nil || res.Principal.ID == "" {
		return ErrUnauthenticated
	}

	switch mode {
	case LogoutStay:
		return nil
	case LogoutSignout, "":
		expiresAt := res.Claims.IssuedAtTime().Add(e.config.JWT.RefreshTTL)
		if err := e.revoke(ctx, res.Principal.ID, res.Claims.ID, expiresAt); err != nil {
			return err
		}
		e.metricInc(MetricLogout)
		e.emitAudit(ctx, auditEventLogoutSignout, true, res.Principal.ID, res.Claims.ID, nil, nil)
		return nil
	case LogoutEverywhere:
		now := e.now()
		_, err := e.principals.UpdateFields(ctx, res.Principal.ID, Condition{NotDeleted: true}, Patch{
			ChangeCredentialsAt: &now,
		})
		if err != nil {
			return e.mapUpdateError(ctx, err, ErrPrincipalInactive)
		}
		e.metricInc(MetricLogoutEverywhere)
		e.emitAudit(ctx, auditEventLogoutEverywhere, true, res.Principal.ID, res.Claims.ID, nil, nil)
		return nil
	default:
		return fmt.Errorf("%w: logout mode %q", ErrInvalidInput, mode)
	}
}

// revoke records jti until expiresAt plus the parser leeway; the record must
// outlive every instant at which the token still parses.
func (e *Engine) revoke(ctx context.Context, principalID, jti string, expiresAt time.Time) error {
	if jti == "" {
		return ErrInvalidToken
	}
	err := e.revocations.Record(ctx, RevocationRecord{
		JTI:         jti,
		PrincipalID: principalID,
		ExpiresAt:   expiresAt.Add(e.config.JWT.Leeway),
	})
	if err != nil {
		e.logger.ErrorContext(ctx, "goCred: revocation record failed", "error", err)
		return fmt.Errorf("%w: %v", ErrRevocationUnavailable, err)
	}
	return nil
}

/*
====================================
STORE ERROR MAPPING
====================================
*/

// mapUpdateError translates a failed conditional update. conflict is the error
// returned when the guard no longer held.
func (e *Engine) mapUpdateError(ctx context.Context, err error, conflict error) error {
	switch {
	case errors.Is(err, ErrPrincipalConflict):
		return conflict
	case errors.Is(err, ErrPrincipalNotFound):
		return ErrPrincipalNotFound
	default:
		e.logger.ErrorContext(ctx, "goCred: principal update failed", "error", err)
		return storeUnavailable(err)
	}
}

func storeUnavailable(err error) error {
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func (e *Engine) loadByEmail(ctx context.Context, email string) (Principal, error) {
	p, err := e.principals.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return Principal{}, ErrPrincipalNotFound
		}
		e.logger.ErrorContext(ctx, "goCred: principal lookup failed", "error", err)
		return Principal{}, storeUnavailable(err)
	}
	return p, nil
}

func (e *Engine) loadByID(ctx context.Context, id string) (Principal, error) {
	p, err := e.principals.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return Principal{}, ErrPrincipalNotFound
		}
		e.logger.ErrorContext(ctx, "goCred: principal lookup failed", "error", err)
		return Principal{}, storeUnavailable(err)
	}
	return p, nil
}
