package goCred

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/goCred/internal"
	"github.com/MrEthical07/goCred/internal/rate"
)

// SignIn authenticates a local principal by email and password and issues a
// token pair. Unknown emails and wrong passwords both report
// [ErrInvalidCredentials] and both count toward the sign-in throttle.
func (e *Engine) SignIn(ctx context.Context, email, plain string) (TokenPair, Principal, error) {
	if err := e.ready(); err != nil {
		return TokenPair{}, Principal{}, err
	}
	email = internal.NormalizeEmail(email)
	if email == "" || plain == "" {
		return TokenPair{}, Principal{}, ErrInvalidCredentials
	}
	ip := clientIPFromContext(ctx)

	if err := e.signInLimiter.CheckSignIn(ctx, email, ip); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.metricInc(MetricSignInRateLimited)
			e.emitAudit(ctx, auditEventSignInRateLimited, false, "", "", ErrRateLimited, nil)
			return TokenPair{}, Principal{}, ErrRateLimited
		}
		return TokenPair{}, Principal{}, e.limiterUnavailable(ctx, err)
	}

	p, err := e.loadByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return TokenPair{}, Principal{}, e.failSignIn(ctx, email, ip, "")
		}
		return TokenPair{}, Principal{}, err
	}
	if p.Provider != ProviderSystem || p.PasswordHash == "" {
		return TokenPair{}, Principal{}, e.failSignIn(ctx, email, ip, p.ID)
	}

	ok, err := e.passwords.Verify(plain, p.PasswordHash)
	if err != nil {
		e.logger.WarnContext(ctx, "goCred: password verification error", "principal_id", p.ID, "error", err)
	}
	if !ok {
		return TokenPair{}, Principal{}, e.failSignIn(ctx, email, ip, p.ID)
	}

	if p.Deleted() {
		e.metricInc(MetricSignInFailure)
		e.emitAudit(ctx, auditEventSignInFailure, false, p.ID, "", ErrPrincipalInactive, nil)
		return TokenPair{}, Principal{}, ErrPrincipalInactive
	}
	if e.config.Security.RequireEmailConfirm && !p.IsEmailConfirmed {
		e.metricInc(MetricSignInFailure)
		e.emitAudit(ctx, auditEventSignInFailure, false, p.ID, "", ErrEmailNotConfirmed, nil)
		return TokenPair{}, Principal{}, ErrEmailNotConfirmed
	}

	if err := e.signInLimiter.ResetSignIn(ctx, email); err != nil {
		e.logger.WarnContext(ctx, "goCred: sign-in counter reset failed", "error", err)
	}
	e.upgradeHash(ctx, p, plain)

	pair, err := e.Issue(ctx, p)
	if err != nil {
		return TokenPair{}, Principal{}, err
	}

	e.metricInc(MetricSignInSuccess)
	e.emitAudit(ctx, auditEventSignInSuccess, true, p.ID, pair.JTI, nil, nil)
	return pair, p, nil
}

func (e *Engine) failSignIn(ctx context.Context, email, ip, principalID string) error {
	e.metricInc(MetricSignInFailure)
	e.emitAudit(ctx, auditEventSignInFailure, false, principalID, "", ErrInvalidCredentials, nil)

	if err := e.signInLimiter.IncrementSignIn(ctx, email, ip); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.metricInc(MetricSignInRateLimited)
			e.emitRateLimit(ctx, "signin", nil)
		} else {
			e.logger.WarnContext(ctx, "goCred: sign-in counter unavailable", "error", err)
		}
	}
	return ErrInvalidCredentials
}

// upgradeHash rewrites a legacy or under-parameterized hash after a
// successful sign-in. It does not touch ChangeCredentialsAt, and a lost race
// is ignored.
func (e *Engine) upgradeHash(ctx context.Context, p Principal, plain string) {
	if !e.passwords.NeedsRehash(p.PasswordHash) {
		return
	}
	hash, err := e.passwords.Hash(plain)
	if err != nil {
		return
	}
	history := make([]string, len(p.PasswordHistory))
	for i, h := range p.PasswordHistory {
		if h == p.PasswordHash {
			h = hash
		}
		history[i] = h
	}
	_, err = e.principals.UpdateFields(ctx, p.ID,
		Condition{NotDeleted: true, PasswordHash: &p.PasswordHash},
		Patch{PasswordHash: &hash, PasswordHistory: &history},
	)
	if err != nil && !errors.Is(err, ErrPrincipalConflict) {
		e.logger.WarnContext(ctx, "goCred: password hash upgrade failed", "principal_id", p.ID, "error", err)
	}
}

// SignInFederated signs in with a third-party ID token. A principal is
// created on first use when AllowFederatedSignUp is set. An email already
// registered with another provider is rejected with [ErrPrincipalExists].
func (e *Engine) SignInFederated(ctx context.Context, idToken string) (TokenPair, Principal, error) {
	if err := e.ready(); err != nil {
		return TokenPair{}, Principal{}, err
	}
	if e.federated == nil {
		return TokenPair{}, Principal{}, fmt.Errorf("%w: federated verifier", ErrConfigurationMissing)
	}
	if idToken == "" {
		return TokenPair{}, Principal{}, ErrFederatedIdentityInvalid
	}

	identity, err := e.federated.VerifyIDToken(ctx, idToken)
	if err != nil {
		e.emitAudit(ctx, auditEventFederatedSignInFailure, false, "", "", ErrFederatedIdentityInvalid, nil)
		return TokenPair{}, Principal{}, fmt.Errorf("%w: %v", ErrFederatedIdentityInvalid, err)
	}
	email := internal.NormalizeEmail(identity.Email)
	if email == "" || !identity.EmailVerified {
		e.emitAudit(ctx, auditEventFederatedSignInFailure, false, "", "", ErrFederatedIdentityInvalid, nil)
		return TokenPair{}, Principal{}, fmt.Errorf("%w: email not verified by provider", ErrFederatedIdentityInvalid)
	}

	p, err := e.loadByEmail(ctx, email)
	switch {
	case err == nil:
		if p.Provider != ProviderGoogle {
			e.emitAudit(ctx, auditEventFederatedSignInFailure, false, p.ID, "", ErrPrincipalExists, nil)
			return TokenPair{}, Principal{}, ErrPrincipalExists
		}
		if p.Deleted() {
			return TokenPair{}, Principal{}, ErrPrincipalInactive
		}
	case errors.Is(err, ErrPrincipalNotFound):
		if !e.config.Security.AllowFederatedSignUp {
			return TokenPair{}, Principal{}, ErrPrincipalNotFound
		}
		p, err = e.createFederated(ctx, email)
		if err != nil {
			return TokenPair{}, Principal{}, err
		}
	default:
		return TokenPair{}, Principal{}, err
	}

	pair, err := e.Issue(ctx, p)
	if err != nil {
		return TokenPair{}, Principal{}, err
	}
	e.metricInc(MetricSignInSuccess)
	e.emitAudit(ctx, auditEventFederatedSignInSuccess, true, p.ID, pair.JTI, nil, nil)
	return pair, p, nil
}

func (e *Engine) createFederated(ctx context.Context, email string) (Principal, error) {
	id, err := internal.NewPrincipalID()
	if err != nil {
		return Principal{}, err
	}
	now := e.now()
	created, err := e.principals.Create(ctx, Principal{
		ID:               id,
		Email:            email,
		Role:             RoleUser,
		Provider:         ProviderGoogle,
		IsEmailConfirmed: true,
		EmailConfirmedAt: now,
		CreatedAt:        now,
	})
	if err != nil {
		if errors.Is(err, ErrPrincipalExists) {
			return Principal{}, ErrPrincipalExists
		}
		e.logger.ErrorContext(ctx, "goCred: principal create failed", "error", err)
		return Principal{}, storeUnavailable(err)
	}
	e.metricInc(MetricSignUpSuccess)
	e.emitAudit(ctx, auditEventSignUpSuccess, true, created.ID, "", nil, func() map[string]string {
		return map[string]string{"provider": string(ProviderGoogle)}
	})
	return created, nil
}
