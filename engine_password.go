package goCred

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/MrEthical07/goCred/internal/flows"
	"github.com/MrEthical07/goCred/password"
	"golang.org/x/crypto/bcrypt"
)

// ChangePassword replaces a principal's password.
//
// The new password must meet the length policy and must not match the
// current hash or any history entry. On success the new hash is appended to
// the bounded history, ChangeCredentialsAt moves to now (every earlier token
// becomes stale) and all OTP and reset state is cleared. The write is
// conditioned on the hash that was read, so two concurrent changes cannot
// both succeed; the loser gets [ErrPrincipalConflict].
func (e *Engine) ChangePassword(ctx context.Context, principalID, newPassword string) (Principal, error) {
	if err := e.ready(); err != nil {
		return Principal{}, err
	}
	if principalID == "" {
		return Principal{}, fmt.Errorf("%w: principal id", ErrInvalidInput)
	}
	p, err := e.loadByID(ctx, principalID)
	if err != nil {
		return Principal{}, err
	}
	return e.changePassword(ctx, p, newPassword, Condition{}, ErrPrincipalConflict)
}

// UpdatePassword changes the authenticated principal's password after
// checking the current one, then applies in.Logout.
//
// A password change always makes earlier tokens stale. With LogoutStay a
// fresh pair is returned so the caller stays signed in; other modes return a
// zero TokenPair. LogoutSignout additionally revokes the presented jti.
func (e *Engine) UpdatePassword(ctx context.Context, res *AuthResult, in UpdatePasswordInput) (TokenPair, error) {
	if err := e.ready(); err != nil {
		return TokenPair{}, err
	}
	if res == nil || res.Principal.ID == "" {
		return TokenPair{}, ErrUnauthenticated
	}
	mode, err := ParseLogoutMode(string(in.Logout))
	if err != nil {
		return TokenPair{}, err
	}

	p, err := e.loadByID(ctx, res.Principal.ID)
	if err != nil {
		return TokenPair{}, err
	}
	if p.Deleted() {
		return TokenPair{}, ErrPrincipalInactive
	}
	if p.PasswordHash == "" {
		e.metricInc(MetricPasswordChangeInvalidCurrent)
		return TokenPair{}, ErrInvalidCredentials
	}
	ok, err := e.passwords.Verify(in.Current, p.PasswordHash)
	if err != nil && !errors.Is(err, password.ErrInputTooLong) {
		e.logger.ErrorContext(ctx, "goCred: stored password hash unreadable", "error", err)
	}
	if !ok {
		e.metricInc(MetricPasswordChangeInvalidCurrent)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, p.ID, res.JTI(), ErrInvalidCredentials, nil)
		return TokenPair{}, ErrInvalidCredentials
	}

	updated, err := e.changePassword(ctx, p, in.New, Condition{}, ErrPrincipalConflict)
	if err != nil {
		return TokenPair{}, err
	}

	switch mode {
	case LogoutSignout:
		if err := e.Logout(ctx, res, LogoutSignout); err != nil {
			return TokenPair{}, err
		}
	case LogoutEverywhere:
		e.metricInc(MetricLogoutEverywhere)
		e.emitAudit(ctx, auditEventLogoutEverywhere, true, p.ID, res.JTI(), nil, nil)
	case LogoutStay:
		return e.Issue(ctx, updated)
	}
	return TokenPair{}, nil
}

// changePassword runs the shared policy, reuse and write steps. guard is
// merged into the update condition; conflict is returned when it no longer
// holds.
func (e *Engine) changePassword(ctx context.Context, p Principal, plain string, guard Condition, conflict error) (Principal, error) {
	if p.Deleted() {
		return Principal{}, ErrPrincipalInactive
	}
	if err := e.checkPasswordPolicy(plain); err != nil {
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, p.ID, "", err, nil)
		return Principal{}, err
	}

	reused, err := flows.PasswordReused(plain, p.PasswordHash, p.PasswordHistory, e.verifyHistoric)
	if err != nil {
		e.logger.ErrorContext(ctx, "goCred: password history unreadable", "principal_id", p.ID, "error", err)
		return Principal{}, err
	}
	if reused {
		e.metricInc(MetricPasswordChangeReuseRejected)
		e.emitAudit(ctx, auditEventPasswordChangeReuse, false, p.ID, "", ErrPasswordReused, nil)
		return Principal{}, ErrPasswordReused
	}

	hash, err := e.hashPassword(plain)
	if err != nil {
		return Principal{}, err
	}
	history := flows.AppendHistory(p.PasswordHistory, hash, e.config.Password.HistorySize)
	now := e.now()

	cond := guard
	cond.NotDeleted = true
	cond.PasswordHash = &p.PasswordHash

	updated, err := e.principals.UpdateFields(ctx, p.ID, cond, Patch{
		PasswordHash:                 &hash,
		PasswordHistory:              &history,
		ChangeCredentialsAt:          &now,
		ConfirmEmailOTP:              &OTP{},
		ForgotPasswordOTP:            &OTP{},
		IsForgotPasswordOTPConfirmed: ref(false),
		ResetConfirmedAt:             &time.Time{},
	})
	if err != nil {
		return Principal{}, e.mapUpdateError(ctx, err, conflict)
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, p.ID, "", nil, nil)
	return updated, nil
}

// verifyHistoric treats inputs bcrypt cannot represent as a non-match, so a
// long password never trips on a legacy history entry.
func (e *Engine) verifyHistoric(plain, hash string) (bool, error) {
	ok, err := e.passwords.Verify(plain, hash)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return false, nil
	}
	return ok, err
}

func (e *Engine) checkPasswordPolicy(plain string) error {
	if utf8.RuneCountInString(plain) < e.config.Password.MinLength {
		return fmt.Errorf("%w: minimum length is %d", ErrPasswordPolicy, e.config.Password.MinLength)
	}
	if len(plain) > password.DefaultMaxPasswordBytes {
		return fmt.Errorf("%w: maximum length is %d bytes", ErrPasswordPolicy, password.DefaultMaxPasswordBytes)
	}
	return nil
}
