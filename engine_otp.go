package goCred

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"time"

	"github.com/MrEthical07/goCred/internal"
	"github.com/MrEthical07/goCred/internal/flows"
	"github.com/MrEthical07/goCred/internal/limiters"
	"github.com/MrEthical07/goCred/password"
)

/*
====================================
SIGN UP
====================================
*/

// Register creates a local principal. When email confirmation is required
// the principal starts unconfirmed with a confirm-email code on record, and
// the code is handed to the [Notifier].
func (e *Engine) Register(ctx context.Context, in RegisterInput) (Principal, error) {
	if err := e.ready(); err != nil {
		return Principal{}, err
	}

	email, err := normalizeEmail(in.Email)
	if err != nil {
		return Principal{}, err
	}
	role := in.Role
	if role == "" {
		role = RoleUser
	}
	if !role.Valid() {
		return Principal{}, fmt.Errorf("%w: role %q", ErrInvalidInput, role)
	}
	if err := e.checkPasswordPolicy(in.Password); err != nil {
		return Principal{}, err
	}

	if err := e.signUpLimiter.Enforce(ctx, email, clientIPFromContext(ctx)); err != nil {
		if errors.Is(err, limiters.ErrAccountRateLimited) {
			e.metricInc(MetricSignUpRateLimited)
			e.emitRateLimit(ctx, "signup", nil)
			return Principal{}, ErrRateLimited
		}
		return Principal{}, e.limiterUnavailable(ctx, err)
	}

	if _, err := e.principals.FindByEmail(ctx, email); err == nil {
		e.metricInc(MetricSignUpDuplicate)
		e.emitAudit(ctx, auditEventSignUpFailure, false, "", "", ErrPrincipalExists, nil)
		return Principal{}, ErrPrincipalExists
	} else if !errors.Is(err, ErrPrincipalNotFound) {
		e.logger.ErrorContext(ctx, "goCred: principal lookup failed", "error", err)
		return Principal{}, storeUnavailable(err)
	}

	hash, err := e.hashPassword(in.Password)
	if err != nil {
		return Principal{}, err
	}

	phone := ""
	if in.Phone != "" {
		if e.cipher == nil {
			return Principal{}, fmt.Errorf("%w: field cipher", ErrConfigurationMissing)
		}
		phone, err = e.cipher.Encrypt(in.Phone)
		if err != nil {
			return Principal{}, err
		}
	}

	id, err := internal.NewPrincipalID()
	if err != nil {
		return Principal{}, err
	}

	now := e.now()
	p := Principal{
		ID:              id,
		Email:           email,
		Role:            role,
		Provider:        ProviderSystem,
		PasswordHash:    hash,
		PasswordHistory: []string{hash},
		Phone:           phone,
		CreatedAt:       now,
	}

	var code string
	if e.config.Security.RequireEmailConfirm {
		var otp OTP
		code, otp, err = e.newOTP(now)
		if err != nil {
			return Principal{}, err
		}
		p.ConfirmEmailOTP = otp
	} else {
		p.IsEmailConfirmed = true
		p.EmailConfirmedAt = now
	}

	created, err := e.principals.Create(ctx, p)
	if err != nil {
		if errors.Is(err, ErrPrincipalExists) {
			e.metricInc(MetricSignUpDuplicate)
			return Principal{}, ErrPrincipalExists
		}
		e.logger.ErrorContext(ctx, "goCred: principal create failed", "error", err)
		return Principal{}, storeUnavailable(err)
	}

	if code != "" {
		e.notify(ctx, created.ID, Notification{
			To:        created.Email,
			Kind:      NotifyConfirmEmail,
			Code:      code,
			ExpiresAt: created.ConfirmEmailOTP.ExpiresAt,
		})
	}

	e.metricInc(MetricSignUpSuccess)
	e.emitAudit(ctx, auditEventSignUpSuccess, true, created.ID, "", nil, func() map[string]string {
		return map[string]string{"role": string(created.Role)}
	})
	return created, nil
}

/*
====================================
EMAIL CONFIRMATION
====================================
*/

// ResendConfirmEmail replaces the confirm-email code of an unconfirmed
// principal and sends the new one.
func (e *Engine) ResendConfirmEmail(ctx context.Context, email string) error {
	if err := e.ready(); err != nil {
		return err
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if err := e.checkOTPRequest(ctx, limiters.PurposeConfirmEmail, email); err != nil {
		return err
	}

	p, err := e.loadByEmail(ctx, email)
	if err != nil {
		return err
	}
	if p.Deleted() || p.IsEmailConfirmed {
		return ErrPrincipalNotFound
	}

	code, otp, err := e.newOTP(e.now())
	if err != nil {
		return err
	}
	_, err = e.principals.UpdateFields(ctx, p.ID,
		Condition{NotDeleted: true, EmailUnconfirmed: true},
		Patch{ConfirmEmailOTP: &otp},
	)
	if err != nil {
		return e.mapUpdateError(ctx, err, ErrPrincipalNotFound)
	}

	e.notify(ctx, p.ID, Notification{To: p.Email, Kind: NotifyConfirmEmail, Code: code, ExpiresAt: otp.ExpiresAt})
	e.metricInc(MetricEmailConfirmRequest)
	e.emitAudit(ctx, auditEventEmailConfirmRequest, true, p.ID, "", nil, nil)
	return nil
}

// ConfirmEmail consumes the confirm-email code. Expiry is checked before the
// code itself, so an expired code reports [ErrOTPExpired] even when correct.
// The update is conditioned on the same code still being stored, which makes
// codes single-use under concurrent submission.
func (e *Engine) ConfirmEmail(ctx context.Context, email, code string) error {
	if err := e.ready(); err != nil {
		return err
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if err := e.checkOTPConfirm(ctx, limiters.PurposeConfirmEmail, email); err != nil {
		return err
	}

	p, err := e.loadByEmail(ctx, email)
	if err != nil {
		return err
	}
	if p.Deleted() || p.IsEmailConfirmed || !p.ConfirmEmailOTP.Present() {
		return ErrPrincipalNotFound
	}

	now := e.now()
	if err := e.checkOTP(ctx, limiters.PurposeConfirmEmail, email, now, p.ConfirmEmailOTP, code); err != nil {
		e.metricInc(MetricEmailConfirmFailure)
		e.emitAudit(ctx, auditEventEmailConfirm, false, p.ID, "", err, nil)
		return err
	}

	_, err = e.principals.UpdateFields(ctx, p.ID,
		Condition{NotDeleted: true, EmailUnconfirmed: true, ConfirmEmailOTPHash: p.ConfirmEmailOTP.Hash},
		Patch{
			IsEmailConfirmed: ref(true),
			EmailConfirmedAt: &now,
			ConfirmEmailOTP:  &OTP{},
		},
	)
	if err != nil {
		err = e.mapUpdateError(ctx, err, ErrOTPMismatch)
		e.metricInc(MetricEmailConfirmFailure)
		e.emitAudit(ctx, auditEventEmailConfirm, false, p.ID, "", err, nil)
		return err
	}

	e.resetOTPConfirm(ctx, limiters.PurposeConfirmEmail, email)
	e.metricInc(MetricEmailConfirmSuccess)
	e.emitAudit(ctx, auditEventEmailConfirm, true, p.ID, "", nil, nil)
	return nil
}

/*
====================================
PASSWORD RESET
====================================
*/

// RequestReset issues a password-reset code to a local, active principal.
// Any earlier code and any confirmed-but-unused reset are discarded.
func (e *Engine) RequestReset(ctx context.Context, email string) error {
	if err := e.ready(); err != nil {
		return err
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if err := e.checkOTPRequest(ctx, limiters.PurposeResetPassword, email); err != nil {
		return err
	}

	p, err := e.loadByEmail(ctx, email)
	if err != nil {
		return err
	}
	if p.Deleted() || p.Provider != ProviderSystem {
		return ErrPrincipalNotFound
	}

	code, otp, err := e.newOTP(e.now())
	if err != nil {
		return err
	}
	_, err = e.principals.UpdateFields(ctx, p.ID, Condition{NotDeleted: true}, Patch{
		ForgotPasswordOTP:            &otp,
		IsForgotPasswordOTPConfirmed: ref(false),
		ResetConfirmedAt:             &time.Time{},
	})
	if err != nil {
		return e.mapUpdateError(ctx, err, ErrPrincipalNotFound)
	}

	e.notify(ctx, p.ID, Notification{To: p.Email, Kind: NotifyResetPassword, Code: code, ExpiresAt: otp.ExpiresAt})
	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, p.ID, "", nil, nil)
	return nil
}

// ConfirmReset consumes the reset code and grants the reset capability. The
// password is not changed until [Engine.CompleteReset].
func (e *Engine) ConfirmReset(ctx context.Context, email, code string) error {
	if err := e.ready(); err != nil {
		return err
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if err := e.checkOTPConfirm(ctx, limiters.PurposeResetPassword, email); err != nil {
		return err
	}

	p, err := e.loadByEmail(ctx, email)
	if err != nil {
		return err
	}
	if p.Deleted() || p.Provider != ProviderSystem || !p.ForgotPasswordOTP.Present() {
		return ErrPrincipalNotFound
	}

	now := e.now()
	if err := e.checkOTP(ctx, limiters.PurposeResetPassword, email, now, p.ForgotPasswordOTP, code); err != nil {
		e.metricInc(MetricPasswordResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, p.ID, "", err, nil)
		return err
	}

	_, err = e.principals.UpdateFields(ctx, p.ID,
		Condition{NotDeleted: true, ForgotPasswordOTPHash: p.ForgotPasswordOTP.Hash},
		Patch{
			ForgotPasswordOTP:            &OTP{},
			IsForgotPasswordOTPConfirmed: ref(true),
			ResetConfirmedAt:             &now,
		},
	)
	if err != nil {
		err = e.mapUpdateError(ctx, err, ErrOTPMismatch)
		e.metricInc(MetricPasswordResetConfirmFailure)
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, p.ID, "", err, nil)
		return err
	}

	e.resetOTPConfirm(ctx, limiters.PurposeResetPassword, email)
	e.metricInc(MetricPasswordResetConfirmSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, p.ID, "", nil, nil)
	return nil
}

// CompleteReset sets a new password using the capability granted by
// [Engine.ConfirmReset]. The capability is consumed by the same update that
// writes the password and lapses after OTP.ResetWindow.
func (e *Engine) CompleteReset(ctx context.Context, email, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	p, err := e.loadByEmail(ctx, email)
	if err != nil {
		return err
	}
	if p.Deleted() {
		return ErrPrincipalInactive
	}
	if !p.IsForgotPasswordOTPConfirmed {
		e.emitAudit(ctx, auditEventPasswordResetComplete, false, p.ID, "", ErrOTPPreconditionFailed, nil)
		return ErrOTPPreconditionFailed
	}

	now := e.now()
	if p.ResetConfirmedAt.IsZero() || !now.Before(p.ResetConfirmedAt.Add(e.config.OTP.ResetWindow)) {
		_, err := e.principals.UpdateFields(ctx, p.ID, Condition{ResetConfirmed: true}, Patch{
			IsForgotPasswordOTPConfirmed: ref(false),
			ResetConfirmedAt:             &time.Time{},
		})
		if err != nil && !errors.Is(err, ErrPrincipalConflict) {
			e.logger.WarnContext(ctx, "goCred: clearing lapsed reset failed", "error", err)
		}
		e.emitAudit(ctx, auditEventPasswordResetComplete, false, p.ID, "", ErrOTPExpired, nil)
		return ErrOTPExpired
	}

	if _, err := e.changePassword(ctx, p, newPassword, Condition{ResetConfirmed: true}, ErrOTPPreconditionFailed); err != nil {
		e.emitAudit(ctx, auditEventPasswordResetComplete, false, p.ID, "", err, nil)
		return err
	}

	e.metricInc(MetricPasswordResetComplete)
	e.emitAudit(ctx, auditEventPasswordResetComplete, true, p.ID, "", nil, nil)
	return nil
}

/*
====================================
HELPERS
====================================
*/

func (e *Engine) newOTP(now time.Time) (string, OTP, error) {
	code, err := internal.NewOTP(e.config.OTP.Digits)
	if err != nil {
		return "", OTP{}, err
	}
	hash, err := e.otpHasher.Hash(code)
	if err != nil {
		return "", OTP{}, err
	}
	return code, OTP{Hash: hash, ExpiresAt: now.Add(e.config.OTP.TTL)}, nil
}

func (e *Engine) checkOTP(ctx context.Context, purpose limiters.OTPPurpose, email string, now time.Time, otp OTP, code string) error {
	result, err := flows.CheckOTP(now, otp.Hash, otp.ExpiresAt, code, e.otpHasher.Verify)
	switch result {
	case flows.OTPValid:
		return nil
	case flows.OTPMissing:
		return ErrPrincipalNotFound
	case flows.OTPExpired:
		return ErrOTPExpired
	case flows.OTPCompareError:
		e.logger.ErrorContext(ctx, "goCred: stored otp hash unreadable", "error", err)
		return ErrOTPMismatch
	default:
		if err := e.otpLimiter.RecordConfirmFailure(ctx, purpose, email); err != nil {
			e.logger.WarnContext(ctx, "goCred: otp failure counter unavailable", "error", err)
		}
		return ErrOTPMismatch
	}
}

func (e *Engine) checkOTPRequest(ctx context.Context, purpose limiters.OTPPurpose, email string) error {
	err := e.otpLimiter.CheckRequest(ctx, purpose, email)
	if err == nil {
		return nil
	}
	if errors.Is(err, limiters.ErrOTPRateLimited) {
		e.metricInc(MetricOTPRateLimited)
		e.emitRateLimit(ctx, "otp_request", func() map[string]string {
			return map[string]string{"purpose": string(purpose)}
		})
		return ErrRateLimited
	}
	return e.limiterUnavailable(ctx, err)
}

func (e *Engine) checkOTPConfirm(ctx context.Context, purpose limiters.OTPPurpose, email string) error {
	err := e.otpLimiter.CheckConfirm(ctx, purpose, email)
	if err == nil {
		return nil
	}
	if errors.Is(err, limiters.ErrOTPRateLimited) {
		e.metricInc(MetricOTPRateLimited)
		e.emitRateLimit(ctx, "otp_confirm", func() map[string]string {
			return map[string]string{"purpose": string(purpose)}
		})
		return ErrRateLimited
	}
	return e.limiterUnavailable(ctx, err)
}

func (e *Engine) resetOTPConfirm(ctx context.Context, purpose limiters.OTPPurpose, email string) {
	if err := e.otpLimiter.ResetConfirm(ctx, purpose, email); err != nil {
		e.logger.WarnContext(ctx, "goCred: otp failure counter reset failed", "error", err)
	}
}

// limiterUnavailable fails closed when the throttle backend is down.
func (e *Engine) limiterUnavailable(ctx context.Context, err error) error {
	e.logger.ErrorContext(ctx, "goCred: rate limiter unavailable", "error", err)
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// notify hands n to the notifier on a context detached from the request, so
// a client disconnect does not cancel delivery. Failures are logged and
// never undo the stored code.
func (e *Engine) notify(ctx context.Context, principalID string, n Notification) {
	nctx := context.WithoutCancel(ctx)
	if e.config.Notify.Timeout > 0 {
		var cancel context.CancelFunc
		nctx, cancel = context.WithTimeout(nctx, e.config.Notify.Timeout)
		defer cancel()
	}
	if err := e.notifier.Notify(nctx, n); err != nil {
		e.metricInc(MetricNotifyFailure)
		e.logger.WarnContext(ctx, "goCred: notification not delivered",
			"kind", string(n.Kind),
			"principal_id", principalID,
			"error", err,
		)
		e.emitAudit(ctx, auditEventNotificationUndelivered, false, principalID, "", err, func() map[string]string {
			return map[string]string{"kind": string(n.Kind)}
		})
	}
}

func (e *Engine) hashPassword(plain string) (string, error) {
	hash, err := e.passwords.Hash(plain)
	if err != nil {
		if errors.Is(err, password.ErrEmptyInput) || errors.Is(err, password.ErrInputTooLong) {
			return "", fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
		}
		return "", err
	}
	return hash, nil
}

func normalizeEmail(email string) (string, error) {
	normalized := internal.NormalizeEmail(email)
	if normalized == "" {
		return "", fmt.Errorf("%w: email required", ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(normalized)
	if err != nil || addr.Address != normalized {
		return "", fmt.Errorf("%w: malformed email", ErrInvalidInput)
	}
	return normalized, nil
}

// logNotifier is the fallback [Notifier]. It records that a code was issued
// without the code itself.
type logNotifier struct {
	logger *slog.Logger
}

func (n logNotifier) Notify(ctx context.Context, msg Notification) error {
	n.logger.InfoContext(ctx, "goCred: notification queued without a sender",
		"kind", string(msg.Kind),
		"expires_at", msg.ExpiresAt,
	)
	return nil
}
