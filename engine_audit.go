package goCred

import (
	"context"
	"errors"
)

const (
	auditEventTokenIssued             = "token_issued"
	auditEventVerifyFailure           = "verify_failure"
	auditEventRefreshSuccess          = "refresh_success"
	auditEventRefreshFailure          = "refresh_failure"
	auditEventLogoutSignout           = "logout_signout"
	auditEventLogoutEverywhere        = "logout_everywhere"
	auditEventSignInSuccess           = "signin_success"
	auditEventSignInFailure           = "signin_failure"
	auditEventSignInRateLimited       = "signin_rate_limited"
	auditEventSignUpSuccess           = "signup_success"
	auditEventSignUpFailure           = "signup_failure"
	auditEventEmailConfirmRequest     = "email_confirm_request"
	auditEventEmailConfirm            = "email_confirm"
	auditEventPasswordResetRequest    = "password_reset_request"
	auditEventPasswordResetConfirm    = "password_reset_confirm"
	auditEventPasswordResetComplete   = "password_reset_complete"
	auditEventPasswordChangeSuccess   = "password_change_success"
	auditEventPasswordChangeFailure   = "password_change_failure"
	auditEventPasswordChangeReuse     = "password_change_reuse_attempt"
	auditEventAccountDeleted          = "account_deleted"
	auditEventAccountRestored         = "account_restored"
	auditEventFederatedSignInSuccess  = "federated_signin_success"
	auditEventFederatedSignInFailure  = "federated_signin_failure"
	auditEventRateLimitTriggered      = "rate_limit_triggered"
	auditEventNotificationUndelivered = "notification_undelivered"
)

// AuditErrorCode is the stable error label attached to failed audit events.
type AuditErrorCode string

const (
	auditErrUnauthenticated     AuditErrorCode = "unauthenticated"
	auditErrInvalidToken        AuditErrorCode = "invalid_token"
	auditErrTokenRevoked        AuditErrorCode = "token_revoked"
	auditErrTokenStale          AuditErrorCode = "token_stale"
	auditErrPrincipalNotFound   AuditErrorCode = "principal_not_found"
	auditErrPrincipalInactive   AuditErrorCode = "principal_inactive"
	auditErrInvalidCredentials  AuditErrorCode = "invalid_credentials"
	auditErrEmailNotConfirmed   AuditErrorCode = "email_not_confirmed"
	auditErrOTPExpired          AuditErrorCode = "otp_expired"
	auditErrOTPMismatch         AuditErrorCode = "otp_mismatch"
	auditErrOTPPrecondition     AuditErrorCode = "otp_precondition_failed"
	auditErrPasswordPolicy      AuditErrorCode = "password_policy"
	auditErrPasswordReused      AuditErrorCode = "password_reused"
	auditErrRateLimited         AuditErrorCode = "rate_limited"
	auditErrDuplicate           AuditErrorCode = "duplicate"
	auditErrConflict            AuditErrorCode = "conflict"
	auditErrForbidden           AuditErrorCode = "forbidden"
	auditErrFederatedInvalid    AuditErrorCode = "federated_identity_invalid"
	auditErrInvalidInput        AuditErrorCode = "invalid_input"
	auditErrUnavailable         AuditErrorCode = "backend_unavailable"
	auditErrConfigurationAbsent AuditErrorCode = "configuration_missing"
	auditErrInternal            AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	principalID string,
	jti string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		Principal: principalID,
		JTI:       jti,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope string, metadataBuilder func() map[string]string) {
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", "", ErrRateLimited, func() map[string]string {
		base := map[string]string{
			"scope": scope,
		}
		if metadataBuilder == nil {
			return base
		}
		for k, v := range metadataBuilder() {
			base[k] = v
		}
		return base
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrUnauthenticated):
		return auditErrUnauthenticated
	case errors.Is(err, ErrInvalidToken):
		return auditErrInvalidToken
	case errors.Is(err, ErrTokenRevoked):
		return auditErrTokenRevoked
	case errors.Is(err, ErrTokenStale):
		return auditErrTokenStale
	case errors.Is(err, ErrPrincipalNotFound):
		return auditErrPrincipalNotFound
	case errors.Is(err, ErrPrincipalInactive):
		return auditErrPrincipalInactive
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrEmailNotConfirmed):
		return auditErrEmailNotConfirmed
	case errors.Is(err, ErrOTPExpired):
		return auditErrOTPExpired
	case errors.Is(err, ErrOTPMismatch):
		return auditErrOTPMismatch
	case errors.Is(err, ErrOTPPreconditionFailed):
		return auditErrOTPPrecondition
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrPasswordReused):
		return auditErrPasswordReused
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrPrincipalExists):
		return auditErrDuplicate
	case errors.Is(err, ErrPrincipalConflict):
		return auditErrConflict
	case errors.Is(err, ErrForbidden):
		return auditErrForbidden
	case errors.Is(err, ErrFederatedIdentityInvalid):
		return auditErrFederatedInvalid
	case errors.Is(err, ErrInvalidInput):
		return auditErrInvalidInput
	case errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrRevocationUnavailable):
		return auditErrUnavailable
	case errors.Is(err, ErrConfigurationMissing):
		return auditErrConfigurationAbsent
	default:
		return auditErrInternal
	}
}
