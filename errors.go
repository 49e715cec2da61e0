package goCred

import "errors"

var (
	// ErrUnauthenticated is returned when no credential was presented.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInvalidToken is returned for a malformed header, bad scheme, bad signature or expired token.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenRevoked is returned when the token's jti is on the revocation list.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrTokenStale is returned when credentials changed after the token was issued.
	ErrTokenStale = errors.New("token stale")
	// ErrPrincipalNotFound is returned when no principal matches the lookup.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrPrincipalInactive is returned for soft-deleted principals.
	ErrPrincipalInactive = errors.New("principal inactive")
	// ErrOTPExpired is returned when the code's expiry has passed.
	ErrOTPExpired = errors.New("otp expired")
	// ErrOTPMismatch is returned when the code does not match the stored hash.
	ErrOTPMismatch = errors.New("otp mismatch")
	// ErrOTPPreconditionFailed is returned when a reset is completed without a confirmed OTP.
	ErrOTPPreconditionFailed = errors.New("otp precondition failed")
	// ErrPasswordReused is returned when the new password matches the current one or its history.
	ErrPasswordReused = errors.New("password reused")
	// ErrConfigurationMissing is returned when a required secret or key is absent.
	ErrConfigurationMissing = errors.New("configuration missing")

	// ErrEngineNotReady is returned by methods called on a nil or partially built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrInvalidCredentials is returned for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailNotConfirmed is returned by SignIn before the email is confirmed.
	ErrEmailNotConfirmed = errors.New("email not confirmed")
	// ErrPasswordPolicy is returned when a password fails the length policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPrincipalExists is returned on duplicate email or provider conflict.
	ErrPrincipalExists = errors.New("principal already exists")
	// ErrPrincipalConflict is returned when a conditional update lost a race.
	ErrPrincipalConflict = errors.New("principal conflict")
	// ErrForbidden is returned when the actor's role does not allow the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrRateLimited is returned when a throttle tripped.
	ErrRateLimited = errors.New("rate limited")
	// ErrStoreUnavailable wraps principal store failures.
	ErrStoreUnavailable = errors.New("principal store unavailable")
	// ErrRevocationUnavailable wraps revocation store failures.
	ErrRevocationUnavailable = errors.New("revocation store unavailable")
	// ErrFederatedIdentityInvalid is returned for an unverifiable or unverified ID token.
	ErrFederatedIdentityInvalid = errors.New("federated identity invalid")
	// ErrInvalidInput is returned for malformed command input.
	ErrInvalidInput = errors.New("invalid input")
)
