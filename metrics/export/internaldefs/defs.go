package internaldefs

import (
	goCred "github.com/MrEthical07/goCred"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   goCred.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for export.
type HistogramDef struct {
	ID   goCred.MetricID
	Name string
	Help string
}

// LabeledDef is one series of a labeled counter family.
type LabeledDef struct {
	ID    goCred.MetricID
	Label string
}

// LabeledValue is one observed series of a labeled family.
type LabeledValue struct {
	Label string
	Value uint64
}

// CounterDefs lists the unlabeled counters in MetricID order. Verify
// failures are exported through [VerifyFailureDefs] instead.
var CounterDefs = []CounterDef{
	{ID: goCred.MetricIssue, Name: "gocred_token_issued_total", Help: "Issued token pairs."},
	{ID: goCred.MetricVerifySuccess, Name: "gocred_verify_success_total", Help: "Successful token verifications."},
	{ID: goCred.MetricRefreshSuccess, Name: "gocred_refresh_success_total", Help: "Successful refresh operations."},
	{ID: goCred.MetricRefreshFailure, Name: "gocred_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: goCred.MetricLogout, Name: "gocred_logout_total", Help: "Single-pair logout operations."},
	{ID: goCred.MetricLogoutEverywhere, Name: "gocred_logout_everywhere_total", Help: "Logout-everywhere operations."},
	{ID: goCred.MetricSignInSuccess, Name: "gocred_signin_success_total", Help: "Successful sign-ins."},
	{ID: goCred.MetricSignInFailure, Name: "gocred_signin_failure_total", Help: "Failed sign-ins."},
	{ID: goCred.MetricSignInRateLimited, Name: "gocred_signin_rate_limited_total", Help: "Rate-limited sign-ins."},
	{ID: goCred.MetricSignUpSuccess, Name: "gocred_signup_success_total", Help: "Successful registrations."},
	{ID: goCred.MetricSignUpDuplicate, Name: "gocred_signup_duplicate_total", Help: "Registrations rejected as duplicate."},
	{ID: goCred.MetricSignUpRateLimited, Name: "gocred_signup_rate_limited_total", Help: "Rate-limited registrations."},
	{ID: goCred.MetricEmailConfirmRequest, Name: "gocred_email_confirm_request_total", Help: "Email confirmation codes issued."},
	{ID: goCred.MetricEmailConfirmSuccess, Name: "gocred_email_confirm_success_total", Help: "Successful email confirmations."},
	{ID: goCred.MetricEmailConfirmFailure, Name: "gocred_email_confirm_failure_total", Help: "Failed email confirmations."},
	{ID: goCred.MetricPasswordResetRequest, Name: "gocred_password_reset_request_total", Help: "Password reset codes issued."},
	{ID: goCred.MetricPasswordResetConfirmSuccess, Name: "gocred_password_reset_confirm_success_total", Help: "Successful reset code confirmations."},
	{ID: goCred.MetricPasswordResetConfirmFailure, Name: "gocred_password_reset_confirm_failure_total", Help: "Failed reset code confirmations."},
	{ID: goCred.MetricPasswordResetComplete, Name: "gocred_password_reset_complete_total", Help: "Completed password resets."},
	{ID: goCred.MetricPasswordChangeSuccess, Name: "gocred_password_change_success_total", Help: "Successful password changes."},
	{ID: goCred.MetricPasswordChangeInvalidCurrent, Name: "gocred_password_change_invalid_current_total", Help: "Password changes with a wrong current password."},
	{ID: goCred.MetricPasswordChangeReuseRejected, Name: "gocred_password_change_reuse_rejected_total", Help: "Password changes rejected for reuse."},
	{ID: goCred.MetricOTPRateLimited, Name: "gocred_otp_rate_limited_total", Help: "Rate-limited OTP requests and confirmations."},
	{ID: goCred.MetricNotifyFailure, Name: "gocred_notify_failure_total", Help: "Notifications the notifier did not accept."},
	{ID: goCred.MetricAccountDeleted, Name: "gocred_account_deleted_total", Help: "Soft-deleted accounts."},
	{ID: goCred.MetricAccountRestored, Name: "gocred_account_restored_total", Help: "Restored accounts."},
}

// VerifyFailures is a counter family with one series per rejection reason.
// The reasons are the check that failed, in verification order.
const (
	VerifyFailuresName  = "gocred_verify_failures_total"
	VerifyFailuresHelp  = "Rejected token verifications by the check that failed."
	VerifyFailuresLabel = "reason"
)

var VerifyFailureDefs = []LabeledDef{
	{ID: goCred.MetricVerifyUnauthenticated, Label: "missing_header"},
	{ID: goCred.MetricVerifyBadScheme, Label: "scheme"},
	{ID: goCred.MetricVerifyMalformed, Label: "decode"},
	{ID: goCred.MetricVerifyPrincipalNotFound, Label: "principal_not_found"},
	{ID: goCred.MetricVerifyStoreUnavailable, Label: "store_unavailable"},
	{ID: goCred.MetricVerifyPrincipalInactive, Label: "principal_inactive"},
	{ID: goCred.MetricVerifyLevelMismatch, Label: "level_mismatch"},
	{ID: goCred.MetricVerifyBadSignature, Label: "signature"},
	{ID: goCred.MetricVerifyRevoked, Label: "revoked"},
	{ID: goCred.MetricVerifyRevocationUnavailable, Label: "revocation_unavailable"},
	{ID: goCred.MetricVerifyStale, Label: "stale"},
}

// VerifyFailures reads the reason series out of snapshot.
func VerifyFailures(snapshot goCred.MetricsSnapshot) []LabeledValue {
	out := make([]LabeledValue, len(VerifyFailureDefs))
	for i, def := range VerifyFailureDefs {
		out[i] = LabeledValue{Label: def.Label, Value: snapshot.Counters[def.ID]}
	}
	return out
}

// AuditEvents is a counter family over the audit dispatcher's outcomes.
const (
	AuditEventsName  = "gocred_audit_events_total"
	AuditEventsHelp  = "Audit dispatcher outcomes. redacted counts withheld metadata values."
	AuditEventsLabel = "outcome"
)

// AuditEvents returns the dispatcher outcomes in a fixed order.
func AuditEvents(stats goCred.AuditStats) []LabeledValue {
	return []LabeledValue{
		{Label: "delivered", Value: stats.Delivered},
		{Label: "dropped", Value: stats.Dropped},
		{Label: "redacted", Value: stats.Redacted},
		{Label: "sink_panic", Value: stats.SinkPanics},
	}
}

var HistogramDefs = []HistogramDef{
	{ID: goCred.MetricVerifyLatency, Name: "gocred_verify_latency_seconds", Help: "Verify latency histogram."},
}

// HistogramBounds are the upper bounds, in seconds, of the engine's
// latency buckets.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// NormalizeBuckets copies raw into a fixed array, zero-filling when the
// snapshot has no histogram.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
