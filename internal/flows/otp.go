package flows

import "time"

// OTPCheck is the outcome of comparing a submitted code with a stored record.
type OTPCheck int

const (
	OTPValid OTPCheck = iota
	OTPMissing
	OTPExpired
	OTPMismatch
	OTPCompareError
)

// CheckOTP checks presence, then expiry, then the hash. An expired code is
// reported as expired even when it would have matched.
func CheckOTP(now time.Time, hash string, expiresAt time.Time, code string, compare func(code, hash string) (bool, error)) (OTPCheck, error) {
	if hash == "" || expiresAt.IsZero() {
		return OTPMissing, nil
	}
	if !now.Before(expiresAt) {
		return OTPExpired, nil
	}
	ok, err := compare(code, hash)
	if err != nil {
		return OTPCompareError, err
	}
	if !ok {
		return OTPMismatch, nil
	}
	return OTPValid, nil
}
