// Package rate throttles password sign-in attempts with Redis counters.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - gcsi: sign-in per-email
//   - gcsii: sign-in per-IP
//
// # What this package must NOT do
//
//   - Implement OTP or sign-up policies (those live in internal/limiters).
//   - Be imported outside the goCred module.
package rate
