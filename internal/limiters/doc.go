// Package limiters provides domain-specific rate limiters backed by Redis
// fixed-window counters.
//
// # Limiters
//
//   - [AccountCreationLimiter]: per-email + per-IP throttle for sign-ups.
//   - [OTPLimiter]: per-email issue budget and wrong-code budget, split by purpose.
//
// All limiters are nil-safe: calling any method on a nil receiver returns nil.
//
// # What this package must NOT do
//
//   - Import goCred or any sibling internal package.
//   - Make policy decisions beyond counting, engine operations decide consequences.
package limiters
