// Package middleware adapts goCred.Engine verification to net/http.
//
// # Guards
//
//   - [Guard] verifies the Authorization header as the given token type.
//   - [RequireAccess] and [RequireRefresh] are the two fixed forms.
//   - [RequireRole] rejects verified principals outside a role set.
//   - [ClientIP] records the caller address for throttling and audit.
//
// The guard hands the whole header to Engine.Verify, so scheme and format
// checks stay in the engine. The verified result is stored with
// goCred.WithAuthResult and read back with [AuthResult].
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Make authorization decisions beyond pass/reject from Engine.Verify and
//     the role check.
package middleware
