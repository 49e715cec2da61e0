// Package goCred provides the credential and session security engine: signed
// access/refresh tokens bound to a role-derived signature level, a revocation
// list, OTP lifecycles for email confirmation and password recovery, and
// password history enforcement.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goCred is the public surface. It exposes [Engine], [Builder], [Config], the
// [Principal] model and the collaborator interfaces ([PrincipalStore],
// [RevocationStore], [Notifier], [FieldCipher], [FederatedVerifier]).
// Implementations of those interfaces live in sub-packages (store/postgres,
// store/memory, revocation, notify, fieldcrypt, federated/google) which import
// goCred, never the other way round.
//
// # What this package must NOT do
//
//   - Hold principal state in process memory between calls. Every mutation is a
//     conditional update through [PrincipalStore.UpdateFields].
//   - Read secrets from the environment. Secrets arrive through [Builder.WithSecrets].
//   - Import any sub-package that re-imports goCred (no import cycles).
//
// # Verification contract
//
// Verify is the hot path. It performs one principal lookup and one revocation
// lookup, never writes, and fails closed when either backend errors.
package goCred
