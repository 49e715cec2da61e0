// Package flows contains pure-function orchestrators shared by Engine operations.
//
// Each flow function (RunVerify, CheckOTP, PasswordReused) accepts a
// typed dependency struct or plain values and returns results without
// side-effects beyond those dependencies. The root engine maps the
// classified failures onto its public errors, metrics and audit events.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the principal store, JWT manager,
// secret resolver and revocation store through function fields. They do
// NOT own any of these resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goCred (to avoid import cycles).
//   - Perform I/O directly; all I/O is mediated through dependency functions.
package flows
