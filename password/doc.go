// Package password implements one-way hashing for passwords and one-time codes.
//
// # Output formats
//
// Passwords are hashed with Argon2id and encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Salt and hash are unpadded base64; padded input is still accepted. A stored
// hash whose cost is below the current [Config] reports NeedsRehash, and the
// sign-in path replaces it after a successful verification.
//
// One-time codes use bcrypt (`$2a$`/`$2b$`), which has no minimum input
// length and a tunable cost. [Hasher] verifies either format by prefix, so
// bcrypt password hashes imported from older systems keep verifying while
// new hashes are written as Argon2id.
//
// # Architecture boundaries
//
// This package owns hashing and verification only. Password policy (length,
// reuse history) is enforced by the Engine.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords; callers supply plaintext and receive hashes.
//   - Import any other goCred package.
//   - Log plaintext passwords, codes, or hash parameters at runtime.
package password
