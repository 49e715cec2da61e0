// Package fieldcrypt provides reversible encryption for personal fields
// stored at rest, such as phone numbers.
//
// Two ciphers are offered. [AES] is symmetric AES-256-GCM with a process
// key and renders `hex(ciphertext):hex(nonce)`. [Age] is asymmetric, built on
// filippo.io/age X25519 recipients, so writers can encrypt with a public key
// while only holders of the identity can decrypt.
//
// Both satisfy the engine's FieldCipher interface.
package fieldcrypt
