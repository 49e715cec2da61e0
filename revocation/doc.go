// Package revocation provides [goCred.RevocationStore] implementations.
//
// [RedisStore] keeps one key per revoked jti and lets the key TTL collect
// expired records. [SQLStore] keeps a table and relies on [SQLStore.Purge]
// (or [SQLStore.RunPurger]) for collection. Both treat recording an existing
// jti as success.
package revocation
