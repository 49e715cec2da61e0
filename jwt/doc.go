// Package jwt signs and parses the HS256 tokens issued by the engine.
//
// The package never resolves keys itself. Callers pass the key for the
// token's signature level and type, so one Manager serves every level.
// DecodeUnverified exists only to find the subject before the key is known;
// its result must never be trusted on its own.
package jwt
