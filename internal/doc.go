// Package internal contains helpers that are private to goCred: random
// token ids and OTP codes, and email normalization.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: flow orchestrators shared by Engine operations
//   - limiters: domain rate limiters (sign-up, OTP request and confirm)
//   - rate: Redis-backed sign-in throttle
//   - settings: process configuration loading for cmd/gocred-server
//
// # What this package must NOT do
//
//   - Export types that appear in the public goCred API.
//   - Be imported by any package outside the goCred module.
package internal
