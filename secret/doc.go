// Package secret resolves the signing-secret pair for a signature level.
//
// # Architecture boundaries
//
// A [Resolver] is built once at process start from already-loaded
// configuration and handed to the engine builder. It never reads the
// environment itself and never changes after construction.
//
// # What this package must NOT do
//
//   - Read process environment or files.
//   - Cache secrets lazily or expose mutable state.
//   - Import any other goCred package.
package secret
