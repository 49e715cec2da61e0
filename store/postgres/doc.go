// Package postgres implements [goCred.PrincipalStore] on PostgreSQL through
// pgx.
//
// Conditional updates compile the [goCred.Condition] into the WHERE clause of
// a single UPDATE ... RETURNING statement, so the compare-and-set happens in
// one round trip under the row lock. When no row comes back, a follow-up
// EXISTS query separates a lost race from an unknown id.
//
// [Migrate] applies the embedded goose migrations, which also create the
// revoked_tokens table used by revocation.SQLStore.
package postgres
