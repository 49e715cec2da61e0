package revocation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goCred "github.com/MrEthical07/goCred"
)

// DBTX is the subset of database/sql the store needs. Both *sql.DB and
// *sql.Tx satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore keeps revocations in the revoked_tokens table created by the
// store/postgres migrations.
type SQLStore struct {
	db  DBTX
	now func() time.Time
}

// NewSQLStore binds a store to db.
func NewSQLStore(db DBTX) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

// Record inserts rec, ignoring a duplicate jti.
func (s *SQLStore) Record(ctx context.Context, rec goCred.RevocationRecord) error {
	if rec.JTI == "" {
		return errors.New("revocation: empty jti")
	}
	query := `
		INSERT INTO revoked_tokens (jti, principal_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (jti) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, rec.JTI, rec.PrincipalID, rec.ExpiresAt.UTC()); err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}
	return nil
}

// Exists reports whether jti has an unexpired record.
func (s *SQLStore) Exists(ctx context.Context, jti string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM revoked_tokens
			WHERE jti = $1 AND expires_at > $2
		)
	`
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, jti, s.now().UTC()).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

// Purge deletes records that expired at or before before and returns how
// many were removed.
func (s *SQLStore) Purge(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM revoked_tokens
		WHERE expires_at <= $1
	`
	res, err := s.db.ExecContext(ctx, query, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

// RunPurger calls Purge every interval until ctx is done.
func (s *SQLStore) RunPurger(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Purge(ctx, s.now())
			if err != nil {
				logger.WarnContext(ctx, "revocation purge failed", "error", err)
				continue
			}
			if n > 0 {
				logger.DebugContext(ctx, "revocation purge", "removed", n)
			}
		}
	}
}
