package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goCred "github.com/MrEthical07/goCred"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

const principalColumns = `id, email, role, provider, password_hash, password_history, phone,
	is_email_confirmed, email_confirmed_at, confirm_email_otp_hash, confirm_email_otp_expires_at,
	forgot_password_otp_hash, forgot_password_otp_expires_at, is_forgot_password_otp_confirmed,
	reset_confirmed_at, change_credentials_at, deleted_at, deleted_by, restored_at, restored_by,
	created_at`

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a PostgreSQL principal store.
type Store struct {
	db DB
}

// New returns a Store over db.
func New(db DB) *Store {
	return &Store{db: db}
}

func (s *Store) FindByID(ctx context.Context, id string) (goCred.Principal, error) {
	row := s.db.QueryRow(ctx, `SELECT `+principalColumns+` FROM principals WHERE id = $1`, id)
	p, err := scanPrincipal(row)
	if err != nil {
		return goCred.Principal{}, notFound(err, "find principal by id")
	}
	return p, nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (goCred.Principal, error) {
	row := s.db.QueryRow(ctx, `SELECT `+principalColumns+` FROM principals WHERE email = $1`, email)
	p, err := scanPrincipal(row)
	if err != nil {
		return goCred.Principal{}, notFound(err, "find principal by email")
	}
	return p, nil
}

// Create inserts p. A duplicate id or email returns [goCred.ErrPrincipalExists].
func (s *Store) Create(ctx context.Context, p goCred.Principal) (goCred.Principal, error) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	history := p.PasswordHistory
	if history == nil {
		history = []string{}
	}

	_, err := s.db.Exec(ctx, `INSERT INTO principals (`+principalColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		p.ID, p.Email, string(p.Role), string(p.Provider), p.PasswordHash, history, p.Phone,
		p.IsEmailConfirmed, nullTime(p.EmailConfirmedAt),
		otpHash(p.ConfirmEmailOTP), otpExpiry(p.ConfirmEmailOTP),
		otpHash(p.ForgotPasswordOTP), otpExpiry(p.ForgotPasswordOTP),
		p.IsForgotPasswordOTPConfirmed,
		nullTime(p.ResetConfirmedAt), nullTime(p.ChangeCredentialsAt),
		nullTime(p.DeletedAt), p.DeletedBy, nullTime(p.RestoredAt), p.RestoredBy,
		p.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return goCred.Principal{}, goCred.ErrPrincipalExists
		}
		return goCred.Principal{}, fmt.Errorf("postgres: create principal: %w", err)
	}
	return p.Clone(), nil
}

// UpdateFields applies patch in one statement guarded by cond.
func (s *Store) UpdateFields(ctx context.Context, id string, cond goCred.Condition, patch goCred.Patch) (goCred.Principal, error) {
	query, args := buildUpdate(id, cond, patch)

	p, err := scanPrincipal(s.db.QueryRow(ctx, query, args...))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return goCred.Principal{}, fmt.Errorf("postgres: update principal: %w", err)
	}

	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM principals WHERE id = $1)`, id).Scan(&exists); err != nil {
		return goCred.Principal{}, fmt.Errorf("postgres: check principal: %w", err)
	}
	if exists {
		return goCred.Principal{}, goCred.ErrPrincipalConflict
	}
	return goCred.Principal{}, goCred.ErrPrincipalNotFound
}

type updateBuilder struct {
	sets  []string
	where []string
	args  []any
}

func (b *updateBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

func (b *updateBuilder) set(column string, v any) {
	b.sets = append(b.sets, column+" = "+b.arg(v))
}

// buildUpdate compiles patch into SET clauses and cond into WHERE clauses.
// $1 is always the id.
func buildUpdate(id string, cond goCred.Condition, patch goCred.Patch) (string, []any) {
	b := &updateBuilder{}
	b.where = append(b.where, "id = "+b.arg(id))

	if patch.Role != nil {
		b.set("role", string(*patch.Role))
	}
	if patch.Phone != nil {
		b.set("phone", *patch.Phone)
	}
	if patch.PasswordHash != nil {
		b.set("password_hash", *patch.PasswordHash)
	}
	if patch.PasswordHistory != nil {
		history := *patch.PasswordHistory
		if history == nil {
			history = []string{}
		}
		b.set("password_history", history)
	}
	if patch.IsEmailConfirmed != nil {
		b.set("is_email_confirmed", *patch.IsEmailConfirmed)
	}
	if patch.EmailConfirmedAt != nil {
		b.set("email_confirmed_at", nullTime(*patch.EmailConfirmedAt))
	}
	if patch.ConfirmEmailOTP != nil {
		b.set("confirm_email_otp_hash", otpHash(*patch.ConfirmEmailOTP))
		b.set("confirm_email_otp_expires_at", otpExpiry(*patch.ConfirmEmailOTP))
	}
	if patch.ForgotPasswordOTP != nil {
		b.set("forgot_password_otp_hash", otpHash(*patch.ForgotPasswordOTP))
		b.set("forgot_password_otp_expires_at", otpExpiry(*patch.ForgotPasswordOTP))
	}
	if patch.IsForgotPasswordOTPConfirmed != nil {
		b.set("is_forgot_password_otp_confirmed", *patch.IsForgotPasswordOTPConfirmed)
	}
	if patch.ResetConfirmedAt != nil {
		b.set("reset_confirmed_at", nullTime(*patch.ResetConfirmedAt))
	}
	if patch.ChangeCredentialsAt != nil {
		b.set("change_credentials_at", nullTime(*patch.ChangeCredentialsAt))
	}
	if patch.DeletedAt != nil {
		b.set("deleted_at", nullTime(*patch.DeletedAt))
	}
	if patch.DeletedBy != nil {
		b.set("deleted_by", *patch.DeletedBy)
	}
	if patch.RestoredAt != nil {
		b.set("restored_at", nullTime(*patch.RestoredAt))
	}
	if patch.RestoredBy != nil {
		b.set("restored_by", *patch.RestoredBy)
	}
	if len(b.sets) == 0 {
		b.sets = append(b.sets, "id = id")
	}

	if cond.NotDeleted {
		b.where = append(b.where, "deleted_at IS NULL")
	}
	if cond.Deleted {
		b.where = append(b.where, "deleted_at IS NOT NULL")
	}
	if cond.EmailUnconfirmed {
		b.where = append(b.where, "is_email_confirmed = FALSE")
	}
	if cond.ConfirmEmailOTPHash != "" {
		b.where = append(b.where, "confirm_email_otp_hash = "+b.arg(cond.ConfirmEmailOTPHash))
	}
	if cond.ForgotPasswordOTPHash != "" {
		b.where = append(b.where, "forgot_password_otp_hash = "+b.arg(cond.ForgotPasswordOTPHash))
	}
	if cond.ResetConfirmed {
		b.where = append(b.where, "is_forgot_password_otp_confirmed = TRUE")
	}
	if cond.PasswordHash != nil {
		b.where = append(b.where, "password_hash = "+b.arg(*cond.PasswordHash))
	}

	query := "UPDATE principals SET " + strings.Join(b.sets, ", ") +
		" WHERE " + strings.Join(b.where, " AND ") +
		" RETURNING " + principalColumns
	return query, b.args
}

func scanPrincipal(row pgx.Row) (goCred.Principal, error) {
	var (
		p                               goCred.Principal
		role, provider                  string
		emailConfirmedAt                *time.Time
		confirmHash, forgotHash         *string
		confirmExpiry, forgotExpiry     *time.Time
		resetConfirmedAt, changeCredsAt *time.Time
		deletedAt, restoredAt           *time.Time
	)
	err := row.Scan(
		&p.ID, &p.Email, &role, &provider, &p.PasswordHash, &p.PasswordHistory, &p.Phone,
		&p.IsEmailConfirmed, &emailConfirmedAt, &confirmHash, &confirmExpiry,
		&forgotHash, &forgotExpiry, &p.IsForgotPasswordOTPConfirmed,
		&resetConfirmedAt, &changeCredsAt, &deletedAt, &p.DeletedBy, &restoredAt, &p.RestoredBy,
		&p.CreatedAt,
	)
	if err != nil {
		return goCred.Principal{}, err
	}

	p.Role = goCred.Role(role)
	p.Provider = goCred.Provider(provider)
	p.EmailConfirmedAt = deref(emailConfirmedAt)
	p.ConfirmEmailOTP = scanOTP(confirmHash, confirmExpiry)
	p.ForgotPasswordOTP = scanOTP(forgotHash, forgotExpiry)
	p.ResetConfirmedAt = deref(resetConfirmedAt)
	p.ChangeCredentialsAt = deref(changeCredsAt)
	p.DeletedAt = deref(deletedAt)
	p.RestoredAt = deref(restoredAt)
	return p, nil
}

func scanOTP(hash *string, expiresAt *time.Time) goCred.OTP {
	if hash == nil || expiresAt == nil {
		return goCred.OTP{}
	}
	return goCred.OTP{Hash: *hash, ExpiresAt: *expiresAt}
}

func notFound(err error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return goCred.ErrPrincipalNotFound
	}
	return fmt.Errorf("postgres: %s: %w", op, err)
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// otpHash and otpExpiry write an absent code as NULL in both columns.
func otpHash(o goCred.OTP) *string {
	if !o.Present() {
		return nil
	}
	return &o.Hash
}

func otpExpiry(o goCred.OTP) *time.Time {
	if !o.Present() {
		return nil
	}
	return &o.ExpiresAt
}
