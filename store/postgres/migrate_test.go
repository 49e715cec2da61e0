package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	goCred "github.com/MrEthical07/goCred"
	"github.com/pressly/goose/v3"
)

func TestMigrate(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()

	orig := gooseUpContext
	defer func() { gooseUpContext = orig }()

	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		if dir != "." {
			return errors.New("unexpected dir")
		}
		return nil
	}
	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("Migrate error: %v", err)
	}

	want := errors.New("boom")
	gooseUpContext = func(context.Context, *sql.DB, string, ...goose.OptionsFunc) error {
		return want
	}
	if err := Migrate(context.Background(), db); !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestBuildUpdate(t *testing.T) {
	hash := "$argon2id$old"
	next := "$argon2id$new"
	history := []string{next, hash}
	query, args := buildUpdate("user-1",
		goCred.Condition{NotDeleted: true, PasswordHash: &hash},
		goCred.Patch{PasswordHash: &next, PasswordHistory: &history},
	)

	wantPrefix := "UPDATE principals SET password_hash = $2, password_history = $3 WHERE id = $1 AND deleted_at IS NULL AND password_hash = $4 RETURNING "
	if !strings.HasPrefix(query, wantPrefix) {
		t.Fatalf("unexpected query:\n%s", query)
	}
	if len(args) != 4 || args[0] != "user-1" || args[1] != next || args[3] != hash {
		t.Fatalf("unexpected args: %#v", args)
	}

	query, args = buildUpdate("user-1", goCred.Condition{Deleted: true}, goCred.Patch{})
	if !strings.Contains(query, "SET id = id WHERE id = $1 AND deleted_at IS NOT NULL") {
		t.Fatalf("unexpected empty-patch query:\n%s", query)
	}
	if len(args) != 1 {
		t.Fatalf("expected only the id arg, got %#v", args)
	}
}

func TestOTPColumnsWrittenTogether(t *testing.T) {
	if otpHash(goCred.OTP{Hash: "h"}) != nil || otpExpiry(goCred.OTP{Hash: "h"}) != nil {
		t.Fatal("half-set OTP must be written as NULL in both columns")
	}
	if nullTime(deref(nil)) != nil {
		t.Fatal("zero time must be NULL")
	}
}
