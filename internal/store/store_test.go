// store_test.go provides a shared test database helper for all store
// integration tests. Tests are skipped if PostgreSQL is not available.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"quillpress/internal/database"
)

var bg = context.Background()

// testDSN builds the connection string from the POSTGRES_* variables used
// by docker-compose.yml.
func testDSN() string {
	get := func(key, fallback string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return fallback
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		get("POSTGRES_USER", "quillpress"),
		get("POSTGRES_PASSWORD", "changeme"),
		get("POSTGRES_HOST", "localhost"),
		get("POSTGRES_PORT", "5432"),
		get("POSTGRES_DB", "quillpress"),
	)
}

// testDB returns a migrated connection pool closed at test end, or skips
// the test when the database is unreachable.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Connect(bg, testDSN())
	if err != nil {
		t.Skipf("skipping integration test: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := database.Migrate(bg, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// cleanUsers removes test users, and any posts they own, by username.
func cleanUsers(t *testing.T, db *sql.DB, usernames ...string) {
	t.Helper()
	for _, name := range usernames {
		mustExec(t, db, `DELETE FROM posts WHERE author_id IN (SELECT id FROM users WHERE username = $1)`, name)
		mustExec(t, db, `DELETE FROM users WHERE username = $1`, name)
	}
}

// cleanCategories removes test categories by slug. Slugs are given parent
// first and deleted in reverse.
func cleanCategories(t *testing.T, db *sql.DB, slugs ...string) {
	t.Helper()
	for i := len(slugs) - 1; i >= 0; i-- {
		mustExec(t, db, `DELETE FROM posts WHERE category_id IN (SELECT id FROM categories WHERE slug = $1)`, slugs[i])
		mustExec(t, db, `DELETE FROM categories WHERE slug = $1`, slugs[i])
	}
}

func mustExec(t *testing.T, db *sql.DB, query string, args ...any) {
	t.Helper()
	if _, err := db.ExecContext(bg, query, args...); err != nil {
		t.Logf("cleanup %q: %v", query, err)
	}
}

func TestTranslate(t *testing.T) {
	other := errors.New("boom")

	tests := []struct {
		name       string
		in         error
		want       error
		constraint string
	}{
		{"unique", &pgconn.PgError{Code: "23505", ConstraintName: "posts_slug_key"}, ErrDuplicate, "posts_slug_key"},
		{"foreign key", &pgconn.PgError{Code: "23503", ConstraintName: "posts_category_id_fkey"}, ErrForeignKey, "posts_category_id_fkey"},
		{"wrapped", fmt.Errorf("exec: %w", &pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"}), ErrDuplicate, "users_email_key"},
		{"check violation passes through", &pgconn.PgError{Code: "23514"}, nil, ""},
		{"plain error passes through", other, other, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translate(tt.in)

			var ce *ConstraintError
			if tt.constraint == "" {
				if errors.As(got, &ce) {
					t.Fatalf("translate(%v) = %v, want no ConstraintError", tt.in, got)
				}
				if tt.want != nil && !errors.Is(got, tt.want) {
					t.Errorf("translate(%v) = %v, want %v", tt.in, got, tt.want)
				}
				return
			}
			if !errors.As(got, &ce) {
				t.Fatalf("translate(%v) = %v, want ConstraintError", tt.in, got)
			}
			if ce.Constraint != tt.constraint {
				t.Errorf("Constraint = %q, want %q", ce.Constraint, tt.constraint)
			}
			if !errors.Is(got, tt.want) {
				t.Errorf("translate(%v) does not wrap %v", tt.in, tt.want)
			}
		})
	}
}

func TestPageNormalize(t *testing.T) {
	tests := []struct {
		in         Page
		want       Page
		wantOffset int
	}{
		{Page{}, Page{Number: 1, Size: DefaultPageSize}, 0},
		{Page{Number: 3, Size: 10}, Page{Number: 3, Size: 10}, 20},
		{Page{Number: -2, Size: 1000}, Page{Number: 1, Size: MaxPageSize}, 0},
	}
	for _, tt := range tests {
		got := tt.in.Normalize()
		if got != tt.want {
			t.Errorf("%+v.Normalize() = %+v, want %+v", tt.in, got, tt.want)
		}
		if off := got.Offset(); off != tt.wantOffset {
			t.Errorf("%+v.Offset() = %d, want %d", got, off, tt.wantOffset)
		}
	}
}
