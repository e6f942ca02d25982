package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"
)

// Development seed values.
const (
	SeedAdminUsername = "admin"
	SeedAdminEmail    = "admin@quillpress.local"
	SeedCategoryName  = "Uncategorized"
	SeedCategorySlug  = "uncategorized"
)

// Seed populates the database with initial development data: a default
// admin account and a root "Uncategorized" category. It is a no-op when
// any user already exists.
func Seed(ctx context.Context, db *sql.DB, adminPassword string) error {
	// Check if any users exist already.
	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return fmt.Errorf("seed check users: %w", err)
	}

	if count > 0 {
		slog.Info("database already seeded, skipping")
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("seed bcrypt: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("seed begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (username, email, password_hash, first_name, role)
		VALUES ($1, $2, $3, $4, 'admin')
	`, SeedAdminUsername, SeedAdminEmail, string(hash), "Admin")
	if err != nil {
		return fmt.Errorf("seed insert admin: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO categories (name, slug, description)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, SeedCategoryName, SeedCategorySlug, "Posts without a more specific category")
	if err != nil {
		return fmt.Errorf("seed insert category: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed commit: %w", err)
	}

	slog.Info("database seeded with default admin user",
		"username", SeedAdminUsername,
		"email", SeedAdminEmail,
	)
	return nil
}
