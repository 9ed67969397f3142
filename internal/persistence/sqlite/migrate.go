// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration is one schema step. Version is the user_version reached after
// Statements have run.
type Migration struct {
	Version    int
	Statements string
}

// SchemaVersion returns PRAGMA user_version.
func SchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("sqlite: read user_version: %w", err)
	}
	return v, nil
}

// Migrate applies every migration newer than the stored user_version, each in
// its own transaction. Migrations must be ordered by Version.
func Migrate(ctx context.Context, db *sql.DB, steps []Migration) error {
	current, err := SchemaVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, step := range steps {
		if step.Version <= current {
			continue
		}
		if err := applyMigration(ctx, db, step); err != nil {
			return fmt.Errorf("sqlite: migration to v%d: %w", step.Version, err)
		}
		current = step.Version
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, step Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, step.Statements); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", step.Version)); err != nil {
		return err
	}
	return tx.Commit()
}
