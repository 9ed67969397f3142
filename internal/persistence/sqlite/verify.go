// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// CheckMode selects how thorough an integrity check is.
type CheckMode string

const (
	// CheckQuick runs PRAGMA quick_check.
	CheckQuick CheckMode = "quick"
	// CheckFull runs PRAGMA integrity_check followed by foreign_key_check.
	CheckFull CheckMode = "full"
)

// ParseCheckMode accepts "quick" or "full" in any case.
func ParseCheckMode(s string) (CheckMode, error) {
	switch m := CheckMode(strings.ToLower(strings.TrimSpace(s))); m {
	case CheckQuick, CheckFull:
		return m, nil
	default:
		return "", fmt.Errorf("invalid check mode %q, use %q or %q", s, CheckQuick, CheckFull)
	}
}

// Check returns the problems SQLite reports for db, or nil when it is healthy.
func Check(ctx context.Context, db *sql.DB, mode CheckMode) ([]string, error) {
	pragma := "PRAGMA quick_check"
	if mode == CheckFull {
		pragma = "PRAGMA integrity_check"
	}

	lines, err := queryStrings(ctx, db, pragma)
	if err != nil {
		return nil, err
	}
	var issues []string
	switch {
	case len(lines) == 0:
		issues = append(issues, "integrity check returned no rows")
	case len(lines) == 1 && strings.EqualFold(lines[0], "ok"):
	default:
		issues = append(issues, lines...)
	}

	if mode == CheckFull {
		fks, err := foreignKeyViolations(ctx, db)
		if err != nil {
			return nil, err
		}
		issues = append(issues, fks...)
	}
	return issues, nil
}

// CheckFile opens path read-only and checks it.
func CheckFile(ctx context.Context, path string, mode CheckMode) ([]string, error) {
	db, err := Open(ctx, path, Config{ReadOnly: true, MaxOpenConns: 1})
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return Check(ctx, db, mode)
}

func queryStrings(ctx context.Context, db *sql.DB, query string) ([]string, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %s: %w", query, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("sqlite: scan %s: %w", query, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func foreignKeyViolations(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, "PRAGMA foreign_key_check")
	if err != nil {
		return nil, fmt.Errorf("sqlite: foreign_key_check: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var (
			table, parent string
			rowid         sql.NullInt64
			fkid          int
		)
		if err := rows.Scan(&table, &rowid, &parent, &fkid); err != nil {
			return nil, fmt.Errorf("sqlite: scan foreign_key_check: %w", err)
		}
		out = append(out, fmt.Sprintf("%s row %d references missing %s", table, rowid.Int64, parent))
	}
	return out, rows.Err()
}
