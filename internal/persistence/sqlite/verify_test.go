// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sqlite

import (
	"context"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T, name string) (string, func() error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	db, err := Open(context.Background(), path, DefaultConfig())
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE channels (ref TEXT PRIMARY KEY);
		CREATE TABLE programs (id INTEGER PRIMARY KEY, channel_ref TEXT REFERENCES channels(ref), title TEXT);`)
	require.NoError(t, err)
	return path, db.Close
}

func TestParseCheckMode(t *testing.T) {
	m, err := ParseCheckMode(" FULL ")
	require.NoError(t, err)
	assert.Equal(t, CheckFull, m)

	_, err = ParseCheckMode("deep")
	assert.ErrorContains(t, err, "invalid check mode")
}

func TestCheck_Healthy(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "healthy.sqlite")
	db, err := Open(ctx, path, DefaultConfig())
	require.NoError(t, err)
	defer db.Close()

	for _, mode := range []CheckMode{CheckQuick, CheckFull} {
		issues, err := Check(ctx, db, mode)
		require.NoError(t, err)
		assert.Nil(t, issues, mode)
	}
}

func TestCheck_ReportsForeignKeyViolations(t *testing.T) {
	ctx := context.Background()
	path, closeDB := openTemp(t, "orphans.sqlite")
	require.NoError(t, closeDB())

	// foreign_keys is off on this raw handle so the orphan can be written.
	db, err := Open(ctx, path, DefaultConfig())
	require.NoError(t, err)
	defer db.Close()
	conn, err := db.Conn(ctx)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, "PRAGMA foreign_keys = OFF")
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, "INSERT INTO programs (channel_ref, title) VALUES ('gone.de', 'Orphan')")
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	issues, err := Check(ctx, db, CheckQuick)
	require.NoError(t, err)
	assert.Nil(t, issues, "quick mode skips foreign keys")

	issues, err = Check(ctx, db, CheckFull)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0], "programs row 1 references missing channels")
}

func TestCheckFile_DetectsCorruption(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "corruptible.sqlite")

	db, err := Open(ctx, path, DefaultConfig())
	require.NoError(t, err)
	_, err = db.Exec("CREATE TABLE test (id INTEGER PRIMARY KEY, data TEXT);")
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		_, err = db.Exec("INSERT INTO test (data) VALUES (printf('%.100c', 'A'));")
		require.NoError(t, err)
	}
	// Fold the WAL back so the damage below hits the main file.
	_, err = db.Exec("PRAGMA wal_checkpoint(TRUNCATE);")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	require.NoError(t, err)
	garbage := make([]byte, 100)
	_, _ = rand.Read(garbage)
	_, err = f.WriteAt(garbage, 4096)
	require.NoError(t, f.Close())
	require.NoError(t, err)

	issues, err := CheckFile(ctx, path, CheckFull)
	if err != nil {
		// Header damage can surface as an open or query error instead of rows.
		return
	}
	assert.NotEmpty(t, issues)
}

func TestOpen_RejectsEmptyPath(t *testing.T) {
	_, err := Open(context.Background(), "", DefaultConfig())
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	rw := dsn("/data/listings.sqlite", DefaultConfig())
	assert.Contains(t, rw, "file:/data/listings.sqlite?")
	assert.Contains(t, rw, "journal_mode%28WAL%29")
	assert.Contains(t, rw, "busy_timeout%285000%29")

	ro := dsn("/data/listings.sqlite", Config{ReadOnly: true})
	assert.Contains(t, ro, "mode=ro")
	assert.NotContains(t, ro, "journal_mode")
}

func TestMigrate_AppliesOnce(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "m.sqlite"), DefaultConfig())
	require.NoError(t, err)
	defer db.Close()

	steps := []Migration{
		{Version: 1, Statements: "CREATE TABLE a (id INTEGER PRIMARY KEY);"},
		{Version: 2, Statements: "CREATE TABLE b (id INTEGER PRIMARY KEY);"},
	}
	require.NoError(t, Migrate(ctx, db, steps))

	v, err := SchemaVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	// CREATE TABLE without IF NOT EXISTS fails if a step is replayed.
	require.NoError(t, Migrate(ctx, db, steps))

	steps = append(steps, Migration{Version: 3, Statements: "CREATE TABLE c (id INTEGER PRIMARY KEY);"})
	require.NoError(t, Migrate(ctx, db, steps))
	v, err = SchemaVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestMigrate_FailedStepRollsBack(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "m.sqlite"), DefaultConfig())
	require.NoError(t, err)
	defer db.Close()

	err = Migrate(ctx, db, []Migration{{Version: 1, Statements: "CREATE TABLE broken ("}})
	require.Error(t, err)

	v, err := SchemaVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 0, v)
}
