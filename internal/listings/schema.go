// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package listings

import (
	"fmt"
	"strings"

	"github.com/ManuGH/recsched/internal/persistence/sqlite"
)

const baseSchema = `
CREATE TABLE IF NOT EXISTS channel (
	channel_ref TEXT PRIMARY KEY,
	source_id INTEGER NOT NULL DEFAULT 0,
	name TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS program (
	program_id TEXT PRIMARY KEY,
	channel_ref TEXT NOT NULL,
	title TEXT NOT NULL,
	subtitle TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	starts_at INTEGER NOT NULL,
	ends_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_program_window ON program(ends_at, starts_at);

CREATE TABLE IF NOT EXISTS record_rule (
	id TEXT PRIMARY KEY,
	enabled BOOLEAN NOT NULL DEFAULT 1,
	type TEXT NOT NULL,
	keyword TEXT NOT NULL DEFAULT '',
	channel_ref TEXT NOT NULL DEFAULT '',
	program_id TEXT NOT NULL DEFAULT '',
	days TEXT NOT NULL DEFAULT '',
	start_window TEXT NOT NULL DEFAULT '',
	priority INTEGER NOT NULL DEFAULT 0,
	new_episodes_only BOOLEAN NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS card (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS input (
	id INTEGER PRIMARY KEY,
	card_id INTEGER NOT NULL REFERENCES card(id) ON DELETE CASCADE,
	source_id INTEGER NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	preference INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS oldrecorded (
	key TEXT PRIMARY KEY,
	program_id TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	subtitle TEXT NOT NULL DEFAULT '',
	recorded_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS revision (
	name TEXT PRIMARY KEY,
	value INTEGER NOT NULL DEFAULT 0
);
INSERT OR IGNORE INTO revision (name, value) VALUES ('listings', 0), ('topology', 0), ('history', 0);
`

// revisionTables maps each table to the revision family its writes bump.
var revisionTables = []struct{ table, family string }{
	{"channel", FamilyListings},
	{"program", FamilyListings},
	{"record_rule", FamilyListings},
	{"card", FamilyTopology},
	{"input", FamilyTopology},
	{"oldrecorded", FamilyHistory},
}

func revisionTriggers() string {
	var b strings.Builder
	for _, rt := range revisionTables {
		for _, op := range []string{"INSERT", "UPDATE", "DELETE"} {
			fmt.Fprintf(&b, `
CREATE TRIGGER IF NOT EXISTS trg_%[1]s_%[2]s AFTER %[3]s ON %[1]s
BEGIN
	UPDATE revision SET value = value + 1 WHERE name = '%[4]s';
END;`, rt.table, strings.ToLower(op), op, rt.family)
		}
	}
	return b.String()
}

func migrations() []sqlite.Migration {
	return []sqlite.Migration{
		{Version: 1, Statements: baseSchema + revisionTriggers()},
	}
}

// schemaVersion is the user_version after all migrations.
const schemaVersion = 1
