package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// dialect captures the few places where SQLite and PostgreSQL differ.
// Queries are written with ? placeholders and rebound per dialect.
type dialect struct {
	name         string
	pragmas      []string
	maxOpenConns int
	readVersion  func(db *sql.DB) (int, error)
	writeVersion func(db *sql.DB, version int) error

	// objectiveSeq is the DDL of objectives.seq and nextObjectiveSeq the
	// VALUES expression that fills it on insert.
	objectiveSeq     string
	nextObjectiveSeq string
	// seqMigration gives a pre-v2 objectives table its sequence.
	seqMigration []string
}

var sqliteDialect = dialect{
	name: DriverSQLite,
	pragmas: []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	},
	// SQLite only supports one writer at a time
	maxOpenConns: 1,
	readVersion: func(db *sql.DB) (int, error) {
		var version int
		err := db.QueryRow("PRAGMA user_version").Scan(&version)
		return version, err
	},
	writeVersion: func(db *sql.DB, version int) error {
		_, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", version))
		return err
	},
	// One connection serializes writers, so MAX+1 cannot collide.
	objectiveSeq:     "BIGINT NOT NULL",
	nextObjectiveSeq: "(SELECT COALESCE(MAX(seq), 0) + 1 FROM objectives)",
}

var postgresDialect = dialect{
	name:         DriverPostgres,
	maxOpenConns: 16,
	readVersion: func(db *sql.DB) (int, error) {
		var version int
		err := db.QueryRow(`SELECT COALESCE(MAX(value), 0) FROM chanwallet_meta WHERE key = 'schema_version'`).Scan(&version)
		return version, err
	},
	writeVersion: func(db *sql.DB, version int) error {
		_, err := db.Exec(`
			INSERT INTO chanwallet_meta (key, value) VALUES ('schema_version', $1)
			ON CONFLICT (key) DO UPDATE SET value = excluded.value
		`, version)
		return err
	},
	objectiveSeq:     "BIGSERIAL",
	nextObjectiveSeq: "DEFAULT",
	seqMigration: []string{
		`CREATE SEQUENCE IF NOT EXISTS objectives_seq_seq OWNED BY objectives.seq`,
		`SELECT setval('objectives_seq_seq', COALESCE((SELECT MAX(seq) FROM objectives), 0) + 1, false)`,
		`ALTER TABLE objectives ALTER COLUMN seq SET DEFAULT nextval('objectives_seq_seq')`,
	},
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case DriverSQLite:
		return sqliteDialect, nil
	case DriverPostgres:
		return postgresDialect, nil
	default:
		return dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// schema returns the embedded schema with dialect-specific column types.
func (d dialect) schema() string {
	return strings.ReplaceAll(schemaSQL, "{{objective_seq}}", d.objectiveSeq)
}

// rebind converts ? placeholders to the dialect's form.
func (d dialect) rebind(query string) string {
	if d.name != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
