package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/hrygo/leodock/internal/profile"
	"github.com/hrygo/leodock/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens the SQLite database named by profile.DSN.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	// Connect to the database with some sane settings:
	// - No foreign key constraints: session_id on conversations is a weak reference.
	// - Busy timeout so a second process waits instead of failing immediately.
	// - Journal mode set to WAL so readers do not block the writer.
	//
	// When using the `modernc.org/sqlite` driver, each pragma must be prefixed with `_pragma=`.
	sqliteDB, err := sql.Open("sqlite", withPragmas(profile.DSN))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	// A single connection serializes every writer through SQLite's own lock,
	// so each transaction commits as one unit.
	sqliteDB.SetMaxOpenConns(1)
	sqliteDB.SetMaxIdleConns(1)
	sqliteDB.SetConnMaxLifetime(0)
	sqliteDB.SetConnMaxIdleTime(0)

	driver := DB{db: sqliteDB, profile: profile}
	return &driver, nil
}

func withPragmas(dsn string) string {
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + "_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)"
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS conversations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp INTEGER NOT NULL,
		session_id TEXT,
		participant TEXT NOT NULL,
		message TEXT NOT NULL,
		embedding_vector BLOB,
		metadata TEXT,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_timestamp ON conversations (timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_session_id ON conversations (session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_participant ON conversations (participant)`,
	`CREATE TRIGGER IF NOT EXISTS conversations_append_only
		BEFORE UPDATE OF timestamp, session_id, participant, message, metadata, created_at ON conversations
	BEGIN
		SELECT RAISE(ABORT, 'conversations are append-only');
	END`,
	`CREATE TRIGGER IF NOT EXISTS conversations_embedding_once
		BEFORE UPDATE OF embedding_vector ON conversations
		WHEN OLD.embedding_vector IS NOT NULL
	BEGIN
		SELECT RAISE(ABORT, 'embedding already set');
	END`,
	`CREATE TRIGGER IF NOT EXISTS conversations_no_delete
		BEFORE DELETE ON conversations
	BEGIN
		SELECT RAISE(ABORT, 'conversations are append-only');
	END`,
	`CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		kind TEXT NOT NULL DEFAULT '',
		participants TEXT NOT NULL DEFAULT '[]',
		topic TEXT NOT NULL DEFAULT '',
		start_time INTEGER NOT NULL,
		end_time INTEGER,
		status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'closed'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions (status)`,
	`CREATE TABLE IF NOT EXISTS system_setting (
		name TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

// Migrate creates the tables, indexes and append-only triggers.
func (d *DB) Migrate(ctx context.Context) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin migration")
	}
	defer tx.Rollback()

	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "failed to execute migration statement: %s", firstLine(stmt))
		}
	}
	return errors.Wrap(tx.Commit(), "failed to commit migration")
}

func firstLine(stmt string) string {
	if i := strings.IndexByte(stmt, '\n'); i >= 0 {
		return stmt[:i]
	}
	return stmt
}
