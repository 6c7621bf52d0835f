package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/hrygo/leodock/internal/profile"
	"github.com/hrygo/leodock/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens the PostgreSQL database named by profile.DSN. The server must
// have the pgvector extension available.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	db, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &DB{db: db, profile: profile}, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMPTZ NOT NULL,
		session_id TEXT,
		participant TEXT NOT NULL,
		message TEXT NOT NULL,
		embedding_vector vector,
		metadata JSONB,
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_timestamp ON conversations (timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_session_id ON conversations (session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_conversations_participant ON conversations (participant)`,
	`CREATE OR REPLACE FUNCTION conversations_append_only() RETURNS trigger AS $$
	BEGIN
		IF TG_OP = 'DELETE' THEN
			RAISE EXCEPTION 'conversations are append-only';
		END IF;
		IF NEW.timestamp IS DISTINCT FROM OLD.timestamp
			OR NEW.session_id IS DISTINCT FROM OLD.session_id
			OR NEW.participant IS DISTINCT FROM OLD.participant
			OR NEW.message IS DISTINCT FROM OLD.message
			OR NEW.metadata IS DISTINCT FROM OLD.metadata
			OR NEW.created_at IS DISTINCT FROM OLD.created_at THEN
			RAISE EXCEPTION 'conversations are append-only';
		END IF;
		IF OLD.embedding_vector IS NOT NULL AND NEW.embedding_vector IS DISTINCT FROM OLD.embedding_vector THEN
			RAISE EXCEPTION 'embedding already set';
		END IF;
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS conversations_append_only ON conversations`,
	`CREATE TRIGGER conversations_append_only
		BEFORE UPDATE OR DELETE ON conversations
		FOR EACH ROW EXECUTE FUNCTION conversations_append_only()`,
	`CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		kind TEXT NOT NULL DEFAULT '',
		participants JSONB NOT NULL DEFAULT '[]',
		topic TEXT NOT NULL DEFAULT '',
		start_time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ,
		status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'closed'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions (status)`,
	`CREATE TABLE IF NOT EXISTS system_setting (
		name TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

func (d *DB) Migrate(ctx context.Context) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin migration")
	}
	defer tx.Rollback()

	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "failed to execute migration statement: %s", strings.TrimSpace(strings.SplitN(stmt, "\n", 2)[0]))
		}
	}
	return errors.Wrap(tx.Commit(), "failed to commit migration")
}

// placeholder returns the n-th positional parameter.
func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

// placeholders returns "$1, $2, ..., $n".
func placeholders(n int) string {
	list := make([]string, 0, n)
	for i := 0; i < n; i++ {
		list = append(list, placeholder(i+1))
	}
	return strings.Join(list, ", ")
}
