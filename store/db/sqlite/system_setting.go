package sqlite

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/pkg/errors"

	"github.com/hrygo/leodock/store"
)

func (d *DB) GetSystemSetting(ctx context.Context, name string) (string, error) {
	var value string
	err := d.db.QueryRowContext(ctx, `SELECT value FROM system_setting WHERE name = ?`, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to get system setting %s", name)
	}
	return value, nil
}

func (d *DB) UpsertSystemSetting(ctx context.Context, name, value string) error {
	_, err := d.db.ExecContext(ctx, `INSERT INTO system_setting (name, value) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET value = excluded.value`, name, value)
	return errors.Wrapf(err, "failed to upsert system setting %s", name)
}

func (d *DB) EstablishEmbeddingDimension(ctx context.Context, dim int) (int, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	current, err := establishDimension(ctx, tx, dim)
	if err != nil {
		return current, err
	}
	return current, errors.Wrap(tx.Commit(), "failed to commit embedding dimension")
}

// establishDimension sets the embedding dimension if it is unset and checks
// dim against the value in effect.
func establishDimension(ctx context.Context, tx *sql.Tx, dim int) (int, error) {
	if _, err := tx.ExecContext(ctx, `INSERT INTO system_setting (name, value) VALUES (?, ?) ON CONFLICT (name) DO NOTHING`,
		store.SystemSettingEmbeddingDimension, strconv.Itoa(dim)); err != nil {
		return 0, errors.Wrap(err, "failed to establish embedding dimension")
	}

	var value string
	if err := tx.QueryRowContext(ctx, `SELECT value FROM system_setting WHERE name = ?`,
		store.SystemSettingEmbeddingDimension).Scan(&value); err != nil {
		return 0, errors.Wrap(err, "failed to read embedding dimension")
	}
	current, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.Wrapf(err, "corrupt embedding dimension %q", value)
	}
	if current != dim {
		return current, errors.Wrapf(store.ErrDimensionMismatch, "got %d, store uses %d", dim, current)
	}
	return current, nil
}
