package store

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/hrygo/leodock/internal/profile"
	"github.com/hrygo/leodock/internal/version"
)

// Store provides database access to conversations, sessions and settings.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	return s.driver.Close()
}

// Migrate creates the schema if needed and records the schema version. It
// refuses to run against a database written by a newer schema.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.driver.Migrate(ctx); err != nil {
		return errors.Wrap(err, "failed to migrate schema")
	}

	current, err := s.driver.GetSystemSetting(ctx, SystemSettingSchemaVersion)
	if err != nil {
		return err
	}
	if current != "" && version.IsValid(current) && version.IsVersionGreaterThan(current, version.SchemaVersion) {
		return errors.Errorf("database schema %s is newer than this binary supports (%s)", current, version.SchemaVersion)
	}
	if current == version.SchemaVersion {
		return nil
	}

	if err := s.driver.UpsertSystemSetting(ctx, SystemSettingSchemaVersion, version.SchemaVersion); err != nil {
		return NewStorageWriteError("record schema version", err)
	}
	slog.Info("database schema migrated", "from", current, "to", version.SchemaVersion)
	return nil
}
