package store

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
)

const (
	SystemSettingEmbeddingDimension = "embedding_dimension"
	SystemSettingSchemaVersion      = "schema_version"
)

// GetEmbeddingDimension returns the established vector dimension, or 0 when
// no vector has been stored yet.
func (s *Store) GetEmbeddingDimension(ctx context.Context) (int, error) {
	value, err := s.driver.GetSystemSetting(ctx, SystemSettingEmbeddingDimension)
	if err != nil {
		return 0, err
	}
	if value == "" {
		return 0, nil
	}
	dim, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.Wrapf(err, "corrupt %s setting %q", SystemSettingEmbeddingDimension, value)
	}
	return dim, nil
}

// EstablishEmbeddingDimension records dim as the store's dimension if none is
// set yet and returns the dimension in effect. A different existing value
// yields ErrDimensionMismatch.
func (s *Store) EstablishEmbeddingDimension(ctx context.Context, dim int) (int, error) {
	if dim <= 0 {
		return 0, errors.Wrapf(ErrInvalidArgument, "dimension must be positive, got %d", dim)
	}
	return s.driver.EstablishEmbeddingDimension(ctx, dim)
}
