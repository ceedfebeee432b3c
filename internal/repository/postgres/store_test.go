package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/sla-service/internal/repository"
)

func TestNewStoreRequiresPool(t *testing.T) {
	_, err := NewStore(nil)
	require.Error(t, err)
}

func TestMapError(t *testing.T) {
	assert.NoError(t, mapError(nil))
	assert.ErrorIs(t, mapError(pgx.ErrNoRows), repository.ErrNotFound)
	assert.ErrorIs(t, mapError(fmt.Errorf("wrapped: %w", pgx.ErrNoRows)), repository.ErrNotFound)

	dup := &pgconn.PgError{Code: uniqueViolation, ConstraintName: "uq_trackings_open_entity"}
	err := mapError(dup)
	assert.ErrorIs(t, err, repository.ErrDuplicate)
	assert.Contains(t, err.Error(), "uq_trackings_open_entity")

	other := errors.New("boom")
	assert.Equal(t, other, mapError(other))
}
