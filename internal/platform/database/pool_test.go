package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresURL(t *testing.T) {
	pool, err := New(context.Background(), Config{}, nil)
	require.ErrorIs(t, err, errNotConfigured)
	assert.Nil(t, pool)
}

func TestNilPool(t *testing.T) {
	var pool *Pool
	assert.ErrorIs(t, pool.Health(context.Background()), errNotConfigured)
	assert.NoError(t, pool.Close())
}
