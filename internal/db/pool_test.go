package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect_InvalidDSN(t *testing.T) {
	_, err := Connect(context.Background(), "not a dsn", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db: parse config")
}
