package dberrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapPreservesSentinelForErrorsIs(t *testing.T) {
	err := Wrap("collection.GetOne", "users", ErrNotFound)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrCorruptShard))
}

func TestWrapNilCauseReturnsNil(t *testing.T) {
	assert.NoError(t, Wrap("op", "path", nil))
}

func TestErrorMessageIncludesOpAndPath(t *testing.T) {
	err := Wrap("shard.Load", "shard-04", ErrCorruptShard)
	assert.Contains(t, err.Error(), "shard.Load")
	assert.Contains(t, err.Error(), "shard-04")
}

func TestErrorMessageOmitsEmptyPath(t *testing.T) {
	err := Wrap("database.Close", "", ErrClosed)
	assert.NotContains(t, err.Error(), "()")
}
