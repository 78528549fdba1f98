package watcher

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/recordsync/internal/ir"
)

func TestError_Kinds(t *testing.T) {
	cause := errors.New("boom")

	conn := NewConnectionError("items", cause)
	assert.True(t, IsConnectionError(conn))
	assert.False(t, IsShapeMismatch(conn))
	assert.ErrorIs(t, conn, cause)
	assert.Equal(t, "CONNECTION: store unreachable (collection=items): boom", conn.Error())

	shape := NewShapeMismatch("items", "k1", cause)
	assert.True(t, IsShapeMismatch(shape))
	assert.Equal(t, "SHAPE_MISMATCH: payload is not a mapping (collection=items, key=k1): boom", shape.Error())

	write := NewWriteFailure("items", "k1", ir.ActionRemove, cause)
	assert.True(t, IsWriteFailure(write))
	assert.Equal(t, "WRITE_FAILURE: remove failed (collection=items, key=k1): boom", write.Error())
}

func TestError_Wrapped(t *testing.T) {
	err := fmt.Errorf("context: %w", NewConnectionError("items", nil))
	assert.True(t, IsConnectionError(err))
	assert.False(t, IsConnectionError(errors.New("plain")))
	assert.False(t, IsConnectionError(nil))
}

func TestRepairGuard(t *testing.T) {
	g := newRepairGuard()

	assert.False(t, g.WouldRepeat("k1", "h1"))
	g.Record("k1", "h1")
	assert.True(t, g.WouldRepeat("k1", "h1"))
	assert.False(t, g.WouldRepeat("k1", "h2"))
	assert.False(t, g.WouldRepeat("k2", "h1"))

	g.Clear("k1")
	assert.False(t, g.WouldRepeat("k1", "h1"))
	assert.Empty(t, g.last)
}
