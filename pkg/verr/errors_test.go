package verr

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorString(t *testing.T) {
	err := NewNotFound("/a/b")
	assert.Contains(t, err.Error(), "/a/b")

	code, ok := CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, ErrNotFound, code)
}

func TestCodeOfWrappedError(t *testing.T) {
	inner := NewReadOnly("/ro")
	wrapped := fmt.Errorf("mutating node: %w", inner)

	code, ok := CodeOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, ErrReadOnly, code)
	assert.True(t, HasCode(wrapped, ErrReadOnly))
	assert.False(t, HasCode(wrapped, ErrNotFound))
}

func TestCodeOfForeignError(t *testing.T) {
	_, ok := CodeOf(fmt.Errorf("plain error"))
	assert.False(t, ok)
	assert.False(t, HasCode(nil, ErrNotFound))
}

func TestConstructorsCarryTheirCode(t *testing.T) {
	cases := map[ErrorCode]error{
		ErrInvalidPath:        NewInvalidPath("bad", "/p"),
		ErrNotFound:           NewNotFound("/p"),
		ErrAlreadyExists:      NewAlreadyExists("/p"),
		ErrNotADirectory:      NewNotADirectory("/p"),
		ErrIsADirectory:       NewIsADirectory("/p"),
		ErrNotEmpty:           NewNotEmpty("/p"),
		ErrReadOnly:           NewReadOnly("/p"),
		ErrPermissionDenied:   NewPermissionDenied("/p"),
		ErrBackendUnavailable: NewUnavailable("backend offline", "/p"),
	}
	for want, err := range cases {
		code, ok := CodeOf(err)
		require.True(t, ok, "error %v", err)
		assert.Equal(t, want, code)
	}
}
