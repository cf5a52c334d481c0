// Package vfstesting provides a reusable conformance test suite for
// backend implementations. It tests the interface contract, not
// implementation details, so any backend can run the same suite.
package vfstesting

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vnodefs/vnodefs/pkg/verr"
	"github.com/vnodefs/vnodefs/pkg/vnode"
	"github.com/vnodefs/vnodefs/pkg/vpath"
)

// Suite is a conformance test suite for a backend implementation.
type Suite struct {
	// NewBackend creates a fresh backend for each test, ensuring test
	// isolation. Read-only suites return a backend preloaded with
	// exactly the Fixture content.
	NewBackend func(t *testing.T) vnode.Backend

	// ReadOnly marks the backend as rejecting every mutation. The
	// suite then verifies read behavior against Fixture and checks
	// that mutations fail with ReadOnly.
	ReadOnly bool

	// Fixture maps raw path strings to file content for read-only
	// suites.
	Fixture map[string][]byte
}

// Run executes all tests in the suite.
func (suite *Suite) Run(t *testing.T) {
	if suite.ReadOnly {
		t.Run("Fixture", suite.RunFixtureTests)
		t.Run("ReadOnly", suite.RunReadOnlyTests)
		return
	}
	t.Run("Stat", suite.RunStatTests)
	t.Run("ReadWrite", suite.RunReadWriteTests)
	t.Run("List", suite.RunListTests)
	t.Run("Directory", suite.RunDirectoryTests)
	t.Run("Remove", suite.RunRemoveTests)
	t.Run("Rename", suite.RunRenameTests)
}

// AssertErrorCode fails the test unless err carries the expected
// taxonomy code.
func AssertErrorCode(t *testing.T, expected verr.ErrorCode, err error) {
	t.Helper()
	require.Error(t, err)
	code, ok := verr.CodeOf(err)
	require.True(t, ok, "error %v carries no taxonomy code", err)
	require.Equal(t, expected, code)
}

func mustPath(t *testing.T, raw string) vpath.Path {
	t.Helper()
	p, err := vpath.Parse(raw)
	require.NoError(t, err)
	return p
}
