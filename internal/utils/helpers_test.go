package utils

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSliceToSet verifies membership lookups after conversion.
func TestSliceToSet(t *testing.T) {
	set := SliceToSet([]string{"vncviewer", "xtigervncviewer", "vncviewer"})

	assert.Len(t, set, 2)
	assert.Contains(t, set, "vncviewer")
	assert.Contains(t, set, "xtigervncviewer")
	assert.NotContains(t, set, "xterm")
}

// TestSliceToSet_Empty verifies the empty slice case.
func TestSliceToSet_Empty(t *testing.T) {
	set := SliceToSet([]int{})

	assert.Empty(t, set)
}

// TestExpandHome_TildePrefix verifies expansion against the current home
// directory.
func TestExpandHome_TildePrefix(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	expanded, err := ExpandHome("~/.vnc/labs")

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".vnc/labs"), expanded)
}

// TestExpandHome_BareTilde verifies that a lone ~ resolves to the home
// directory itself.
func TestExpandHome_BareTilde(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	expanded, err := ExpandHome("~")

	require.NoError(t, err)
	assert.Equal(t, home, expanded)
}

// TestExpandHome_AbsolutePathUnchanged verifies paths without a tilde pass
// through untouched.
func TestExpandHome_AbsolutePathUnchanged(t *testing.T) {
	expanded, err := ExpandHome("/etc/ssh/ssh_config")

	require.NoError(t, err)
	assert.Equal(t, "/etc/ssh/ssh_config", expanded)
}

// TestExpandHome_UserTildeUnchanged verifies that ~user forms are not
// expanded, only the current user's home is.
func TestExpandHome_UserTildeUnchanged(t *testing.T) {
	expanded, err := ExpandHome("~procs/.vnc/passwd")

	require.NoError(t, err)
	assert.Equal(t, "~procs/.vnc/passwd", expanded)
}
