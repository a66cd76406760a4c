package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestViewerService_RunningViewers_CountsMatches tests counting viewer
// processes among the local process list.
func TestViewerService_RunningViewers_CountsMatches(t *testing.T) {
	// Create service with a fake process list
	service := NewViewerService("vncviewer", "", nil,
		[]string{"vncviewer", "xtigervncviewer"}, zerolog.Nop())
	service.listProcessNames = func() ([]string, error) {
		return []string{"systemd", "vncviewer", "bash", "XTigerVNCViewer", "vncviewer"}, nil
	}

	// Test
	count, err := service.RunningViewers()

	// Verify
	assert.NoError(t, err)
	assert.Equal(t, 3, count)
}

// TestViewerService_RunningViewers_NoMatches tests an idle machine.
func TestViewerService_RunningViewers_NoMatches(t *testing.T) {
	// Create service with a fake process list
	service := NewViewerService("vncviewer", "", nil, nil, zerolog.Nop())
	service.listProcessNames = func() ([]string, error) {
		return []string{"systemd", "bash"}, nil
	}

	// Test
	count, err := service.RunningViewers()

	// Verify
	assert.NoError(t, err)
	assert.Equal(t, 0, count)
}

// TestViewerService_RunningViewers_ListError tests that process listing
// failures propagate.
func TestViewerService_RunningViewers_ListError(t *testing.T) {
	// Create service with a failing process list
	service := NewViewerService("vncviewer", "", nil, nil, zerolog.Nop())
	service.listProcessNames = func() ([]string, error) {
		return nil, errors.New("proc unavailable")
	}

	// Test
	_, err := service.RunningViewers()

	// Verify
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list local processes")
}

// TestViewerService_Launch_Success tests launching a viewer binary that exits
// cleanly.
func TestViewerService_Launch_Success(t *testing.T) {
	// Create service around a no-op binary
	service := NewViewerService("true", "", nil, nil, zerolog.Nop())

	// Test
	err := service.Launch(context.Background(), 9900)

	// Verify
	assert.NoError(t, err)
}

// TestViewerService_Launch_Failure tests that a failing viewer surfaces an
// error.
func TestViewerService_Launch_Failure(t *testing.T) {
	// Create service around a binary that always fails
	service := NewViewerService("false", "", nil, nil, zerolog.Nop())

	// Test
	err := service.Launch(context.Background(), 9900)

	// Verify
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "viewer exited with error")
}

// TestViewerService_Launch_MissingBinary tests the error for an absent
// viewer.
func TestViewerService_Launch_MissingBinary(t *testing.T) {
	// Create service around a binary that does not exist
	service := NewViewerService("definitely-not-a-vnc-viewer", "", nil, nil, zerolog.Nop())

	// Test
	err := service.Launch(context.Background(), 9900)

	// Verify
	assert.Error(t, err)
}

// TestViewerService_Launch_CancelledContext tests that cancelling the context
// kills a running viewer. The trailing localhost:port argument lands in $0 of
// the sh command.
func TestViewerService_Launch_CancelledContext(t *testing.T) {
	// Create service around a long-running binary
	service := NewViewerService("sh", "", []string{"-c", "sleep 30"}, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	// Test
	start := time.Now()
	err := service.Launch(ctx, 9900)

	// Verify
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}

// TestViewerService_BuildArgs_WithPasswdFile tests the full command line
// when the password file exists.
func TestViewerService_BuildArgs_WithPasswdFile(t *testing.T) {
	passwdPath := filepath.Join(t.TempDir(), "labs")
	require.NoError(t, os.WriteFile(passwdPath, []byte("secret"), 0600))

	service := NewViewerService("vncviewer", passwdPath,
		[]string{"-DotWhenNoCursor=1"}, nil, zerolog.Nop())

	// Test
	args, err := service.buildArgs(9901)

	// Verify
	assert.NoError(t, err)
	assert.Equal(t, []string{"-passwd", passwdPath, "-DotWhenNoCursor=1", "localhost:9901"}, args)
}

// TestViewerService_BuildArgs_MissingPasswdFile tests that an absent password
// file is skipped rather than passed to the viewer.
func TestViewerService_BuildArgs_MissingPasswdFile(t *testing.T) {
	service := NewViewerService("vncviewer", filepath.Join(t.TempDir(), "absent"),
		[]string{"-DotWhenNoCursor=1"}, nil, zerolog.Nop())

	// Test
	args, err := service.buildArgs(9900)

	// Verify
	assert.NoError(t, err)
	assert.Equal(t, []string{"-DotWhenNoCursor=1", "localhost:9900"}, args)
}
