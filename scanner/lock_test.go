package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockSingleton(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireLock(dir)
	require.NoError(t, err)

	// Our own pid is alive, so a second instance is refused.
	_, err = AcquireLock(dir)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already running")

	require.NoError(t, lock.Release())

	lock2, err := AcquireLock(dir)
	require.NoError(t, err)
	require.NoError(t, lock2.Release())
}

func TestLockTakesOverStalePid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scanner.pid")

	// A pid far above pid_max cannot be alive.
	require.NoError(t, os.WriteFile(path, []byte("99999999\n"), 0o644))

	lock, err := AcquireLock(dir)
	require.NoError(t, err)
	require.NoError(t, lock.Release())
}

func TestLockTakesOverGarbagePidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scanner.pid")

	require.NoError(t, os.WriteFile(path, []byte("not a pid"), 0o644))

	lock, err := AcquireLock(dir)
	require.NoError(t, err)
	require.NoError(t, lock.Release())
}

func TestLockReleaseIdempotent(t *testing.T) {
	lock, err := AcquireLock(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, lock.Release())
	require.NoError(t, lock.Release())
}
