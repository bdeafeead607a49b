package heartbeat

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// countingRegistrar counts store writes.
type countingRegistrar struct {
	calls int
	err   error
}

func (c *countingRegistrar) RegisterOrTouch(ctx context.Context, sessionID, project, workingOn string) error {
	c.calls++
	return c.err
}

func newTestUpdater(t *testing.T, reg Registrar) (*Updater, *time.Time) {
	t.Helper()
	u := NewUpdater(reg, Config{
		DebounceInterval: 30 * time.Second,
		SkipPrefix:       "/home/u/.claude",
		StateDir:         t.TempDir(),
	}, zap.NewNop())

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	u.now = func() time.Time { return now }
	return u, &now
}

func TestPromptPathDebounce(t *testing.T) {
	reg := &countingRegistrar{}
	u, now := newTestUpdater(t, reg)
	ctx := context.Background()

	res, err := u.Beat(ctx, PathPrompt, "s1", "/proj", "")
	require.NoError(t, err)
	assert.Equal(t, ResultWritten, res)

	// Within the interval: suppressed.
	*now = now.Add(10 * time.Second)
	res, err = u.Beat(ctx, PathPrompt, "s1", "/proj", "")
	require.NoError(t, err)
	assert.Equal(t, ResultDebounced, res)
	assert.Equal(t, 1, reg.calls, "two calls inside the interval write once")

	// Past the interval: writes again.
	*now = now.Add(25 * time.Second)
	res, err = u.Beat(ctx, PathPrompt, "s1", "/proj", "")
	require.NoError(t, err)
	assert.Equal(t, ResultWritten, res)
	assert.Equal(t, 2, reg.calls)
}

func TestDebounceSessionMismatchAlwaysWrites(t *testing.T) {
	reg := &countingRegistrar{}
	u, now := newTestUpdater(t, reg)
	ctx := context.Background()

	_, err := u.Beat(ctx, PathPrompt, "s1", "/proj", "")
	require.NoError(t, err)

	// A different session id one second later must not be dropped.
	*now = now.Add(time.Second)
	res, err := u.Beat(ctx, PathPrompt, "s2", "/proj", "")
	require.NoError(t, err)
	assert.Equal(t, ResultWritten, res)
	assert.Equal(t, 2, reg.calls)

	// And the cache now belongs to s2: s1 writes again too.
	*now = now.Add(time.Second)
	res, err = u.Beat(ctx, PathPrompt, "s1", "/proj", "")
	require.NoError(t, err)
	assert.Equal(t, ResultWritten, res)
	assert.Equal(t, 3, reg.calls)
}

func TestToolPathNeverDebounces(t *testing.T) {
	reg := &countingRegistrar{}
	u, _ := newTestUpdater(t, reg)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res, err := u.Beat(ctx, PathTool, "s1", "/proj", "")
		require.NoError(t, err)
		assert.Equal(t, ResultWritten, res)
	}
	assert.Equal(t, 5, reg.calls)
}

func TestSkipInsideConfigTree(t *testing.T) {
	reg := &countingRegistrar{}
	u, _ := newTestUpdater(t, reg)
	ctx := context.Background()

	for _, project := range []string{
		"/home/u/.claude",
		"/home/u/.claude/hooks",
		"/home/u/.claude/skills/deep/nested",
	} {
		res, err := u.Beat(ctx, PathTool, "s1", project, "")
		require.NoError(t, err)
		assert.Equal(t, ResultSkipped, res, "project %s", project)
	}
	assert.Zero(t, reg.calls)

	// Sibling paths that merely share the prefix string are not skipped.
	res, err := u.Beat(ctx, PathTool, "s1", "/home/u/.claude-backup", "")
	require.NoError(t, err)
	assert.Equal(t, ResultWritten, res)
	assert.Equal(t, 1, reg.calls)
}

func TestMalformedDebounceCacheTreatedAsEmpty(t *testing.T) {
	reg := &countingRegistrar{}
	u, _ := newTestUpdater(t, reg)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(
		filepath.Join(u.cfg.StateDir, "heartbeat-debounce.json"),
		[]byte("{not json"), 0o644))

	res, err := u.Beat(ctx, PathPrompt, "s1", "/proj", "")
	require.NoError(t, err)
	assert.Equal(t, ResultWritten, res)
	assert.Equal(t, 1, reg.calls)
}

func TestStoreErrorSurfacesButDoesNotCacheDebounce(t *testing.T) {
	reg := &countingRegistrar{err: errors.New("connection refused")}
	u, _ := newTestUpdater(t, reg)
	ctx := context.Background()

	_, err := u.Beat(ctx, PathPrompt, "s1", "/proj", "")
	assert.Error(t, err)

	// The failed write is not cached: the next attempt retries immediately.
	reg.err = nil
	res, err := u.Beat(ctx, PathPrompt, "s1", "/proj", "")
	require.NoError(t, err)
	assert.Equal(t, ResultWritten, res)
}
