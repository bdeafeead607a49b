package scanner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/coterm/types"
)

// fakeStore serves a fixed stale set and records extraction markers.
type fakeStore struct {
	mu        sync.Mutex
	stale     []types.Session
	extracted map[string]bool
	listErr   error
	markErr   error
}

func newFakeStore(ids ...string) *fakeStore {
	f := &fakeStore{extracted: make(map[string]bool)}
	for _, id := range ids {
		f.stale = append(f.stale, types.Session{ID: id, Project: "/p"})
	}
	return f
}

func (f *fakeStore) ListStale(ctx context.Context, threshold time.Duration) ([]types.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []types.Session
	for _, s := range f.stale {
		if !f.extracted[s.ID] {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkExtracted(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	f.extracted[sessionID] = true
	return nil
}

func (f *fakeStore) isExtracted(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.extracted[id]
}

// blockingRunner holds each run until the test releases it.
type blockingRunner struct {
	mu       sync.Mutex
	started  []string
	releases map[string]chan error
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{releases: make(map[string]chan error)}
}

func (r *blockingRunner) Run(ctx context.Context, sessionID, project string) error {
	r.mu.Lock()
	r.started = append(r.started, sessionID)
	ch, ok := r.releases[sessionID]
	r.mu.Unlock()

	if !ok {
		return nil
	}
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *blockingRunner) block(sessionID string) chan error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := make(chan error, 1)
	r.releases[sessionID] = ch
	return ch
}

func (r *blockingRunner) startedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.started...)
}

func testConfig() Config {
	return Config{
		StalenessThreshold: 5 * time.Minute,
		MaxConcurrent:      2,
		ExtractionTimeout:  time.Minute,
		StoreTimeout:       time.Second,
	}
}

func TestBoundedConcurrency(t *testing.T) {
	store := newFakeStore("s1", "s2", "s3")
	runner := newBlockingRunner()
	ch1 := runner.block("s1")
	runner.block("s2")
	ch3 := runner.block("s3")

	sched := NewScheduler(store, runner, testConfig(), nil, zap.NewNop())
	ctx := context.Background()

	// Three stale sessions, two slots: exactly two spawns, one queued.
	require.NoError(t, sched.Tick(ctx))
	require.Eventually(t, func() bool {
		return len(runner.startedIDs()) == 2
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, sched.InFlight())
	assert.Equal(t, 1, sched.QueueLen())

	// A second tick with the same stale set must not double-enqueue.
	require.NoError(t, sched.Tick(ctx))
	assert.Equal(t, 2, sched.InFlight())
	assert.Equal(t, 1, sched.QueueLen())

	// One extraction finishes: the reaper frees its slot and the queued
	// session starts on the next tick.
	ch1 <- nil
	require.Eventually(t, func() bool {
		return store.isExtracted("s1")
	}, time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		_ = sched.Tick(ctx)
		return len(runner.startedIDs()) == 3
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"s1", "s2", "s3"}, runner.startedIDs())
	assert.Zero(t, sched.QueueLen())

	ch3 <- nil
}

func TestFailedExtractionRetriedNextTick(t *testing.T) {
	store := newFakeStore("s1")
	runner := newBlockingRunner()
	ch := runner.block("s1")

	sched := NewScheduler(store, runner, testConfig(), nil, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, sched.Tick(ctx))
	ch <- errors.New("summarizer crashed")

	require.Eventually(t, func() bool {
		sched.reap()
		return sched.InFlight() == 0
	}, time.Second, 10*time.Millisecond)
	assert.False(t, store.isExtracted("s1"), "failure leaves the session stale")

	// Next tick rediscovers and retries: at-least-once delivery.
	ch2 := runner.block("s1")
	require.NoError(t, sched.Tick(ctx))
	require.Eventually(t, func() bool {
		return len(runner.startedIDs()) == 2
	}, time.Second, 10*time.Millisecond)
	ch2 <- nil
}

func TestExtractionDeadlineKillsRun(t *testing.T) {
	store := newFakeStore("s1")
	runner := newBlockingRunner()
	runner.block("s1") // never released; only the deadline ends it

	cfg := testConfig()
	cfg.ExtractionTimeout = 50 * time.Millisecond
	sched := NewScheduler(store, runner, cfg, nil, zap.NewNop())

	require.NoError(t, sched.Tick(context.Background()))

	require.Eventually(t, func() bool {
		sched.reap()
		return sched.InFlight() == 0
	}, time.Second, 10*time.Millisecond)
	assert.False(t, store.isExtracted("s1"), "timeout counts as a failure, retry-eligible")
}

func TestTickFailsClosedOnStoreError(t *testing.T) {
	store := newFakeStore("s1")
	store.listErr = errors.New("connection refused")
	runner := newBlockingRunner()

	sched := NewScheduler(store, runner, testConfig(), nil, zap.NewNop())

	assert.Error(t, sched.Tick(context.Background()))
	assert.Empty(t, runner.startedIDs(), "no extraction spawned without an authoritative stale set")
}

func TestMarkExtractedFailureLeavesSessionStale(t *testing.T) {
	store := newFakeStore("s1")
	store.markErr = errors.New("write timeout")
	runner := newBlockingRunner()

	sched := NewScheduler(store, runner, testConfig(), nil, zap.NewNop())
	require.NoError(t, sched.Tick(context.Background()))

	require.Eventually(t, func() bool {
		sched.reap()
		return sched.InFlight() == 0
	}, time.Second, 10*time.Millisecond)
	assert.False(t, store.isExtracted("s1"))
}

func TestShutdownCancelsRuns(t *testing.T) {
	store := newFakeStore("s1", "s2")
	runner := newBlockingRunner()
	runner.block("s1")
	runner.block("s2")

	sched := NewScheduler(store, runner, testConfig(), nil, zap.NewNop())
	require.NoError(t, sched.Tick(context.Background()))
	require.Eventually(t, func() bool {
		return len(runner.startedIDs()) == 2
	}, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	sched.Shutdown(ctx)

	sched.reap()
	assert.Zero(t, sched.InFlight())
}
