package scanner

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
	"pgregory.net/rapid"
)

// TestProperty_Scheduler_FIFOAndBound checks two invariants for any stale-set
// size and slot count: extractions start in enqueue order, and the in-flight
// set never exceeds the concurrency cap.
func TestProperty_Scheduler_FIFOAndBound(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		numSessions := rapid.IntRange(1, 8).Draw(rt, "numSessions")
		maxConcurrent := rapid.IntRange(1, 3).Draw(rt, "maxConcurrent")

		ids := make([]string, numSessions)
		for i := range ids {
			ids[i] = fmt.Sprintf("s%d", i)
		}

		store := newFakeStore(ids...)
		runner := newBlockingRunner()
		releases := make([]chan error, numSessions)
		for i, id := range ids {
			releases[i] = runner.block(id)
		}

		cfg := testConfig()
		cfg.MaxConcurrent = maxConcurrent
		sched := NewScheduler(store, runner, cfg, nil, zap.NewNop())
		ctx := context.Background()

		// Release completed runs one at a time, ticking in between, until
		// everything has been extracted.
		released := 0
		deadline := time.Now().Add(5 * time.Second)
		for released < numSessions {
			if time.Now().After(deadline) {
				rt.Fatalf("timed out with %d/%d released", released, numSessions)
			}
			_ = sched.Tick(ctx)

			if sched.InFlight() > maxConcurrent {
				rt.Fatalf("in-flight %d exceeds cap %d", sched.InFlight(), maxConcurrent)
			}

			started := runner.startedIDs()
			if len(started) > released {
				releases[released] <- nil
				released++
			} else {
				time.Sleep(time.Millisecond)
			}
		}

		// Drain: every session eventually extracted, starts in FIFO order.
		for i := 0; i < 500; i++ {
			_ = sched.Tick(ctx)
			done := true
			for _, id := range ids {
				if !store.isExtracted(id) {
					done = false
					break
				}
			}
			if done {
				break
			}
			time.Sleep(time.Millisecond)
		}

		started := runner.startedIDs()
		if len(started) != numSessions {
			rt.Fatalf("started %d of %d sessions", len(started), numSessions)
		}
		for i, id := range ids {
			if started[i] != id {
				rt.Fatalf("start order broken at %d: got %s, want %s", i, started[i], id)
			}
		}
	})
}
