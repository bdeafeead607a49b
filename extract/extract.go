// Package extract hands stale sessions to the external summarization
// collaborator. The collaborator is a black box: a process invoked with the
// session id and project path whose exit code 0 means the session's memory
// records were written. The summarization step is expected to be safe to
// re-run; delivery here is at-least-once, not exactly-once.
package extract

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"go.uber.org/zap"
)

// Runner runs one extraction attempt. Implementations must honor context
// cancellation: the scanner enforces a wall-clock deadline and a run that
// outlives its context is force-killed rather than left occupying a slot.
type Runner interface {
	Run(ctx context.Context, sessionID, project string) error
}

// ProcessRunner spawns the summarizer as a child process.
type ProcessRunner struct {
	command []string
	logger  *zap.Logger
}

// NewProcessRunner creates a runner for the given command; the session id and
// project path are appended as the final two arguments.
func NewProcessRunner(command []string, logger *zap.Logger) (*ProcessRunner, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("extract command is empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProcessRunner{
		command: command,
		logger:  logger.With(zap.String("component", "extract")),
	}, nil
}

// Run executes one extraction. On context expiry the child is killed; a
// short WaitDelay gives it a moment to flush before the hard kill.
func (r *ProcessRunner) Run(ctx context.Context, sessionID, project string) error {
	args := append(append([]string{}, r.command[1:]...), sessionID, project)
	cmd := exec.CommandContext(ctx, r.command[0], args...)
	cmd.WaitDelay = 5 * time.Second

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		r.logger.Warn("extraction failed",
			zap.String("session_id", sessionID),
			zap.String("project", project),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return fmt.Errorf("extraction for %s: %w", sessionID, err)
	}

	r.logger.Info("extraction finished",
		zap.String("session_id", sessionID),
		zap.Duration("elapsed", elapsed))
	return nil
}
