// Package heartbeat keeps a session's liveness timestamp fresh without
// excessive store traffic on the interactive path.
//
// Two host events drive it: tool calls and prompt submissions. The prompt
// path debounces through a local side file so bursts of prompts produce one
// store write per interval; the tool path always calls through and lets the
// store's upsert absorb the cost.
package heartbeat

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Path identifies which host event produced the heartbeat.
type Path string

const (
	// PathTool is a tool invocation; never debounced.
	PathTool Path = "tool"
	// PathPrompt is a user prompt submission; debounced.
	PathPrompt Path = "prompt"
)

// Result describes what a heartbeat attempt did.
type Result string

const (
	// ResultWritten means the store was updated.
	ResultWritten Result = "written"
	// ResultDebounced means the write was suppressed by the local cache.
	ResultDebounced Result = "debounced"
	// ResultSkipped means the working directory is inside the assistant's
	// own config tree and instrumentation is disabled there.
	ResultSkipped Result = "skipped"
)

// Registrar is the slice of the session store the updater needs.
type Registrar interface {
	RegisterOrTouch(ctx context.Context, sessionID, project, workingOn string) error
}

// Config tunes the updater.
type Config struct {
	// DebounceInterval suppresses repeat prompt-path writes for one session.
	DebounceInterval time.Duration
	// SkipPrefix disables heartbeats for projects under this path. Empty
	// means $HOME/.claude.
	SkipPrefix string
	// StateDir holds the debounce side file.
	StateDir string
}

// Updater drives heartbeat writes.
type Updater struct {
	store  Registrar
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// debounceState is the side-file cache: the last write time and the session
// it applies to. A session-id mismatch always forces a write so switching
// sessions is never silently dropped.
type debounceState struct {
	SessionID string    `json:"session_id"`
	LastWrite time.Time `json:"last_write"`
}

// NewUpdater creates a heartbeat updater.
func NewUpdater(store Registrar, cfg Config, logger *zap.Logger) *Updater {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SkipPrefix == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.SkipPrefix = filepath.Join(home, ".claude")
		}
	}
	return &Updater{
		store:  store,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "heartbeat")),
		now:    time.Now,
	}
}

// Beat refreshes the session's heartbeat for the given host event. The error
// is informational: callers on the interactive path fail open and report
// "continue" regardless.
func (u *Updater) Beat(ctx context.Context, path Path, sessionID, project, workingOn string) (Result, error) {
	if u.insideSkipPrefix(project) {
		u.logger.Debug("heartbeat skipped inside config tree",
			zap.String("project", project))
		return ResultSkipped, nil
	}

	if path == PathPrompt && u.debounced(sessionID) {
		return ResultDebounced, nil
	}

	if err := u.store.RegisterOrTouch(ctx, sessionID, project, workingOn); err != nil {
		return ResultWritten, err
	}

	if path == PathPrompt {
		u.saveDebounce(sessionID)
	}
	return ResultWritten, nil
}

// insideSkipPrefix reports whether the project sits inside the assistant's
// own configuration tree. Instrumenting the instrumentation produces
// heartbeat storms from housekeeping sessions.
func (u *Updater) insideSkipPrefix(project string) bool {
	if u.cfg.SkipPrefix == "" || project == "" {
		return false
	}
	rel, err := filepath.Rel(u.cfg.SkipPrefix, project)
	if err != nil {
		return false
	}
	return rel == "." || !strings.HasPrefix(rel, "..")
}

func (u *Updater) cachePath() string {
	return filepath.Join(u.cfg.StateDir, "heartbeat-debounce.json")
}

// debounced reports whether the prompt-path write should be suppressed: the
// cached entry is for the same session id and younger than the interval.
// A missing or malformed cache file means "write".
func (u *Updater) debounced(sessionID string) bool {
	if u.cfg.DebounceInterval <= 0 {
		return false
	}

	data, err := os.ReadFile(u.cachePath())
	if err != nil {
		return false
	}

	var state debounceState
	if err := json.Unmarshal(data, &state); err != nil {
		// Malformed cache is treated as empty, never an error.
		return false
	}

	if state.SessionID != sessionID {
		return false
	}
	return u.now().Sub(state.LastWrite) < u.cfg.DebounceInterval
}

// saveDebounce records the write. Failures are logged and ignored: the worst
// case is an extra store write next time.
func (u *Updater) saveDebounce(sessionID string) {
	state := debounceState{SessionID: sessionID, LastWrite: u.now()}
	data, err := json.Marshal(state)
	if err != nil {
		return
	}
	if err := os.MkdirAll(u.cfg.StateDir, 0o755); err != nil {
		u.logger.Debug("debounce cache dir", zap.Error(err))
		return
	}
	if err := os.WriteFile(u.cachePath(), data, 0o644); err != nil {
		u.logger.Debug("debounce cache write", zap.Error(err))
	}
}
