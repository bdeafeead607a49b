package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/coterm/config"
	"github.com/BaSui01/coterm/heartbeat"
	"github.com/BaSui01/coterm/internal/database"
	"github.com/BaSui01/coterm/notify"
	"github.com/BaSui01/coterm/store"
	"github.com/BaSui01/coterm/trace"
	"github.com/BaSui01/coterm/types"
)

// =============================================================================
// 环境与连接
// =============================================================================

// env bundles everything a subcommand needs for one hook invocation.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
	tracer *trace.Client
	close  func()
}

// setup loads configuration and connects to the store. The config file is
// optional; hooks normally run on environment variables alone.
func setup() (*env, error) {
	loader := config.NewLoader()
	if path := os.Getenv("COTERM_CONFIG"); path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := initLogger(cfg.Log)

	db, err := database.Open(cfg.ResolveDatabaseURL(), logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	opts := store.Options{RearmThreshold: cfg.Scanner.StalenessThreshold}
	var pub *notify.Publisher
	if cfg.Redis.Enabled {
		pub, err = notify.NewPublisher(cfg.Redis, logger)
		if err != nil {
			// The nudge is optional; messaging falls back to polling.
			logger.Debug("redis nudge unavailable", zap.Error(err))
		} else {
			opts.Notifier = pub
		}
	}

	st, err := store.New(db, opts, logger)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	return &env{
		cfg:    cfg,
		logger: logger,
		store:  st,
		tracer: trace.NewClient(cfg.Trace, logger),
		close: func() {
			if pub != nil {
				_ = pub.Close()
			}
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
			_ = logger.Sync()
		},
	}, nil
}

// opCtx bounds one interactive store round-trip.
func (e *env) opCtx() (context.Context, context.CancelFunc) {
	timeout := e.cfg.Database.OpTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return context.WithTimeout(context.Background(), timeout)
}

// =============================================================================
// JSON 输出
// =============================================================================

func emit(v any) {
	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(v)
}

// fail prints an error envelope and returns the non-zero exit code.
func fail(err error) int {
	emit(map[string]any{"ok": false, "error": err.Error()})
	return 1
}

// failOpen prints a degraded success envelope. Interactive-path hooks never
// hard-block the user on store unavailability.
func failOpen(logger *zap.Logger, extra map[string]any, err error) int {
	if logger != nil {
		logger.Warn("store unavailable, failing open", zap.Error(err))
	}
	out := map[string]any{"ok": true, "degraded": true}
	for k, v := range extra {
		out[k] = v
	}
	emit(out)
	return 0
}

// =============================================================================
// register / heartbeat
// =============================================================================

func runRegister(args []string) int {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	sessionID := fs.String("session-id", "", "Session id (generated when empty)")
	project := fs.String("project", "", "Project root path")
	workingOn := fs.String("working-on", "", "Short description of current work")
	_ = fs.Parse(args)

	id := *sessionID
	if id == "" {
		id = uuid.NewString()
	}

	e, err := setup()
	if err != nil {
		return failOpen(nil, map[string]any{"session_id": id}, err)
	}
	defer e.close()

	ctx, cancel := e.opCtx()
	defer cancel()

	if err := e.store.RegisterOrTouch(ctx, id, *project, *workingOn); err != nil {
		return failOpen(e.logger, map[string]any{"session_id": id}, err)
	}

	e.tracer.Insert(ctx, trace.Span{
		ID:        trace.SpanID(id, trace.LevelSession, "session"),
		SessionID: id,
		Level:     trace.LevelSession,
		Name:      *workingOn,
		StartedAt: time.Now(),
	})

	emit(map[string]any{"ok": true, "session_id": id})
	return 0
}

func runHeartbeat(args []string) int {
	fs := flag.NewFlagSet("heartbeat", flag.ExitOnError)
	sessionID := fs.String("session-id", "", "Session id")
	project := fs.String("project", "", "Project root path")
	workingOn := fs.String("working-on", "", "Short description of current work")
	tool := fs.Bool("tool", false, "Tool-call path (never debounced)")
	_ = fs.Parse(args)

	if *sessionID == "" {
		return fail(fmt.Errorf("--session-id is required"))
	}

	e, err := setup()
	if err != nil {
		return failOpen(nil, map[string]any{"result": "skipped"}, err)
	}
	defer e.close()

	updater := heartbeat.NewUpdater(e.store, heartbeat.Config{
		DebounceInterval: e.cfg.Heartbeat.DebounceInterval,
		SkipPrefix:       e.cfg.Heartbeat.SkipPrefix,
		StateDir:         e.cfg.ResolveStateDir(),
	}, e.logger)

	path := heartbeat.PathPrompt
	if *tool {
		path = heartbeat.PathTool
	}

	ctx, cancel := e.opCtx()
	defer cancel()

	result, err := updater.Beat(ctx, path, *sessionID, *project, *workingOn)
	if err != nil {
		return failOpen(e.logger, map[string]any{"result": "skipped"}, err)
	}

	emit(map[string]any{"ok": true, "result": string(result)})
	return 0
}

// =============================================================================
// claim-check / claim-set
// =============================================================================

func runClaimCheck(args []string) int {
	fs := flag.NewFlagSet("claim-check", flag.ExitOnError)
	file := fs.String("file", "", "File path being edited")
	project := fs.String("project", "", "Project root path")
	sessionID := fs.String("session-id", "", "Own session id")
	_ = fs.Parse(args)

	if *file == "" {
		return fail(fmt.Errorf("--file is required"))
	}

	e, err := setup()
	if err != nil {
		// Assume unclaimed rather than block an edit.
		return failOpen(nil, map[string]any{"claimed": false}, err)
	}
	defer e.close()

	ctx, cancel := e.opCtx()
	defer cancel()

	status, err := e.store.CheckClaim(ctx, *file, *project, *sessionID)
	if err != nil {
		return failOpen(e.logger, map[string]any{"claimed": false}, err)
	}

	out := map[string]any{"ok": true, "claimed": status.Claimed}
	if status.Claimed {
		out["claimed_by"] = status.ClaimedBy
		out["claimed_at"] = status.ClaimedAt
		// The claim row says nothing about claimant liveness; settle it here
		// so the warning can distinguish a live conflict from a leftover.
		active, aerr := e.store.IsActive(ctx, status.ClaimedBy, e.cfg.Scanner.StalenessThreshold)
		if aerr != nil {
			active = false
		}
		out["claimant_active"] = active
	}
	emit(out)
	return 0
}

func runClaimSet(args []string) int {
	fs := flag.NewFlagSet("claim-set", flag.ExitOnError)
	file := fs.String("file", "", "File path being edited")
	project := fs.String("project", "", "Project root path")
	sessionID := fs.String("session-id", "", "Own session id")
	_ = fs.Parse(args)

	if *file == "" || *sessionID == "" {
		return fail(fmt.Errorf("--file and --session-id are required"))
	}

	e, err := setup()
	if err != nil {
		return failOpen(nil, nil, err)
	}
	defer e.close()

	ctx, cancel := e.opCtx()
	defer cancel()

	if err := e.store.Claim(ctx, *file, *project, *sessionID); err != nil {
		return failOpen(e.logger, nil, err)
	}

	emit(map[string]any{"ok": true})
	return 0
}

// =============================================================================
// send-message / receive-messages
// =============================================================================

func runSendMessage(args []string) int {
	fs := flag.NewFlagSet("send-message", flag.ExitOnError)
	channel := fs.String("channel", "", "Channel name")
	sender := fs.String("sender", "", "Sender session id")
	msgType := fs.String("type", "", "Message type: request, response, status, directive, checkpoint")
	payload := fs.String("payload", "", "JSON payload")
	recipient := fs.String("recipient", "", "Recipient session id (empty broadcasts)")
	_ = fs.Parse(args)

	if *channel == "" || *sender == "" {
		return fail(fmt.Errorf("--channel and --sender are required"))
	}

	mt, err := types.ParseMessageType(*msgType)
	if err != nil {
		return fail(err)
	}

	e, err := setup()
	if err != nil {
		return fail(err)
	}
	defer e.close()

	var recipientID *string
	if *recipient != "" {
		recipientID = recipient
	}

	ctx, cancel := e.opCtx()
	defer cancel()

	id, err := e.store.Send(ctx, *channel, *sender, mt, json.RawMessage(*payload), recipientID)
	if err != nil {
		return fail(err)
	}

	emit(map[string]any{"ok": true, "message_id": id})
	return 0
}

func runReceiveMessages(args []string) int {
	fs := flag.NewFlagSet("receive-messages", flag.ExitOnError)
	recipient := fs.String("recipient", "", "Recipient session id")
	channel := fs.String("channel", "", "Optional channel filter")
	noMarkRead := fs.Bool("no-mark-read", false, "Leave messages unread")
	_ = fs.Parse(args)

	if *recipient == "" {
		return fail(fmt.Errorf("--recipient is required"))
	}

	e, err := setup()
	if err != nil {
		return fail(err)
	}
	defer e.close()

	ctx, cancel := e.opCtx()
	defer cancel()

	msgs, err := e.store.Receive(ctx, *recipient, *channel, !*noMarkRead)
	if err != nil {
		return fail(err)
	}
	if msgs == nil {
		msgs = []types.Message{}
	}

	emit(map[string]any{"ok": true, "messages": msgs})
	return 0
}

// =============================================================================
// finding-add / finding-search
// =============================================================================

func runFindingAdd(args []string) int {
	fs := flag.NewFlagSet("finding-add", flag.ExitOnError)
	sessionID := fs.String("session-id", "", "Own session id")
	topic := fs.String("topic", "", "Finding topic")
	finding := fs.String("finding", "", "Finding text")
	relevantTo := fs.String("relevant-to", "", "Comma-separated tags")
	_ = fs.Parse(args)

	if *sessionID == "" || *topic == "" || *finding == "" {
		return fail(fmt.Errorf("--session-id, --topic and --finding are required"))
	}

	e, err := setup()
	if err != nil {
		return fail(err)
	}
	defer e.close()

	var tags []string
	for _, tag := range strings.Split(*relevantTo, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}

	ctx, cancel := e.opCtx()
	defer cancel()

	id, err := e.store.AddFinding(ctx, *sessionID, *topic, *finding, tags)
	if err != nil {
		return fail(err)
	}

	emit(map[string]any{"ok": true, "finding_id": id})
	return 0
}

func runFindingSearch(args []string) int {
	fs := flag.NewFlagSet("finding-search", flag.ExitOnError)
	query := fs.String("query", "", "Topic or tag substring")
	sessionID := fs.String("session-id", "", "Own session id, excluded from results")
	_ = fs.Parse(args)

	if *query == "" {
		return fail(fmt.Errorf("--query is required"))
	}

	e, err := setup()
	if err != nil {
		return fail(err)
	}
	defer e.close()

	ctx, cancel := e.opCtx()
	defer cancel()

	findings, err := e.store.SearchFindings(ctx, *query, *sessionID)
	if err != nil {
		return fail(err)
	}
	if findings == nil {
		findings = []types.Finding{}
	}

	emit(map[string]any{"ok": true, "findings": findings})
	return 0
}

// =============================================================================
// sessions
// =============================================================================

func runSessions(args []string) int {
	fs := flag.NewFlagSet("sessions", flag.ExitOnError)
	project := fs.String("project", "", "Optional project filter")
	_ = fs.Parse(args)

	e, err := setup()
	if err != nil {
		return fail(err)
	}
	defer e.close()

	ctx, cancel := e.opCtx()
	defer cancel()

	sessions, err := e.store.ListActive(ctx, e.cfg.Scanner.StalenessThreshold, *project)
	if err != nil {
		return fail(err)
	}
	if sessions == nil {
		sessions = []types.Session{}
	}

	emit(map[string]any{"ok": true, "sessions": sessions})
	return 0
}
