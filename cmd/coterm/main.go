// =============================================================================
// coterm 主入口
// =============================================================================
// Single-purpose CLI entry points for the cross-terminal coordination layer.
// Each subcommand is one hook invocation: a short-lived process that talks to
// the shared store, prints one JSON object to stdout and exits. Exit code 0
// means the hook may proceed; non-zero carries a JSON error object.
//
// 使用方法:
//
//	coterm register --session-id ID --project DIR [--working-on TEXT]
//	coterm heartbeat --session-id ID --project DIR [--tool]
//	coterm claim-check --file PATH --project DIR --session-id ID
//	coterm claim-set --file PATH --project DIR --session-id ID
//	coterm send-message --channel CH --sender ID --type T --payload JSON [--recipient ID]
//	coterm receive-messages --recipient ID [--channel CH] [--no-mark-read]
//	coterm finding-add --session-id ID --topic T --finding TEXT [--relevant-to CSV]
//	coterm finding-search --query Q [--session-id ID]
//	coterm sessions [--project DIR]
//	coterm version
// =============================================================================
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/coterm/config"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var code int
	switch os.Args[1] {
	case "register":
		code = runRegister(os.Args[2:])
	case "heartbeat":
		code = runHeartbeat(os.Args[2:])
	case "claim-check":
		code = runClaimCheck(os.Args[2:])
	case "claim-set":
		code = runClaimSet(os.Args[2:])
	case "send-message":
		code = runSendMessage(os.Args[2:])
	case "receive-messages":
		code = runReceiveMessages(os.Args[2:])
	case "finding-add":
		code = runFindingAdd(os.Args[2:])
	case "finding-search":
		code = runFindingSearch(os.Args[2:])
	case "sessions":
		code = runSessions(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		code = 1
	}
	os.Exit(code)
}

func printVersion() {
	fmt.Printf("coterm %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Fprint(os.Stderr, `coterm - cross-terminal session coordination

Usage:
  coterm <command> [flags]

Commands:
  register          Register a session or refresh its heartbeat
  heartbeat         Touch a session's liveness timestamp (debounced)
  claim-check       Report whether another session claims a file
  claim-set         Take or renew an advisory claim on a file
  send-message      Append a message to a coordination channel
  receive-messages  Fetch unread messages for a recipient
  finding-add       Record a finding for other sessions to discover
  finding-search    Search findings from other sessions
  sessions          List active sessions
  version           Print version information

Every command prints a single JSON object to stdout.
`)
}

// initLogger builds the CLI logger. Hooks run on the interactive path, so
// logs go to stderr and stdout stays reserved for the JSON result.
func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.WarnLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         "json",
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapConfig.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return logger
}
