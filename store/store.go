package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/coterm/types"
)

// Notifier is an optional best-effort nudge fired after a message insert.
// Delivery remains poll-based; a lost notification only delays visibility
// until the next poll.
type Notifier interface {
	Notify(ctx context.Context, channel string) error
}

// Options configures store behavior.
type Options struct {
	// RearmThreshold controls extraction re-arming: when a session registers
	// again after a heartbeat gap longer than this, its one-shot extraction
	// marker is cleared so the next idle period gets a fresh extraction.
	// Zero disables re-arming (the marker then suppresses re-extraction for
	// the lifetime of the id).
	RearmThreshold time.Duration

	// Notifier, when set, is pinged after every successful Send.
	Notifier Notifier
}

// Store wraps the shared database with the coordination-layer operations.
type Store struct {
	db     *gorm.DB
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

// New creates a store and migrates the schema.
func New(db *gorm.DB, opts Options, logger *zap.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := db.AutoMigrate(
		&types.Session{},
		&types.FileClaim{},
		&types.Message{},
		&types.MessageRead{},
		&types.Finding{},
	); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}

	return &Store{
		db:     db,
		opts:   opts,
		logger: logger.With(zap.String("component", "store")),
		now:    time.Now,
	}, nil
}

// DB exposes the underlying handle for callers that compose their own
// queries (the daemon's health endpoint).
func (s *Store) DB() *gorm.DB { return s.db }
