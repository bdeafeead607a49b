// Package coterm provides a top-level convenience entry point for connecting
// to the coordination store with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/coterm"
//
//	c, err := coterm.Open()
//	c, err := coterm.Open(coterm.WithDatabaseURL("postgres://..."))
//	defer c.Close()
//
//	err = c.Store.RegisterOrTouch(ctx, sessionID, project, "refactoring auth")
//
// This is a thin wrapper around config loading plus [store.New]; the coterm
// and cotermd binaries do the same wiring with more knobs. Use this package
// when embedding the coordination layer in another Go program.
package coterm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/coterm/config"
	"github.com/BaSui01/coterm/internal/database"
	"github.com/BaSui01/coterm/notify"
	"github.com/BaSui01/coterm/store"
)

// Client bundles an open store with everything needed to tear it down.
type Client struct {
	Store  *store.Store
	Config *config.Config

	logger *zap.Logger
	pub    *notify.Publisher
}

// Option configures the client created by [Open].
type Option func(*options)

type options struct {
	configPath  string
	databaseURL string
	logger      *zap.Logger
}

// WithConfigPath loads configuration from a YAML file before applying
// environment overrides.
func WithConfigPath(path string) Option {
	return func(o *options) { o.configPath = path }
}

// WithDatabaseURL overrides the resolved store connection string.
func WithDatabaseURL(url string) Option {
	return func(o *options) { o.databaseURL = url }
}

// WithLogger sets a custom zap logger. Default is a no-op logger; embedding
// programs own their logging setup.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Open loads configuration, connects to the store and runs migrations.
func Open(opts ...Option) (*Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	loader := config.NewLoader()
	if o.configPath != "" {
		loader = loader.WithConfigPath(o.configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.databaseURL != "" {
		cfg.Database.URL = o.databaseURL
	}

	logger := o.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := database.Open(cfg.ResolveDatabaseURL(), logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	storeOpts := store.Options{RearmThreshold: cfg.Scanner.StalenessThreshold}
	var pub *notify.Publisher
	if cfg.Redis.Enabled {
		pub, err = notify.NewPublisher(cfg.Redis, logger)
		if err != nil {
			logger.Debug("redis nudge unavailable", zap.Error(err))
		} else {
			storeOpts.Notifier = pub
		}
	}

	st, err := store.New(db, storeOpts, logger)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	return &Client{Store: st, Config: cfg, logger: logger, pub: pub}, nil
}

// Close releases the store connection and the optional notifier.
func (c *Client) Close() error {
	if c.pub != nil {
		_ = c.pub.Close()
	}
	sqlDB, err := c.Store.DB().DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
