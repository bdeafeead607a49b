package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/coterm/config"
	"github.com/BaSui01/coterm/extract"
	"github.com/BaSui01/coterm/internal/database"
	"github.com/BaSui01/coterm/internal/metrics"
	"github.com/BaSui01/coterm/scanner"
	"github.com/BaSui01/coterm/store"
)

// =============================================================================
// 🖥️ run 命令
// =============================================================================

func runDaemon(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	_ = fs.Parse(args)

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}
	if len(cfg.Scanner.ExtractCommand) == 0 {
		fmt.Fprintf(os.Stderr, "Invalid config: scanner.extract_command is required\n")
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("Starting cotermd",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	// One scanner per machine. A second instance must refuse to start, not
	// double-spawn extractions.
	lock, err := scanner.AcquireLock(cfg.ResolveStateDir())
	if err != nil {
		logger.Fatal("Scanner singleton check failed", zap.Error(err))
	}
	defer lock.Release()

	db, err := database.Open(cfg.ResolveDatabaseURL(), logger)
	if err != nil {
		logger.Fatal("Failed to open store", zap.Error(err))
	}

	poolCfg := database.DefaultPoolConfig()
	poolCfg.MaxOpenConns = cfg.Database.MaxOpenConns
	poolCfg.MaxIdleConns = cfg.Database.MaxIdleConns
	poolCfg.ConnMaxLifetime = cfg.Database.ConnMaxLifetime
	pool, err := database.NewPoolManager(db, poolCfg, logger)
	if err != nil {
		logger.Fatal("Failed to configure pool", zap.Error(err))
	}
	defer pool.Close()

	st, err := store.New(db, store.Options{RearmThreshold: cfg.Scanner.StalenessThreshold}, logger)
	if err != nil {
		logger.Fatal("Failed to init store", zap.Error(err))
	}

	runner, err := extract.NewProcessRunner(cfg.Scanner.ExtractCommand, logger)
	if err != nil {
		logger.Fatal("Failed to build extraction runner", zap.Error(err))
	}

	collector := metrics.NewCollector("coterm", logger)

	sched := scanner.NewScheduler(st, runner, scanner.Config{
		StalenessThreshold: cfg.Scanner.StalenessThreshold,
		MaxConcurrent:      cfg.Scanner.MaxConcurrent,
		ExtractionTimeout:  cfg.Scanner.ExtractionTimeout,
		StoreTimeout:       cfg.Scanner.OpTimeout,
	}, collector, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sched.Run(gctx, cfg.Scanner.PollInterval)
		return nil
	})

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: buildMux(pool),
	}
	g.Go(func() error {
		logger.Info("Metrics server started", zap.Int("port", cfg.Server.MetricsPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Daemon exited with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("cotermd stopped")
}

// buildMux wires the daemon's HTTP surface: prometheus metrics plus a health
// endpoint backed by a live store ping.
func buildMux(pool *database.PoolManager) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, `{"status":"unhealthy","error":%q}`, err.Error())
			return
		}
		fmt.Fprint(w, `{"status":"healthy"}`)
	})
	return mux
}
