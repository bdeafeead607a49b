package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/coterm/config"
)

// Open connects to the store selected by the resolved connection string.
// postgres:// URLs use the postgres driver; anything else is a sqlite file
// path (the directory is created if missing). The gorm logger is silenced:
// store errors surface through the coordination layer's own zap logging.
func Open(url string, logger *zap.Logger) (*gorm.DB, error) {
	if url == "" {
		return nil, fmt.Errorf("database url is empty")
	}

	var dialector gorm.Dialector
	if config.IsPostgresURL(url) {
		dialector = postgres.Open(url)
	} else {
		if err := os.MkdirAll(filepath.Dir(url), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
		dialector = sqlite.Open(url)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	logger.Info("database connected",
		zap.Bool("postgres", config.IsPostgresURL(url)),
	)
	return db, nil
}
