package main

import (
	"flag"
	"fmt"
	"net/url"
	"os"

	"github.com/calificaprofe/calificaprofe-api/config"
	"github.com/calificaprofe/calificaprofe-api/pkg/db"
	"github.com/calificaprofe/calificaprofe-api/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	direction := flag.String("direction", string(db.Up), "migration direction: up or down")
	path := flag.String("path", "file://migrations", "migration source URL")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	err = logger.Initialize(logger.Config{
		Level:       cfg.Logging.Level,
		LogDir:      cfg.Logging.Dir,
		Environment: cfg.Server.AppEnv,
		ServiceName: "calificaprofe-migrate",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.Database.URL == "" {
		logger.Fatal("DATABASE_URL is required to run migrations")
	}

	logger.Info("Starting database migrations",
		zap.String("database", maskDatabaseURL(cfg.Database.URL)),
		zap.String("direction", *direction))

	if err := db.RunMigrations(cfg.Database, *path, db.Direction(*direction)); err != nil {
		logger.Error("Failed to run migrations", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("Database migrations completed successfully")
}

// maskDatabaseURL hides the password in a database URL for logging
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	return u.Redacted()
}
