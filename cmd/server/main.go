// Command server runs the product catalog.
//
//	server serve            start the HTTP server (the default)
//	server migrate          apply pending schema migrations and exit
//	server prune-sessions   delete expired sessions and exit
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sakif/product-catalog/internal/config"
)

var (
	envFile string
	dbPath  string
)

var rootCmd = &cobra.Command{
	Use:           "server",
	Short:         "Product catalog web application",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional dotenv file read before the environment")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides DB_PATH)")
	rootCmd.Flags().IntVar(&port, "port", 0, "listen port (overrides PORT)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(pruneSessionsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap loads and validates configuration, applies flag overrides and
// builds the logger. The database directory is created if missing.
func bootstrap() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if port != 0 {
		cfg.Port = port
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, fmt.Errorf("invalid configuration:\n%w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return config.Config{}, nil, err
	}

	if cfg.SessionSecret == "" {
		secret, err := config.RandomSecret()
		if err != nil {
			return config.Config{}, nil, err
		}
		cfg.SessionSecret = secret
		logger.Warn("SESSION_SECRET not set; using a random secret, sessions will not survive a restart")
	}

	if cfg.DBPath != ":memory:" {
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return config.Config{}, nil, fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}

	return cfg, logger, nil
}

func newLogger(cfg config.Config) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts)), nil
}
