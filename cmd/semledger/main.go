// Package main provides the semledger binary entry point.
// Semledger maintains immutable database versions built from signed
// commit chains: it replays chains into indexed versions, verifies
// chain integrity, and writes index snapshots.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/c360/semledger/config"
	"github.com/c360/semledger/flake"
	"github.com/c360/semledger/ledger"
	"github.com/c360/semledger/metric"
	"github.com/c360/semledger/natsclient"
	"github.com/c360/semledger/shacl"
	"github.com/c360/semledger/storage"
	"github.com/c360/semledger/storage/memstore"
	"github.com/c360/semledger/storage/objectstore"
	"github.com/c360/semledger/vocabulary"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "semledger"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// cliOptions holds the persistent flags shared by all subcommands.
type cliOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func rootCmd() *cobra.Command {
	opts := &cliOptions{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Immutable ledger replay and verification",
		Long: `Semledger replays signed commit chains into immutable, fully
indexed database versions.

Commits carry asserted and retracted statements in expanded JSON-LD;
each merge produces a new version with five sort-order indexes, an
updated vocabulary cache, and optional shape validation. Commit and
snapshot documents live in a content-addressed store, either in memory
or in a NATS JetStream ObjectStore bucket.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"Config file path (YAML); defaults apply when omitted")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "",
		"Log level: debug, info, warn, error (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "",
		"Log format: json, text (overrides config)")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})
	cmd.AddCommand(replayCmd(opts))
	cmd.AddCommand(verifyCmd(opts))
	cmd.AddCommand(snapshotCmd(opts))

	return cmd
}

// loadEnvironment resolves config and logger for a subcommand run.
func loadEnvironment(opts *cliOptions) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Log.Format = opts.logFormat
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	hopts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: logLevel == slog.LevelDebug,
	}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, hopts)
	default:
		handler = slog.NewJSONHandler(os.Stderr, hopts)
	}

	return slog.New(handler).With(
		"service", appName,
		"version", Version,
		"pid", os.Getpid(),
	)
}

// openStore builds the content-addressed store the config names. The
// returned cleanup releases the NATS connection when one was opened.
func openStore(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	metrics *metric.Registry,
) (storage.Store, func(), error) {
	switch cfg.Storage.Mode {
	case config.StorageModeMemory:
		return memstore.New(), func() {}, nil

	case config.StorageModeNATS:
		client, err := natsclient.NewClient(cfg.NATS.URL,
			natsclient.WithName(cfg.NATS.Name),
			natsclient.WithConnectTimeout(cfg.NATS.ConnectTimeout),
			natsclient.WithLogger(logger),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("create NATS client: %w", err)
		}
		if err := client.Connect(ctx); err != nil {
			return nil, nil, fmt.Errorf("connect to NATS: %w", err)
		}
		cleanup := func() { _ = client.Close(context.Background()) }

		store, err := objectstore.New(ctx, client.Conn(), cfg.Storage.ObjectStore,
			objectstore.WithLogger(logger),
			objectstore.WithMetrics(metrics.PrometheusRegistry()),
		)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("open object store: %w", err)
		}
		return store, cleanup, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage mode %q", cfg.Storage.Mode)
	}
}

// newMerger wires a Merger from config: prefetch workers, multi-source
// merge tolerance, and the shape validation hook when enabled.
func newMerger(
	cfg *config.Config,
	store storage.Store,
	logger *slog.Logger,
	metrics *metric.Registry,
) *ledger.Merger {
	opts := []ledger.MergerOption{
		ledger.WithLogger(logger),
		ledger.WithMetrics(metrics),
	}
	if cfg.Ledger.PrefetchWorkers > 0 {
		opts = append(opts, ledger.WithPrefetchWorkers(cfg.Ledger.PrefetchWorkers))
	}
	if cfg.Ledger.MultiDBMerge {
		opts = append(opts, ledger.WithMultiDBMerge())
	}
	if cfg.Ledger.Validate {
		validator := shacl.NewValidator(
			shacl.WithLogger(logger),
			shacl.WithMetrics(metrics),
		)
		opts = append(opts, ledger.WithValidation(shapeHook(validator)))
	}
	return ledger.NewMerger(store, opts...)
}

func shapeHook(v *shacl.Validator) ledger.ValidateFunc {
	return func(ctx context.Context, db *ledger.DB, schema *vocabulary.Schema, batch []flake.Flake) error {
		return v.ValidateBatch(ctx, db, schema, batch)
	}
}
