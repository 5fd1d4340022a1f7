package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	service "github.com/okian/leadrouter/internal/app"
	"github.com/okian/leadrouter/internal/config"
	"github.com/okian/leadrouter/pkg/logger"
)

const configEnvVar = "LEADROUTER_CONFIG"

// rootOptions holds the flags shared by every subcommand.
type rootOptions struct {
	configPath string
	dbPath     string
	logLevel   string
	logFormat  string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Stderr.WriteString("leadrouter: " + err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "leadrouter",
		Short:         "Lead assignment and escalation engine",
		Long:          `leadrouter assigns real-estate leads to brokers through an escalation cascade and expires unanswered assignments.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "YAML config file (overrides "+configEnvVar+")")
	flags.StringVar(&opts.dbPath, "db", "", "SQLite database path (overrides db_path)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&opts.logFormat, "log-format", "", "log format: text or json")

	root.AddCommand(
		newServeCmd(opts),
		newSweepCmd(opts),
		newRouteCmd(opts),
		newSeedCmd(opts),
	)
	return root
}

// bootstrap loads configuration, applies flag overrides and initializes logging.
func bootstrap(ctx context.Context, opts *rootOptions) (*config.Config, logger.Logger, error) {
	if opts.configPath != "" {
		if err := os.Setenv(configEnvVar, opts.configPath); err != nil {
			return nil, nil, fmt.Errorf("set config path: %w", err)
		}
	}
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	if opts.dbPath != "" {
		cfg.DBPath = opts.dbPath
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.LogFormat = opts.logFormat
	}

	if err := logger.Init(logger.WithFormat(logger.Format(cfg.LogFormat)), logger.WithOutput(os.Stderr)); err != nil {
		return nil, nil, fmt.Errorf("initialize logging: %w", err)
	}
	log := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return cfg, log, nil
}

// serviceOptions maps configuration onto service options.
func serviceOptions(cfg *config.Config, log logger.Logger, sweeper bool) []service.Option {
	opts := []service.Option{
		service.WithLogger(log.Named("service")),
		service.WithDBPath(cfg.DBPath),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithNotifications(cfg.NotifyQueueSize, cfg.NotifyWorkers),
		service.WithSweepLimits(cfg.SweepBatchSize, cfg.SweepConcurrency),
		service.WithParamsCacheTTL(cfg.ParamsCacheTTL()),
		service.WithBaseURL(cfg.AppBaseURL),
	}
	if sweeper {
		opts = append(opts, service.WithSweeper(cfg.SweepInterval()))
	}
	return opts
}

// withService starts a service for the duration of fn and stops it afterwards.
func withService(ctx context.Context, opts *rootOptions, fn func(*service.Service) error) (err error) {
	cfg, log, err := bootstrap(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	svc := service.New(serviceOptions(cfg, log, false)...)
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopErr := svc.Stop(context.WithoutCancel(ctx))
		err = errors.Join(err, stopErr)
	}()
	return fn(svc)
}
