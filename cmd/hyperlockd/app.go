package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pkt.systems/hyperlockd"
	"pkt.systems/hyperlockd/internal/svcfields"
	"pkt.systems/pslog"
)

func humanizeBytes(n int64) string {
	return strings.ReplaceAll(humanize.IBytes(uint64(n)), " ", "")
}

func submain(ctx context.Context) int {
	baseLogger := pslog.LoggerFromEnv(
		pslog.WithEnvPrefix("HYPERLOCKD_LOG_"),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeStructured, MinLevel: pslog.InfoLevel}),
		pslog.WithEnvWriter(os.Stderr),
	).With("app", "hyperlockd")

	cmd := newRootCommand(baseLogger)
	ctx = withSignalCancel(ctx)
	if _, err := cmd.ExecuteContextC(ctx); err != nil {
		if err != context.Canceled {
			svcfields.WithSubsystem(baseLogger, "cli.root").Error("command failed", "error", err)
		}
		return 1
	}
	return 0
}

func loadConfigFile() (string, error) {
	cfgPath := strings.TrimSpace(viper.GetString("config"))
	explicit := cfgPath != ""

	if cfgPath == "" {
		if dir, err := hyperlockd.DefaultConfigDir(); err == nil {
			candidate := filepath.Join(dir, hyperlockd.DefaultConfigFileName)
			if _, err := os.Stat(candidate); err == nil {
				cfgPath = candidate
			}
		}
	}
	if cfgPath == "" {
		return "", nil
	}

	expanded, err := expandPath(cfgPath)
	if err != nil {
		return "", fmt.Errorf("expand config path %q: %w", cfgPath, err)
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return "", nil
		}
		return "", fmt.Errorf("config file %q: %w", expanded, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("config file %q is a directory", expanded)
	}

	viper.SetConfigFile(expanded)
	if err := viper.ReadInConfig(); err != nil {
		return "", fmt.Errorf("read config file %q: %w", expanded, err)
	}
	return expanded, nil
}

func expandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if len(p) == 1 {
			p = home
		} else if p[1] == '/' || p[1] == '\\' {
			p = filepath.Join(home, p[2:])
		}
	}
	return filepath.Abs(p)
}

func bindConfig(cfg *hyperlockd.Config) error {
	cfg.BaseDir = viper.GetString("base-dir")
	cfg.Listen = viper.GetString("listen")
	cfg.MetricsListen = viper.GetString("metrics-listen")
	cfg.LeaseInterval = viper.GetDuration("lease-interval")
	cfg.KeepAliveInterval = viper.GetDuration("keepalive-interval")
	cfg.EnableTracing = viper.GetBool("enable-tracing")
	cfg.WatchExternalChanges = viper.GetBool("watch-external-changes")
	cfg.Verbose = viper.GetBool("verbose")
	if maxFrame := viper.GetString("max-frame-bytes"); maxFrame != "" {
		size, err := humanize.ParseBytes(maxFrame)
		if err != nil {
			return fmt.Errorf("parse max-frame-bytes: %w", err)
		}
		cfg.MaxFrameBytes = int64(size)
	}
	return nil
}

func newRootCommand(baseLogger pslog.Logger) *cobra.Command {
	var cfg hyperlockd.Config

	cmd := &cobra.Command{
		Use:           "hyperlockd",
		Short:         "hyperlockd is a single-process coordination service: namespace, sessions, and locks",
		SilenceErrors: true,
		Example: `
  # Run against the default local data directory
  hyperlockd

  # Run with a specific base directory and metrics endpoint
  hyperlockd --base-dir /var/lib/hyperlockd --listen :38550 --metrics-listen :9090
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := baseLogger
			cliLogger := svcfields.WithSubsystem(logger, "cli.root")
			ctx := cmd.Context()
			cmd.SilenceUsage = true

			configFile, err := loadConfigFile()
			if err != nil {
				return err
			}
			if configFile != "" {
				cliLogger.Info("loaded config file", "path", configFile)
			}
			if err := bindConfig(&cfg); err != nil {
				return err
			}

			if cfg.Verbose {
				svcfields.WithSubsystem(logger, "server.lifecycle.init").Info(
					"starting hyperlockd",
					"pid", os.Getpid(),
					"uid", os.Getuid(),
					"gid", os.Getgid(),
				)
			}

			logLevel := strings.TrimSpace(viper.GetString("log-level"))
			if logLevel == "" {
				logLevel = "info"
			}
			if level, ok := pslog.ParseLevel(logLevel); ok {
				logger = logger.LogLevel(level)
				cliLogger = svcfields.WithSubsystem(logger, "cli.root")
			}

			server, err := hyperlockd.NewServer(cfg, hyperlockd.WithLogger(logger))
			if err != nil {
				return err
			}

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					cliLogger.Error("shutdown failed", "error", err)
				}
			}()

			if err := server.Start(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	persistentFlags := cmd.PersistentFlags()
	persistentFlags.StringP("config", "c", "", "path to YAML config file (defaults to $HOME/.hyperlockd/"+hyperlockd.DefaultConfigFileName+")")

	flags := cmd.Flags()
	flags.String("base-dir", hyperlockd.DefaultBaseDir, "filesystem directory backing the namespace store")
	flags.String("listen", hyperlockd.DefaultListen, "wire protocol listen address")
	flags.String("metrics-listen", hyperlockd.DefaultMetricsListen, "metrics listen address (Prometheus scrape endpoint; empty disables)")
	flags.Duration("lease-interval", hyperlockd.DefaultLeaseInterval, "session lease duration")
	flags.Duration("keepalive-interval", hyperlockd.DefaultKeepAliveInterval, "expiry sweeper tick interval")
	flags.Bool("enable-tracing", false, "emit OpenTelemetry spans for dispatched requests")
	flags.String("max-frame-bytes", humanizeBytes(hyperlockd.DefaultMaxFrameBytes), "maximum wire protocol frame payload size")
	flags.Bool("watch-external-changes", false, "log a warning when something other than the coordinator touches the namespace store's backing files")
	flags.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	flags.BoolP("verbose", "v", false, "log the startup banner (lease/keep-alive intervals, base dir, generation)")
	_ = viper.BindPFlags(flags)

	cmd.AddCommand(newVersionCommand())
	return cmd
}

func withSignalCancel(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx
}
