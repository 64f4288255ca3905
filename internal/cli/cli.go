// ============================================================================
// Job Scheduler CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: User-facing command line interface based on the Cobra framework
//
// Command structure:
//   jobsched                       # Root command
//   ├── run                        # Start a scheduler and block until signal
//   │   └── --config, -c          # Specify config file
//   ├── demo                       # Run the built-in demonstration scenarios
//   ├── status                     # Show the effective configuration
//   ├── --version                  # Display version information
//   └── --help                     # Display help information
//
// Configuration:
//   YAML config file (default: configs/default.yaml) with pool size,
//   default job timeout, and metrics server settings.
//
// run Command:
//   1. Load config
//   2. Build a Scheduler with the configured pool size
//   3. Start the metrics HTTP server, if enabled
//   4. Run the scheduler (no jobs are scheduled on it)
//   5. Block on SIGINT/SIGTERM, then Stop the scheduler
// ============================================================================

package cli

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ChuLiYu/jobsched/internal/metrics"
	"github.com/ChuLiYu/jobsched/internal/scenarios"
	"github.com/ChuLiYu/jobsched/internal/scheduler"
)

var log = slog.Default()

// Config is the complete CLI configuration, loaded from YAML.
type Config struct {
	Scheduler struct {
		PoolSize          int           `yaml:"pool_size"`
		DefaultJobTimeout time.Duration `yaml:"default_job_timeout"`
	} `yaml:"scheduler"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`
}

var configFile string

// BuildCLI assembles the root command and its subcommands.
func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "jobsched",
		Short: "jobsched: an in-process job scheduler",
		Long: `jobsched runs a bounded pool of opaque jobs with per-job retry,
timeout, deferred start, and dependency ordering.`,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/default.yaml", "config file path")

	rootCmd.AddCommand(buildRunCommand())
	rootCmd.AddCommand(buildDemoCommand())
	rootCmd.AddCommand(buildStatusCommand())

	return rootCmd
}

func buildRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start an empty scheduler and block until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScheduler()
		},
	}
}

func runScheduler() error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log.Info("starting scheduler", "pool_size", cfg.Scheduler.PoolSize)

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector()
		go func() {
			if err := metrics.StartServer(cfg.Metrics.Port); err != nil {
				log.Error("metrics server stopped", "error", err)
			}
		}()
		log.Info("metrics server listening", "port", cfg.Metrics.Port)
	}

	s := scheduler.New(cfg.Scheduler.PoolSize, collector)
	s.Run()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, stopping scheduler")
	s.Stop()
	return nil
}

func buildDemoCommand() *cobra.Command {
	var which string

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a built-in demonstration scenario",
		Long:  "Run one of: naked (jobs run without a scheduler), scheduler (dependency graph + cascade).",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(which)
		},
	}

	cmd.Flags().StringVar(&which, "scenario", "naked", "scenario to run: naked or scheduler")
	return cmd
}

func runDemo(which string) error {
	switch which {
	case "naked":
		scenarios.NakedJobs()
	case "scheduler":
		scenarios.SchedulerDemo()
	default:
		return fmt.Errorf("unknown scenario %q, expected naked or scheduler", which)
	}
	return nil
}

func buildStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus()
		},
	}
}

func showStatus() error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Printf("config file:         %s\n", configFile)
	fmt.Printf("pool size:           %d\n", cfg.Scheduler.PoolSize)
	fmt.Printf("default job timeout: %s\n", cfg.Scheduler.DefaultJobTimeout)
	if cfg.Metrics.Enabled {
		fmt.Printf("metrics:             enabled on :%d/metrics\n", cfg.Metrics.Port)
	} else {
		fmt.Println("metrics:             disabled")
	}
	return nil
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	if cfg.Scheduler.PoolSize <= 0 {
		cfg.Scheduler.PoolSize = 10
	}

	return &cfg, nil
}
