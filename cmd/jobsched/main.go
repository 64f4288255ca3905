// ============================================================================
// jobsched - Main Entry Point
// ============================================================================
//
// File: cmd/jobsched/main.go
// Purpose: Application entry point and CLI initialization
//
// Responsibilities:
//   1. Version management - inject build info via ldflags
//   2. Panic recovery - catch unexpected panics gracefully
//   3. CLI setup - build and configure the Cobra command tree
//
// Version injection:
//   go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
//
// Usage:
//   ./jobsched --help
//   ./jobsched run
//   ./jobsched demo --scenario scheduler
//   ./jobsched status
// ============================================================================

package main

import (
	"fmt"
	"os"

	"github.com/ChuLiYu/jobsched/internal/cli"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "fatal error: %v\n", r)
			os.Exit(1)
		}
	}()

	rootCmd := cli.BuildCLI()
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
