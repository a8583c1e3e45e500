// Fixture Sequencer - production-line test station
//
// This is the main entry point of the fixture sequencer. It drives a test
// fixture of N boards with M DUT slots each through detection, firmware
// download, functional checks and completion, and records one verdict per
// DUT.
//
// Commands:
//
//	sequencer serve            operator API, WebSocket and MQTT commands
//	sequencer run <op>...      run operations once and print the slots
//	sequencer ops              list the operations
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on Ctrl+C and SIGTERM so a running stage powers the bank off
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// getConfigPath returns the configuration file path.
// The --config flag wins, then FIXTURE_CONFIG, then the default.
func getConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if path := os.Getenv("FIXTURE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
