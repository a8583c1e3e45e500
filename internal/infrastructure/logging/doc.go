// Package logging provides structured logging for the fixture sequencer.
//
// It wraps log/slog so every package logs with the same default fields
// (service, version) and the same level handling.
//
// Configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("detecting DUTs", "boards", 5)
//	logger.Success("DALI test passed", "slot", slot)
package logging
