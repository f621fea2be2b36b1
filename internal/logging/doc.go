// Package logging provides structured logging for the probe tools.
//
// This package wraps zap logger with convenience functions for common logging
// patterns used by both the advertise and scan roles. It provides general
// logging functions plus specialized helpers for radio traffic.
//
// # Log Levels
//
// The package supports standard log levels:
//   - Debug: Detailed debugging info (hex dumps, per-tick broadcasts)
//   - Info: Normal operations (session start/stop, correlated frames)
//   - Warn: Non-fatal issues (failed radio stop requests)
//   - Error: Fatal issues (startup failures, aborted sessions)
//
// # Structured Logging
//
// All log functions use structured fields for queryability:
//
//	logging.Info("Scan cycle started",
//	    zap.Int("cycle", 3),
//	    zap.String("target", "tx01"),
//	)
//
// # Specialized Logging
//
// Radio traffic helpers:
//
//	logging.LogAdvertisement(addr, name, rssi, rawFrame)
//	logging.LogRawFrame("synthesized frame", rawFrame)
//
// # Configuration
//
// Logging is silent by default so command output stays clean. Set
// BLEPROBE_LOG_LEVEL (or pass a level) to enable:
//
//	if err := logging.InitializeFromEnv(); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// # Thread Safety
//
// All logging functions are safe for concurrent use. The underlying zap
// logger handles synchronization automatically.
package logging
