// Package logging provides structured logging for the ssdpd daemon.
//
// This package wraps a global zap logger with convenience functions for the
// logging patterns used throughout the responder. It provides general logging
// functions and a few SSDP-specific helpers for datagram tracing.
//
// # Log Levels
//
// The package supports standard log levels:
//   - Debug: Datagram dumps, dispatch decisions, dropped requests
//   - Info: Startup, registrations, announcements
//   - Warn: Non-fatal issues (send failures, malformed searches)
//   - Error: Startup failures and unexpected errors
//
// # Structured Logging
//
// All log functions use structured fields:
//
//	logging.Info("Registered service",
//	    zap.String("usn", rec.USN),
//	    zap.String("st", rec.ServiceType),
//	)
//
// # Datagram Logging
//
//	logging.LogDatagram("received", from.String(), payload)
//	logging.LogDatagram("sent", dest.String(), payload)
//
// # Configuration
//
// Initialize logging at startup. An empty level falls back to the
// SSDPD_LOG_LEVEL environment variable; if that is unset too, logging is
// silent:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// # Thread Safety
//
// All logging functions are safe for concurrent use. SetLogger is intended for
// tests and should be called before the code under test starts logging.
package logging
