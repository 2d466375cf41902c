// Package pkg provides shared utilities for the lshost packages.
//
// This package contains:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel errors for bus misuse and trace decoding
//   - Component identifiers for log filtering
//
// # Logging
//
// Nothing is logged from inside a timing-critical schedule. Packages log
// between phases only:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentHost, "device configured", "address", 1)
//
// # Errors
//
//	if errors.Is(err, pkg.ErrBusReleased) {
//	    // schedule drove the lines while the device owned them
//	}
package pkg
