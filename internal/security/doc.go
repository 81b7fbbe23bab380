// Package security checks the TLS certificate of every https source.
//
// Check dials one source and describes its leaf certificate. Monitor runs
// Check for all sources on a fixed interval, keeps the latest Status per
// source for the HTTP API and reports days-to-expiry through telemetry.
// Plain-http sources have nothing to inspect and are skipped.
package security
