// Package store keeps the most recent parsed SignalK document per source,
// with TTL eviction so a source that stops answering stops being exported.
package store
