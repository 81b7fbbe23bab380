// Package telemetry holds the exporter's own Prometheus metrics.
//
// Recorder registers the signalk_exporter_* families on a private registry so
// they never collide with the SignalK series rendered by the engine: poll
// outcomes and durations, lines per source, certificate days left, plus the
// stored document and stream client gauges read on every scrape. Encode
// writes the gathered families in the text exposition format, ready to be
// appended to a /metrics body.
package telemetry
