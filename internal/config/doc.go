// Package config loads and watches the exporter configuration file.
//
// Top-level types:
//   - Config{Exporter, Sources, Alerts}: the full tree parsed from YAML
//   - ExporterConfig: listen, scrape_interval, snapshot_ttl, stream_interval,
//     comments, vessel_labels, labels, auth
//   - Source: id, url, timeout, retries, labels, auth, tls
//   - AuthConfig: mode (mtls|apikey|bearer|basic|none) plus the credential
//     fields for each mode; Key(), Token() and Password() resolve secrets
//     from environment variables so they never live in the file
//   - AlertsConfig: threshold rules on exported metrics plus webhook targets;
//     ParseCondition turns "<metric> <op> <number>" into a Condition
//
// Load(path) expands ${VAR} references, parses the YAML, applies defaults
// (15s scrape, 2m snapshot TTL, 5s fetch timeout, comments and vessel labels
// on) and validates required fields, enums and label names. ForURL builds
// the same structure for a single endpoint given on the command line.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config. It re-adds the watch after every
// event to survive the rename→create pattern of atomic-save editors.
package config
