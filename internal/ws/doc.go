// Package ws streams live vessel state over WebSocket at /ws/stream.
//
// StoreFeed turns each live source's latest document into a Frame: vessel
// name and MMSI, the number of series it exports, autopilot state, and the
// derived log, water temperature and next-point readings. Hub polls the
// feed every exporter.stream_interval and sends only what changed:
//
//	{"event": "vessel", "source": "self", "frame": {...}}
//	{"event": "lost",   "source": "self"}
//
// A client connecting with ?source=<id> receives that source only. On
// connect it is sent the latest frame of every source it follows.
package ws
