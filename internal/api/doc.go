// Package api implements the HTTP surface of the serve command.
//
// New(Deps) returns a Handler that serves:
//
//	GET /metrics               SignalK series of every live source, then the
//	                           exporter's own signalk_exporter_* families
//	GET /api/v1/health         overall state and live/configured counts
//	GET /api/v1/sources        every configured source with its status
//	GET /api/v1/sources/{id}   a single source; 404 if unknown
//	GET /api/v1/certs          certificate status of https sources
//	GET /api/v1/alerts         firing and recently resolved alerts
//	GET /api/v1/snapshot       health and every source in one document
//
// JSON endpoints respond with Content-Type: application/json and return 405
// for non-GET methods. Stale store entries are treated as absent.
package api
