package api

// HealthResponse is the JSON body for GET /api/v1/health.
type HealthResponse struct {
	State       string `json:"state"` // healthy | degraded | unknown
	SourceCount int    `json:"source_count"`
	LiveCount   int    `json:"live_count"`
}

// SourceResponse is the JSON representation of one configured source.
type SourceResponse struct {
	ID          string `json:"id"`
	Live        bool   `json:"live"`
	MetricCount int    `json:"metric_count"`
	Vessel      string `json:"vessel,omitempty"`
	MMSI        string `json:"mmsi,omitempty"`
	LastSeen    string `json:"last_seen,omitempty"` // RFC3339
	Cert        string `json:"cert,omitempty"`      // https sources only
}

// SnapshotResponse is the JSON body for GET /api/v1/snapshot.
type SnapshotResponse struct {
	Health      HealthResponse   `json:"health"`
	Sources     []SourceResponse `json:"sources"`
	GeneratedAt string           `json:"generated_at"` // RFC3339
}

type errorResponse struct {
	Error string `json:"error"`
}
