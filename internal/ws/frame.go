package ws

import (
	"time"

	"github.com/obsidianstack/signalk-exporter/internal/derived"
	"github.com/obsidianstack/signalk-exporter/internal/engine"
	"github.com/obsidianstack/signalk-exporter/internal/store"
)

// Autopilot states reported in Frame.Autopilot.
const (
	AutopilotEngaged = "engaged"
	AutopilotStandby = "standby"
)

// readingKeys maps derived metric names to their short Frame.Readings key.
var readingKeys = map[string]string{
	derived.AutopilotTargetHeading:    "target_heading_deg",
	derived.LogDistance:               "log_m",
	derived.WaterTemperature:          "water_temp_c",
	derived.NextPointDistance:         "next_point_distance_m",
	derived.NextPointBearingTrue:      "next_point_bearing_rad",
	derived.NextPointVelocityMadeGood: "next_point_vmg_kn",
	derived.NextPointTimeToGo:         "next_point_ttg_s",
	derived.NextPointLatitude:         "next_point_lat",
	derived.NextPointLongitude:        "next_point_lon",
}

// Frame is the live state of one vessel as pushed to stream clients.
type Frame struct {
	Source    string             `json:"source"`
	Vessel    string             `json:"vessel,omitempty"`
	MMSI      string             `json:"mmsi,omitempty"`
	Metrics   int                `json:"metrics"`
	UpdatedAt time.Time          `json:"updated_at"`
	Autopilot string             `json:"autopilot,omitempty"`
	Readings  map[string]float64 `json:"readings,omitempty"`
}

// StoreFeed builds frames from the documents held in a store.
type StoreFeed struct {
	store   *store.Store
	sources []string
	options engine.OptionsFunc
}

// NewFeed returns a StoreFeed over the configured source ids.
func NewFeed(st *store.Store, sources []string, options engine.OptionsFunc) *StoreFeed {
	return &StoreFeed{store: st, sources: sources, options: options}
}

// Frames returns one frame per live source, in config order. Missing and
// stale documents are left out.
func (f *StoreFeed) Frames() []Frame {
	out := make([]Frame, 0, len(f.sources))
	for _, id := range f.sources {
		e, ok := f.store.Get(id)
		if !ok || f.store.Stale(e) {
			continue
		}
		out = append(out, f.frame(e))
	}
	return out
}

func (f *StoreFeed) frame(e *store.Entry) Frame {
	ms := engine.Convert(e.Doc, f.options(e.SourceID))
	fr := Frame{
		Source:    e.SourceID,
		Metrics:   len(ms),
		UpdatedAt: e.UpdatedAt.UTC(),
	}
	vessel := engine.VesselLabels(e.Doc)
	fr.Vessel, _ = vessel.Get("name")
	fr.MMSI, _ = vessel.Get("mmsi")

	for _, m := range ms {
		if m.Name == derived.AutopilotState {
			fr.Autopilot = AutopilotStandby
			if m.Value != 0 {
				fr.Autopilot = AutopilotEngaged
			}
			continue
		}
		key, ok := readingKeys[m.Name]
		if !ok {
			continue
		}
		if fr.Readings == nil {
			fr.Readings = make(map[string]float64)
		}
		fr.Readings[key] = m.Value
	}
	return fr
}
