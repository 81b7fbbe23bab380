// Package derived computes the fixed set of enrichment gauges that are read
// from well-known SignalK paths and converted to human units.
//
// Every extractor is independent: a missing path or a value of the wrong
// type skips that one metric and nothing else.
package derived

import (
	"math"

	"github.com/obsidianstack/signalk-exporter/internal/exposition"
	"github.com/obsidianstack/signalk-exporter/internal/normalize"
	"github.com/obsidianstack/signalk-exporter/internal/signalk"
)

// Metric names produced by Extract.
const (
	AutopilotState            = "signalk_steering_autopilot_state"
	AutopilotTargetHeading    = "signalk_steering_autopilot_target_heading_degrees"
	LogDistance               = "signalk_navigation_log_meters"
	WaterTemperature          = "signalk_environment_water_temperature_celsius"
	NextPointDistance         = "signalk_navigation_next_point_distance_meters"
	NextPointBearingTrue      = "signalk_navigation_next_point_bearing_true_radians"
	NextPointVelocityMadeGood = "signalk_navigation_next_point_velocity_made_good_knots"
	NextPointTimeToGo         = "signalk_navigation_next_point_time_to_go_seconds"
	NextPointLongitude        = "signalk_navigation_next_point_longitude_degrees"
	NextPointLatitude         = "signalk_navigation_next_point_latitude_degrees"
)

const (
	autopilotStandby = "standby"
	kelvinOffset     = 273.15
)

// nextPoint returns the path of a field under the active route's next point.
func nextPoint(keys ...string) []string {
	return append([]string{"navigation", "courseGreatCircle", "nextPoint"}, keys...)
}

type extractor func(doc *signalk.Node, base exposition.Labels) []exposition.Metric

// extractors run in this order.
var extractors = []extractor{
	autopilotState,
	autopilotTargetHeading,
	logDistance,
	waterTemperature,
	nextPointDistance,
	nextPointBearing,
	nextPointVMG,
	nextPointTimeToGo,
	nextPointPosition,
}

// Extract runs every extractor against doc and returns the metrics that
// could be computed.
func Extract(doc *signalk.Node, base exposition.Labels) []exposition.Metric {
	var out []exposition.Metric
	for _, e := range extractors {
		out = append(out, e(doc, base)...)
	}
	return out
}

func autopilotState(doc *signalk.Node, base exposition.Labels) []exposition.Metric {
	n, ok := doc.Lookup("steering", "autopilot", "state", signalk.KeyValue)
	if !ok {
		return nil
	}
	state, ok := n.String()
	if !ok {
		return nil
	}
	v := 1.0
	if state == autopilotStandby {
		v = 0
	}
	return one(AutopilotState, v, base)
}

func autopilotTargetHeading(doc *signalk.Node, base exposition.Labels) []exposition.Metric {
	leaf, v, ok := number(doc, "steering", "autopilot", "target", "headingMagnetic")
	if !ok {
		return nil
	}
	return one(AutopilotTargetHeading, round2(v*180/math.Pi), normalize.Labels(base, leaf))
}

func logDistance(doc *signalk.Node, base exposition.Labels) []exposition.Metric {
	leaf, v, ok := number(doc, "navigation", "log")
	if !ok {
		return nil
	}
	return one(LogDistance, v, normalize.Labels(base, leaf))
}

func waterTemperature(doc *signalk.Node, base exposition.Labels) []exposition.Metric {
	leaf, v, ok := number(doc, "environment", "water", "temperature")
	if !ok {
		return nil
	}
	return one(WaterTemperature, round2(v-kelvinOffset), normalize.Labels(base, leaf))
}

func nextPointDistance(doc *signalk.Node, base exposition.Labels) []exposition.Metric {
	leaf, v, ok := number(doc, nextPoint("distance")...)
	if !ok {
		return nil
	}
	return one(NextPointDistance, v, normalize.Labels(base, leaf))
}

func nextPointBearing(doc *signalk.Node, base exposition.Labels) []exposition.Metric {
	leaf, v, ok := number(doc, nextPoint("bearingTrue")...)
	if !ok {
		return nil
	}
	return one(NextPointBearingTrue, v, normalize.Labels(base, leaf))
}

func nextPointVMG(doc *signalk.Node, base exposition.Labels) []exposition.Metric {
	leaf, v, ok := number(doc, nextPoint("velocityMadeGood")...)
	if !ok {
		return nil
	}
	return one(NextPointVelocityMadeGood, round2(v*exposition.MetersPerSecondToKnots), normalize.Labels(base, leaf))
}

func nextPointTimeToGo(doc *signalk.Node, base exposition.Labels) []exposition.Metric {
	leaf, v, ok := number(doc, nextPoint("timeToGo")...)
	if !ok {
		return nil
	}
	return one(NextPointTimeToGo, v, normalize.Labels(base, leaf))
}

// nextPointPosition emits longitude and latitude independently; both share
// the position leaf's labels.
func nextPointPosition(doc *signalk.Node, base exposition.Labels) []exposition.Metric {
	leaf, ok := doc.Lookup(nextPoint("position")...)
	if !ok {
		return nil
	}
	pos, ok := leaf.Child(signalk.KeyValue)
	if !ok {
		return nil
	}
	labels := normalize.Labels(base, leaf)

	var out []exposition.Metric
	if lon, ok := scalar(pos, "longitude"); ok {
		out = append(out, exposition.Metric{Name: NextPointLongitude, Value: lon, Labels: labels})
	}
	if lat, ok := scalar(pos, "latitude"); ok {
		out = append(out, exposition.Metric{Name: NextPointLatitude, Value: lat, Labels: labels})
	}
	return out
}

// number resolves keys to a leaf and returns it with its numeric "value".
func number(doc *signalk.Node, keys ...string) (*signalk.Node, float64, bool) {
	leaf, ok := doc.Lookup(keys...)
	if !ok {
		return nil, 0, false
	}
	v, ok := scalar(leaf, signalk.KeyValue)
	if !ok {
		return nil, 0, false
	}
	return leaf, v, true
}

func scalar(n *signalk.Node, key string) (float64, bool) {
	c, ok := n.Child(key)
	if !ok || c.Kind != signalk.KindNumber {
		return 0, false
	}
	return c.Value, true
}

func one(name string, v float64, labels exposition.Labels) []exposition.Metric {
	return []exposition.Metric{{Name: name, Value: v, Labels: labels}}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
