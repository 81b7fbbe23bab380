package derived

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsidianstack/signalk-exporter/internal/exposition"
	"github.com/obsidianstack/signalk-exporter/internal/signalk"
)

const routeDoc = `{
  "steering": {"autopilot": {
    "state": {"value": "auto", "$source": "pypilot"},
    "target": {"headingMagnetic": {"value": 1.0, "meta": {"units": "rad"}, "$source": "n2k.204", "pgn": 65360}}
  }},
  "navigation": {
    "log": {"value": 1234.5, "$source": "n2k.35", "pgn": 128275},
    "courseGreatCircle": {"nextPoint": {
      "distance": {"value": 1852, "$source": "n2k.3"},
      "bearingTrue": {"value": 0.52, "$source": "n2k.3", "pgn": 129284},
      "velocityMadeGood": {"value": 2.5, "$source": "n2k.3"},
      "timeToGo": {"value": 740},
      "position": {"value": {"longitude": 23.5, "latitude": 60.1}, "$source": "n2k.3", "pgn": 129284}
    }}
  },
  "environment": {"water": {"temperature": {"value": 300.0, "$source": "n2k.35", "pgn": 130312}}}
}`

func extract(t *testing.T, js string) []exposition.Metric {
	t.Helper()
	doc, err := signalk.Parse([]byte(js))
	require.NoError(t, err)
	return Extract(doc, nil)
}

func byName(ms []exposition.Metric) map[string]exposition.Metric {
	out := make(map[string]exposition.Metric, len(ms))
	for _, m := range ms {
		out[m.Name] = m
	}
	return out
}

func TestExtract_FullRoute(t *testing.T) {
	ms := extract(t, routeDoc)

	var got []string
	for _, m := range ms {
		got = append(got, m.Name)
	}
	assert.Equal(t, []string{
		AutopilotState,
		AutopilotTargetHeading,
		LogDistance,
		WaterTemperature,
		NextPointDistance,
		NextPointBearingTrue,
		NextPointVelocityMadeGood,
		NextPointTimeToGo,
		NextPointLongitude,
		NextPointLatitude,
	}, got)

	m := byName(ms)
	assert.Equal(t, 1.0, m[AutopilotState].Value)
	assert.Empty(t, m[AutopilotState].Labels)
	assert.Equal(t, 57.3, m[AutopilotTargetHeading].Value)
	assert.Equal(t, exposition.Labels{{Name: "source", Value: "n2k.204"}, {Name: "pgn", Value: "65360"}}, m[AutopilotTargetHeading].Labels)
	assert.Equal(t, 1234.5, m[LogDistance].Value)
	assert.Equal(t, 26.85, m[WaterTemperature].Value)
	assert.Equal(t, 1852.0, m[NextPointDistance].Value)
	assert.Equal(t, 0.52, m[NextPointBearingTrue].Value)
	assert.Equal(t, exposition.Labels{{Name: "source", Value: "n2k.3"}, {Name: "pgn", Value: "129284"}}, m[NextPointBearingTrue].Labels)
	assert.Equal(t, 4.86, m[NextPointVelocityMadeGood].Value)
	assert.Equal(t, 740.0, m[NextPointTimeToGo].Value)
	assert.Empty(t, m[NextPointTimeToGo].Labels)
	assert.Equal(t, 23.5, m[NextPointLongitude].Value)
	assert.Equal(t, 60.1, m[NextPointLatitude].Value)
	assert.Equal(t, m[NextPointLongitude].Labels, m[NextPointLatitude].Labels)
}

func TestExtract_LogOnly(t *testing.T) {
	ms := extract(t, `{"navigation": {"log": {"value": 1234.5}}}`)
	require.Len(t, ms, 1)
	assert.Equal(t, "signalk_navigation_log_meters 1234.5", string(ms[0].AppendText(nil, false)))
}

func TestExtract_AutopilotState(t *testing.T) {
	tests := []struct {
		state string
		want  float64
	}{
		{"standby", 0},
		{"auto", 1},
		{"wind", 1},
		{"route", 1},
		{"Standby", 1},
		{"", 1},
	}
	for _, tc := range tests {
		t.Run(tc.state, func(t *testing.T) {
			ms := extract(t, `{"steering": {"autopilot": {"state": {"value": "`+tc.state+`"}}}}`)
			require.Len(t, ms, 1)
			assert.Equal(t, AutopilotState, ms[0].Name)
			assert.Equal(t, tc.want, ms[0].Value)
		})
	}
}

func TestExtract_AutopilotStateWrongType(t *testing.T) {
	assert.Empty(t, extract(t, `{"steering": {"autopilot": {"state": {"value": 3}}}}`))
	assert.Empty(t, extract(t, `{"steering": {"autopilot": {"state": {"value": null}}}}`))
}

func TestExtract_WaterTemperature(t *testing.T) {
	ms := extract(t, `{"environment": {"water": {"temperature": {"value": 300.0}}}}`)
	require.Len(t, ms, 1)
	assert.Equal(t, WaterTemperature, ms[0].Name)
	assert.Equal(t, "26.85", exposition.FormatValue(ms[0].Value))
}

func TestExtract_PartialPosition(t *testing.T) {
	ms := extract(t, `{"navigation": {"courseGreatCircle": {"nextPoint": {"position": {"value": {"longitude": null, "latitude": 60.1}}}}}}`)
	require.Len(t, ms, 1)
	assert.Equal(t, NextPointLatitude, ms[0].Name)

	assert.Empty(t, extract(t, `{"navigation": {"courseGreatCircle": {"nextPoint": {"position": {"value": null}}}}}`))
	assert.Empty(t, extract(t, `{"navigation": {"courseGreatCircle": {"nextPoint": {"position": {}}}}}`))
}

func TestExtract_FailuresAreIsolated(t *testing.T) {
	doc := `{
	  "steering": {"autopilot": {"state": "standby", "target": {"headingMagnetic": {"value": "north"}}}},
	  "navigation": {"log": 7, "courseGreatCircle": {"nextPoint": {"distance": {"value": 10}, "timeToGo": {"value": {"s": 1}}}}},
	  "environment": {"water": {"temperature": {"value": 290.15}}}
	}`
	ms := extract(t, doc)
	m := byName(ms)
	require.Len(t, ms, 2)
	assert.Equal(t, 17.0, m[WaterTemperature].Value)
	assert.Equal(t, 10.0, m[NextPointDistance].Value)
}

func TestExtract_EmptyDocument(t *testing.T) {
	assert.Empty(t, extract(t, `{}`))
	assert.Empty(t, extract(t, `[]`))
	assert.Empty(t, Extract(nil, nil))
}

func TestExtract_BaseLabels(t *testing.T) {
	doc, err := signalk.Parse([]byte(`{"navigation": {"log": {"value": 5, "$source": "n2k.35"}}, "steering": {"autopilot": {"state": {"value": "standby"}}}}`))
	require.NoError(t, err)
	base := exposition.Labels{{Name: "mmsi", Value: "230123456"}}

	m := byName(Extract(doc, base))
	assert.Equal(t, base, m[AutopilotState].Labels)
	assert.Equal(t, exposition.Labels{{Name: "mmsi", Value: "230123456"}, {Name: "source", Value: "n2k.35"}}, m[LogDistance].Labels)
}
