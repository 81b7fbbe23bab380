package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Alerts(t *testing.T) {
	t.Setenv("SLACK_URL", "https://hooks.slack.test/x")
	cfg := loadFromString(t, `
sources:
  - id: self
    url: "http://h/"
alerts:
  rules:
    - name: shallow
      condition: "signalk_environment_depth_belowtransducer_m < 3"
      severity: critical
      cooldown: 5m
  webhooks:
    - type: slack
      url_env: SLACK_URL
`)
	require.Len(t, cfg.Alerts.Rules, 1)
	assert.Equal(t, 5*time.Minute, cfg.Alerts.Rules[0].Cooldown)
	require.Len(t, cfg.Alerts.Webhooks, 1)
	assert.Equal(t, "https://hooks.slack.test/x", cfg.Alerts.Webhooks[0].URL())
	assert.Empty(t, WebhookConfig{}.URL())
}

func TestLoad_AlertsInvalid(t *testing.T) {
	tests := []struct {
		name   string
		alerts string
	}{
		{"missing name", `{rules: [{condition: "a > 1"}]}`},
		{"duplicate name", `{rules: [{name: x, condition: "a > 1"}, {name: x, condition: "b > 1"}]}`},
		{"bad condition", `{rules: [{name: x, condition: "a >"}]}`},
		{"bad severity", `{rules: [{name: x, condition: "a > 1", severity: panic}]}`},
		{"bad webhook", `{webhooks: [{type: carrier-pigeon}]}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := loadStringErr(t, "sources: [{id: a, url: \"http://h/\"}]\nalerts: "+tc.alerts+"\n")
			assert.Error(t, err)
		})
	}
}

func TestParseCondition(t *testing.T) {
	c, err := ParseCondition("signalk_navigation_speedoverground_knots >= 7.5")
	require.NoError(t, err)
	assert.Equal(t, Condition{Metric: "signalk_navigation_speedoverground_knots", Op: ">=", Threshold: 7.5}, c)
	assert.True(t, c.Holds(7.5))
	assert.False(t, c.Holds(7.4))

	for _, bad := range []string{"", "a > b", "1abc > 1", "a ~ 1", "a > 1 extra"} {
		_, err := ParseCondition(bad)
		assert.Error(t, err, bad)
	}
}

func TestCondition_Holds(t *testing.T) {
	tests := []struct {
		op   string
		v    float64
		want bool
	}{
		{">", 2, true}, {">", 1, false},
		{">=", 1, true}, {"<", 0, true},
		{"<=", 1, true}, {"<=", 2, false},
		{"==", 1, true}, {"!=", 1, false},
		{"~", 1, false},
	}
	for _, tc := range tests {
		c := Condition{Metric: "m", Op: tc.op, Threshold: 1}
		assert.Equal(t, tc.want, c.Holds(tc.v), "%v %s 1", tc.v, tc.op)
	}
}
