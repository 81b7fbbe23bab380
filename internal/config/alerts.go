package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/common/model"
)

// AlertsConfig holds alerting rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines one threshold on an exported metric.
type AlertRule struct {
	// Name is the human-readable alert identifier, used as the deduplication key.
	Name string `yaml:"name"`

	// Condition is "<metric> <op> <number>", e.g.
	// "signalk_environment_depth_belowtransducer_m < 3".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	// Defaults to 15 minutes if zero.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | pagerduty | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Condition is a parsed AlertRule.Condition.
type Condition struct {
	Metric    string
	Op        string
	Threshold float64
}

// ParseCondition parses "<metric> <op> <number>". Supported operators are
// >, >=, <, <=, == and !=.
func ParseCondition(s string) (Condition, error) {
	parts := strings.Fields(s)
	if len(parts) != 3 {
		return Condition{}, fmt.Errorf("condition %q: want \"<metric> <op> <number>\"", s)
	}
	c := Condition{Metric: parts[0], Op: parts[1]}
	if !model.IsValidMetricName(model.LabelValue(c.Metric)) {
		return Condition{}, fmt.Errorf("condition %q: invalid metric name", s)
	}
	switch c.Op {
	case ">", ">=", "<", "<=", "==", "!=":
	default:
		return Condition{}, fmt.Errorf("condition %q: unknown operator %q", s, c.Op)
	}
	v, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return Condition{}, fmt.Errorf("condition %q: threshold: %w", s, err)
	}
	c.Threshold = v
	return c, nil
}

// Holds reports whether v satisfies the condition.
func (c Condition) Holds(v float64) bool {
	switch c.Op {
	case ">":
		return v > c.Threshold
	case ">=":
		return v >= c.Threshold
	case "<":
		return v < c.Threshold
	case "<=":
		return v <= c.Threshold
	case "==":
		return v == c.Threshold
	case "!=":
		return v != c.Threshold
	default:
		return false
	}
}

func validateAlerts(a AlertsConfig) error {
	seen := make(map[string]bool, len(a.Rules))
	for i, r := range a.Rules {
		if r.Name == "" {
			return fmt.Errorf("alerts.rules[%d]: name is required", i)
		}
		if seen[r.Name] {
			return fmt.Errorf("alerts.rules[%d]: duplicate name %q", i, r.Name)
		}
		seen[r.Name] = true
		if _, err := ParseCondition(r.Condition); err != nil {
			return fmt.Errorf("alerts.rules[%d] %q: %w", i, r.Name, err)
		}
		switch r.Severity {
		case "critical", "warning", "info", "":
		default:
			return fmt.Errorf("alerts.rules[%d] %q: unknown severity %q", i, r.Name, r.Severity)
		}
	}
	for i, w := range a.Webhooks {
		switch w.Type {
		case "teams", "slack", "pagerduty", "http":
		default:
			return fmt.Errorf("alerts.webhooks[%d]: unknown type %q", i, w.Type)
		}
	}
	return nil
}
