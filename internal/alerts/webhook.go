package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/obsidianstack/signalk-exporter/internal/exposition"
)

// fact is one name/value row shown in chat notifications.
type fact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// payloadFunc builds the JSON body for one webhook type.
type payloadFunc func(a *Alert) interface{}

var payloads = map[string]payloadFunc{
	"slack":     slackPayload,
	"teams":     teamsPayload,
	"pagerduty": genericPayload,
	"http":      genericPayload,
}

// deliver posts a to every configured webhook. Failures are logged only.
func (e *Engine) deliver(a *Alert) {
	for _, wh := range e.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}
		build, ok := payloads[wh.Type]
		if !ok {
			slog.Warn("alerts: unknown webhook type, skipping", "type", wh.Type)
			continue
		}
		body, err := json.Marshal(build(a))
		if err == nil {
			err = e.post(url, body)
		}
		if err != nil {
			slog.Error("alerts: webhook delivery failed", "type", wh.Type, "rule", a.RuleName, "source", a.SourceID, "err", err)
			continue
		}
		slog.Debug("alerts: webhook delivered", "type", wh.Type, "rule", a.RuleName, "state", a.State)
	}
}

// title is the one-line headline of a notification.
func title(a *Alert) string {
	return fmt.Sprintf("%s %s on %s", stateTag(a), a.RuleName, vesselOrSource(a))
}

// facts lists what a crew needs to act on the alert: which boat, which
// series, the reading and the rule. Series labels other than the vessel
// identity follow in name order.
func facts(a *Alert) []fact {
	out := []fact{{"Source", a.SourceID}}
	if a.Vessel != "" {
		out = append(out, fact{"Vessel", a.Vessel})
	}
	if a.MMSI != "" {
		out = append(out, fact{"MMSI", a.MMSI})
	}
	out = append(out,
		fact{"Reading", exposition.FormatValue(a.Value)},
		fact{"Condition", a.Condition},
		fact{"Fired", a.FiredAt.UTC().Format(time.RFC3339)},
	)
	if a.ResolvedAt != nil {
		out = append(out, fact{"Resolved", a.ResolvedAt.UTC().Format(time.RFC3339)})
	}

	names := make([]string, 0, len(a.Labels))
	for n := range a.Labels {
		if n != "name" && n != "mmsi" {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	for _, n := range names {
		out = append(out, fact{n, a.Labels[n]})
	}
	return out
}

func slackPayload(a *Alert) interface{} {
	var b strings.Builder
	for _, f := range facts(a) {
		fmt.Fprintf(&b, "*%s:* %s\n", f.Name, f.Value)
	}
	return map[string]interface{}{
		"text": title(a),
		"blocks": []interface{}{
			map[string]interface{}{
				"type": "header",
				"text": map[string]string{"type": "plain_text", "text": title(a)},
			},
			map[string]interface{}{
				"type": "section",
				"text": map[string]string{"type": "mrkdwn", "text": "`" + a.Series + "`"},
			},
			map[string]interface{}{
				"type": "section",
				"text": map[string]string{"type": "mrkdwn", "text": strings.TrimSuffix(b.String(), "\n")},
			},
		},
	}
}

func teamsPayload(a *Alert) interface{} {
	return map[string]interface{}{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": themeColor(a),
		"summary":    title(a),
		"title":      title(a),
		"sections": []interface{}{
			map[string]interface{}{
				"activityTitle":    a.Series,
				"activitySubtitle": a.Message,
				"facts":            facts(a),
			},
		},
	}
}

func genericPayload(a *Alert) interface{} {
	return map[string]interface{}{
		"summary": title(a),
		"alert":   a,
	}
}

func (e *Engine) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func stateTag(a *Alert) string {
	if a.State == StateResolved {
		return "[RESOLVED]"
	}
	return "[" + strings.ToUpper(a.Severity) + "]"
}

func themeColor(a *Alert) string {
	if a.State == StateResolved {
		return "2EB67D"
	}
	switch a.Severity {
	case "critical":
		return "FF4F6A"
	case "warning":
		return "FFAB40"
	default:
		return "00D4FF"
	}
}
