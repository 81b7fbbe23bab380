// Package engine turns one parsed SignalK document into exposition text by
// running the normalizer and then the derived-metric extractor over it.
//
// Convert and Text are pure: the same document and Options always produce
// byte-identical output, and documents are never modified, so concurrent
// calls on a shared tree are safe.
package engine

import (
	"github.com/obsidianstack/signalk-exporter/internal/derived"
	"github.com/obsidianstack/signalk-exporter/internal/exposition"
	"github.com/obsidianstack/signalk-exporter/internal/normalize"
	"github.com/obsidianstack/signalk-exporter/internal/signalk"
)

// vesselFields are the root-level identity fields promoted to labels when
// Options.VesselLabels is set.
var vesselFields = []string{"mmsi", "uuid", "name"}

// Options controls one conversion.
type Options struct {
	// Comments emits # HELP / # TYPE lines ahead of every sample.
	Comments bool

	// Labels is merged into every record.
	Labels exposition.Labels

	// VesselLabels adds the document's mmsi, uuid and name as labels.
	VesselLabels bool
}

// OptionsFunc resolves the current Options for a source id.
type OptionsFunc func(sourceID string) Options

// Convert returns the normalizer's records followed by the derived ones.
//
// Name sanitising is lossy: keys such as "a-b" and "a_b" under one parent
// both become ..._a_b. When that produces a repeated series only the first
// sample is kept.
func Convert(doc *signalk.Node, opts Options) []exposition.Metric {
	if doc == nil {
		return nil
	}
	base := opts.Labels
	if opts.VesselLabels {
		base = base.Merge(VesselLabels(doc))
	}
	out := normalize.Flatten(doc, base)
	out = append(out, derived.Extract(doc, base)...)
	return Dedupe(out)
}

// Dedupe drops every sample whose series (name plus labels) already
// appeared earlier in ms. Order is preserved and ms is reused.
func Dedupe(ms []exposition.Metric) []exposition.Metric {
	seen := make(map[string]struct{}, len(ms))
	out := ms[:0]
	for _, m := range ms {
		key := m.Series()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, m)
	}
	return out
}

// Text renders Convert's records as one exposition body.
func Text(doc *signalk.Node, opts Options) string {
	return exposition.Render(Convert(doc, opts), opts.Comments)
}

// VesselLabels returns the string identity fields found at the root of doc.
func VesselLabels(doc *signalk.Node) exposition.Labels {
	var out exposition.Labels
	for _, key := range vesselFields {
		n, ok := doc.Child(key)
		if !ok {
			continue
		}
		if s, ok := n.String(); ok {
			out = out.With(key, s)
		}
	}
	return out
}
