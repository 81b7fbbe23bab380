package normalize

import (
	"github.com/obsidianstack/signalk-exporter/internal/exposition"
	"github.com/obsidianstack/signalk-exporter/internal/signalk"
)

// DefaultsSource is the $source value SignalK servers attach to values read
// from the vessel's static defaults file.
const DefaultsSource = "defaults"

// Label names attached from node-level attachments.
const (
	LabelSource = "source"
	LabelPGN    = "pgn"
)

// suppressedNames are rigging constants, not telemetry.
var suppressedNames = map[string]struct{}{
	"signalk_sensors_ais_frombow_m":    {},
	"signalk_sensors_ais_fromcenter_m": {},
}

// Flatten converts doc into gauge records. base is merged into every record
// ahead of the node's own source and pgn labels.
func Flatten(doc *signalk.Node, base exposition.Labels) []exposition.Metric {
	f := &flattener{base: base}
	f.walk(nil, doc)
	return f.out
}

// Labels returns base extended with the source and pgn attached to n.
func Labels(base exposition.Labels, n *signalk.Node) exposition.Labels {
	out := base
	if src, ok := n.Source(); ok {
		out = out.With(LabelSource, src)
	}
	if pgn, ok := n.PGN(); ok {
		out = out.With(LabelPGN, exposition.FormatValue(pgn))
	}
	return out
}

type flattener struct {
	base exposition.Labels
	out  []exposition.Metric
}

func (f *flattener) walk(path []string, n *signalk.Node) {
	if n == nil {
		return
	}
	switch n.Kind {
	case signalk.KindValue:
		f.value(path, n)
	case signalk.KindComposite:
		f.composite(path, n)
	case signalk.KindObject:
		for _, c := range n.Children {
			if signalk.IsReserved(c.Key) {
				continue
			}
			f.walk(extend(path, c.Key), c.Node)
		}
	case signalk.KindNumber:
		if isIdentity(path) {
			return
		}
		f.emit(exposition.Name{Path: path}, n.Value, f.base)
	}
}

func (f *flattener) value(path []string, n *signalk.Node) {
	if isDefaults(n) || isIdentity(path) {
		return
	}
	name := exposition.Name{Path: path, Unit: exposition.UnitToken(n.Units())}
	f.emit(name, n.Value, Labels(f.base, n))
}

func (f *flattener) composite(path []string, n *signalk.Node) {
	if isDefaults(n) || len(path) == 0 {
		return
	}
	labels := Labels(f.base, n)
	for _, field := range n.Fields() {
		if field.Node.Kind != signalk.KindNumber {
			continue
		}
		sub := extend(path, field.Key)
		if isIdentity(sub) {
			continue
		}
		name := exposition.Name{Path: sub, Unit: exposition.UnitToken(n.FieldUnits(field.Key))}
		f.emit(name, field.Node.Value, labels)
	}
}

// emit applies the speed rule and the fixed suppression list, then records
// the metric.
func (f *flattener) emit(name exposition.Name, v float64, labels exposition.Labels) {
	if name.IsSpeed() {
		name, v = name.ToKnots(v)
	}
	s := name.String()
	if _, ok := suppressedNames[s]; ok {
		return
	}
	f.out = append(f.out, exposition.Metric{Name: s, Value: v, Labels: labels})
}

// isIdentity reports whether the innermost segment is exactly id, name or
// value. An empty path has nothing to name the metric by and counts as one.
func isIdentity(path []string) bool {
	if len(path) == 0 {
		return true
	}
	switch path[len(path)-1] {
	case "id", "name", "value":
		return true
	}
	return false
}

func isDefaults(n *signalk.Node) bool {
	src, ok := n.Source()
	return ok && src == DefaultsSource
}

func extend(path []string, key string) []string {
	out := make([]string, len(path)+1)
	copy(out, path)
	out[len(path)] = key
	return out
}
