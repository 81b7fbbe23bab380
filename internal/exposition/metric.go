package exposition

import (
	"strconv"
	"strings"
)

// Label is one name/value pair attached to a metric.
type Label struct {
	Name  string
	Value string
}

// Labels is an ordered label set. Insertion order is render order.
type Labels []Label

// With returns a copy of ls with name set to value. An existing label keeps
// its position; a new one is appended.
func (ls Labels) With(name, value string) Labels {
	out := make(Labels, len(ls), len(ls)+1)
	copy(out, ls)
	for i := range out {
		if out[i].Name == name {
			out[i].Value = value
			return out
		}
	}
	return append(out, Label{Name: name, Value: value})
}

// Merge returns a copy of ls with every label of other applied via With.
func (ls Labels) Merge(other Labels) Labels {
	out := append(Labels(nil), ls...)
	for _, l := range other {
		out = out.With(l.Name, l.Value)
	}
	return out
}

// Get returns the value of the named label.
func (ls Labels) Get(name string) (string, bool) {
	for _, l := range ls {
		if l.Name == name {
			return l.Value, true
		}
	}
	return "", false
}

// Metric is a single gauge sample.
type Metric struct {
	Name   string
	Value  float64
	Labels Labels
}

// FormatValue renders v the way it appears on a sample line.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

// AppendText appends the exposition lines for m to b, without a trailing
// newline.
func (m Metric) AppendText(b []byte, withComments bool) []byte {
	if withComments {
		b = append(b, "# HELP "...)
		b = append(b, m.Name...)
		b = append(b, " SignalK metric "...)
		b = append(b, m.Name...)
		b = append(b, "\n# TYPE "...)
		b = append(b, m.Name...)
		b = append(b, " gauge\n"...)
	}
	b = m.appendSeries(b)
	b = append(b, ' ')
	return strconv.AppendFloat(b, m.Value, 'f', -1, 64)
}

// Series returns the sample's name and label set as written on its line,
// e.g. signalk_navigation_log{source="nmea0183.GP"}.
func (m Metric) Series() string {
	return string(m.appendSeries(nil))
}

func (m Metric) appendSeries(b []byte) []byte {
	b = append(b, m.Name...)
	if len(m.Labels) > 0 {
		b = append(b, '{')
		for i, l := range m.Labels {
			if i > 0 {
				b = append(b, ',')
			}
			b = append(b, l.Name...)
			b = append(b, `="`...)
			b = append(b, labelEscaper.Replace(l.Value)...)
			b = append(b, '"')
		}
		b = append(b, '}')
	}
	return b
}

// String renders m with comments enabled.
func (m Metric) String() string {
	return string(m.AppendText(nil, true))
}

// Render joins the rendered records with newlines. The result has no
// trailing newline and is empty for an empty slice.
func Render(ms []Metric, withComments bool) string {
	var b []byte
	for i, m := range ms {
		if i > 0 {
			b = append(b, '\n')
		}
		b = m.AppendText(b, withComments)
	}
	return string(b)
}
