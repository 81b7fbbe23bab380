// Package exposition holds the metric record produced by the normalizer and
// the derived-metric extractor, and renders records in the Prometheus text
// exposition format.
//
// Names are kept structured (Name{Path, Unit}) until the final join so the
// speed-to-knots rule operates on the unit token instead of rewriting text.
package exposition
