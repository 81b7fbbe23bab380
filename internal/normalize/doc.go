// Package normalize flattens a SignalK document into gauge records.
//
// Flatten walks the tree depth-first in document key order. Value leaves and
// composite-value subfields become one record each, named from their path and
// declared unit; interior nodes are recursed; bare numbers become unit-less
// records. Identification fields (id, name, value), placeholder readings
// ($source "defaults") and the static AIS antenna offsets are never emitted.
package normalize
