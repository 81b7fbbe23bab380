// Package signalk decodes a SignalK REST document into a Node tree.
//
// A Node is a tagged union. Parse classifies every JSON object by the shape
// of its "value" member:
//   - KindValue: "value" is a number (a value leaf)
//   - KindComposite: "value" is an object of named subfields (e.g. min/max)
//   - KindObject: anything else, an interior node whose members are recursed
//
// Scalars become KindNumber or KindString; booleans, null and arrays are
// KindOther and carry nothing. Object members keep their document order so
// that callers walking the tree produce deterministic, source-ordered output.
//
// Lookup(keys...) is safe on nil and on missing keys: it returns false
// rather than an error, which is the contract every caller relies on.
package signalk
