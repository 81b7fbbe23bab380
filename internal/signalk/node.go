package signalk

// Kind identifies which variant of the document tree a Node is.
type Kind int

const (
	KindOther Kind = iota
	KindValue
	KindComposite
	KindObject
	KindNumber
	KindString
)

// Structural keys consumed at node level. They are never treated as
// measurements or recursed into.
const (
	KeyMeta      = "meta"
	KeySource    = "$source"
	KeyTimestamp = "timestamp"
	KeyPGN       = "pgn"
	KeyValue     = "value"
)

// Field is one member of a JSON object, in document order.
type Field struct {
	Key  string
	Node *Node
}

// Node is one element of a parsed SignalK document.
//
// Value is set for KindValue (the leaf's "value") and KindNumber.
// Text is set for KindString. Children holds every object member, including
// structural keys, for KindValue, KindComposite and KindObject.
type Node struct {
	Kind     Kind
	Value    float64
	Text     string
	Children []Field
}

// IsReserved reports whether key is a structural key rather than a child.
func IsReserved(key string) bool {
	switch key {
	case KeyMeta, KeySource, KeyTimestamp, KeyPGN:
		return true
	}
	return false
}

// Child returns the first member named key.
func (n *Node) Child(key string) (*Node, bool) {
	if n == nil {
		return nil, false
	}
	for _, f := range n.Children {
		if f.Key == key {
			return f.Node, true
		}
	}
	return nil, false
}

// Lookup follows keys from n and returns the node at the end of the chain.
// Any missing step yields false.
func (n *Node) Lookup(keys ...string) (*Node, bool) {
	cur := n
	for _, k := range keys {
		next, ok := cur.Child(k)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, cur != nil
}

// Number returns the numeric value of a KindNumber or KindValue node.
func (n *Node) Number() (float64, bool) {
	if n == nil {
		return 0, false
	}
	switch n.Kind {
	case KindNumber, KindValue:
		return n.Value, true
	}
	return 0, false
}

// String returns the text of a KindString node.
func (n *Node) String() (string, bool) {
	if n == nil || n.Kind != KindString {
		return "", false
	}
	return n.Text, true
}

// Fields returns the subfields of a composite value in document order.
func (n *Node) Fields() []Field {
	if n == nil || n.Kind != KindComposite {
		return nil
	}
	v, _ := n.Child(KeyValue)
	if v == nil {
		return nil
	}
	return v.Children
}

// Source returns the "$source" identifier attached to n.
func (n *Node) Source() (string, bool) {
	c, ok := n.Child(KeySource)
	if !ok {
		return "", false
	}
	return c.String()
}

// PGN returns the protocol frame number attached to n.
func (n *Node) PGN() (float64, bool) {
	c, ok := n.Child(KeyPGN)
	if !ok || c.Kind != KindNumber {
		return 0, false
	}
	return c.Value, true
}

// Units returns meta.units, or "" when not declared.
func (n *Node) Units() string {
	c, ok := n.Lookup(KeyMeta, "units")
	if !ok {
		return ""
	}
	s, _ := c.String()
	return s
}

// FieldUnits returns meta.properties.<field>.units, or "" when not declared.
func (n *Node) FieldUnits(field string) string {
	c, ok := n.Lookup(KeyMeta, "properties", field, "units")
	if !ok {
		return ""
	}
	s, _ := c.String()
	return s
}
