package signalk

import (
	"errors"

	"github.com/tidwall/gjson"
)

// ErrInvalidJSON is returned by Parse when the input is not a JSON document.
var ErrInvalidJSON = errors.New("signalk: invalid json document")

// Parse decodes data into a Node tree. Object members keep their document
// order; gjson iterates them in the order they appear in the input.
func Parse(data []byte) (*Node, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidJSON
	}
	return build(gjson.ParseBytes(data)), nil
}

func build(r gjson.Result) *Node {
	switch {
	case r.IsObject():
		return buildObject(r)
	case r.Type == gjson.Number:
		return &Node{Kind: KindNumber, Value: r.Num}
	case r.Type == gjson.String:
		return &Node{Kind: KindString, Text: r.Str}
	default:
		return &Node{Kind: KindOther}
	}
}

func buildObject(r gjson.Result) *Node {
	n := &Node{Kind: KindObject}
	r.ForEach(func(key, value gjson.Result) bool {
		n.Children = append(n.Children, Field{Key: key.String(), Node: build(value)})
		return true
	})

	v, ok := n.Child(KeyValue)
	if !ok {
		return n
	}
	switch v.Kind {
	case KindNumber:
		n.Kind = KindValue
		n.Value = v.Value
	case KindObject, KindValue, KindComposite:
		n.Kind = KindComposite
	}
	return n
}
