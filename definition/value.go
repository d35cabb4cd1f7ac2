package definition

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/buildkite/datapipeline-deploy/internal/ordered"
	"gopkg.in/yaml.v3"
)

// Kind says which variant a Value holds.
type Kind int

const (
	ScalarKind Kind = iota
	ReferenceKind
	ListKind
)

func (k Kind) String() string {
	switch k {
	case ScalarKind:
		return "scalar"
	case ReferenceKind:
		return "reference"
	case ListKind:
		return "list"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Value is one value from a source document: a scalar rendered as text, a
// reference to another object's id, or a list of values.
type Value struct {
	Kind Kind

	// Text is the scalar text, or the referenced id.
	Text string

	// Items is only set for ListKind.
	Items []Value
}

// Scalar returns a scalar Value.
func Scalar(text string) Value {
	return Value{Kind: ScalarKind, Text: text}
}

// Reference returns a Value referring to the object with the given id.
func Reference(id string) Value {
	return Value{Kind: ReferenceKind, Text: id}
}

// List returns a list Value. A List with no items is still a list.
func List(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{Kind: ListKind, Items: items}
}

// String renders the value as text. References render as {"ref":"id"} and
// lists as a JSON array, which is what they looked like in the source.
func (v Value) String() string {
	switch v.Kind {
	case ReferenceKind:
		return marshalText(map[string]string{"ref": v.Text})
	case ListKind:
		items := make([]json.RawMessage, 0, len(v.Items))
		for _, item := range v.Items {
			items = append(items, jsonText(item))
		}
		return marshalText(items)
	default:
		return v.Text
	}
}

func jsonText(v Value) json.RawMessage {
	if v.Kind == ScalarKind {
		return json.RawMessage(marshalText(v.Text))
	}
	return json.RawMessage(v.String())
}

var _ yaml.Unmarshaler = (*Value)(nil)

// UnmarshalYAML decodes any YAML (or JSON) node into a Value. A mapping whose
// only key is "ref" becomes a reference. Any other mapping becomes a scalar
// holding its compact JSON text, keys in source order.
func (v *Value) UnmarshalYAML(n *yaml.Node) error {
	decoded, err := decodeValue(make(map[*yaml.Node]bool), n)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

func decodeValue(seen map[*yaml.Node]bool, n *yaml.Node) (Value, error) {
	if n == nil {
		return Scalar(""), nil
	}
	if seen[n] {
		return Value{}, fmt.Errorf("line %d, col %d: infinite recursion", n.Line, n.Column)
	}
	seen[n] = true
	defer delete(seen, n)

	switch n.Kind {
	case yaml.AliasNode:
		return decodeValue(seen, n.Alias)

	case yaml.ScalarNode:
		return Scalar(scalarText(n)), nil

	case yaml.SequenceNode:
		items := make([]Value, 0, len(n.Content))
		for _, c := range n.Content {
			item, err := decodeValue(seen, c)
			if err != nil {
				return Value{}, err
			}
			items = append(items, item)
		}
		return List(items...), nil

	case yaml.MappingNode:
		fields := new(ordered.Map[string, *yaml.Node])
		if err := fields.UnmarshalYAML(n); err != nil {
			return Value{}, err
		}
		if ref, ok := fields.Get("ref"); ok && fields.Len() == 1 {
			if ref.Kind == yaml.ScalarNode {
				return Reference(scalarText(ref)), nil
			}
			text, err := compactJSON(ref)
			if err != nil {
				return Value{}, err
			}
			return Reference(text), nil
		}
		text, err := compactJSON(n)
		if err != nil {
			return Value{}, err
		}
		return Scalar(text), nil

	default:
		return Value{}, fmt.Errorf("line %d, col %d: unsupported kind %x", n.Line, n.Column, n.Kind)
	}
}

// scalarText is the literal text of a scalar node; nulls are empty.
func scalarText(n *yaml.Node) string {
	if n.ShortTag() == "!!null" {
		return ""
	}
	return n.Value
}

func compactJSON(n *yaml.Node) (string, error) {
	generic, err := ordered.DecodeYAML(n)
	if err != nil {
		return "", err
	}
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return "", fmt.Errorf("line %d, col %d: rendering value as JSON: %w", n.Line, n.Column, err)
	}
	return string(bytes.TrimSuffix(b.Bytes(), []byte("\n"))), nil
}

// marshalText is json.Marshal without HTML escaping. Shell commands in
// pipeline fields are full of & and >.
func marshalText(v any) string {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return ""
	}
	return string(bytes.TrimSuffix(b.Bytes(), []byte("\n")))
}
