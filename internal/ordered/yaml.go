package ordered

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// DecodeYAML recursively decodes n into a generic value: scalars become
// their natural Go type, sequences become []any and mappings become
// *Map[string, any]. yaml.v3 would pick map[string]any for a mapping decoded
// into any, which loses the order the keys were written in; DecodeYAML keeps
// it, so a definition converted to JSON lists its fields as the author did.
func DecodeYAML(n *yaml.Node) (any, error) {
	return decodeYAML(make(map[*yaml.Node]bool), n)
}

// decodeYAML implements DecodeYAML. seen holds the nodes currently being
// decoded further up the tree.
func decodeYAML(seen map[*yaml.Node]bool, n *yaml.Node) (any, error) {
	// nil decodes to nil.
	if n == nil {
		return nil, nil
	}

	// Meeting an ancestor again means an alias refers to a node that
	// contains it, and decoding would never finish:
	// ---
	// schedule: &s      // seen is empty when decoding schedule
	//   startAt: *s     // seen contains schedule when decoding startAt
	if seen[n] {
		return nil, fmt.Errorf("line %d, col %d: infinite recursion", n.Line, n.Column)
	}
	seen[n] = true

	// Remove n again once its subtree is done. seen is shared by every level
	// of the recursion, and one anchor may be used by several siblings:
	// ---
	// defaults: &d
	//   failureAndRerunMode: CASCADE
	// objects:
	//   - *d
	//   - *d
	// Both list items are copies of defaults, so *d must not count as seen
	// when the second item is decoded.
	defer delete(seen, n)

	switch n.Kind {
	case yaml.ScalarNode:
		// yaml.v3 picks the Go type from the resolved tag (!!int, !!bool and
		// so on). Other scalar rules would go here.
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil

	case yaml.SequenceNode:
		v := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			cv, err := decodeYAML(seen, c)
			if err != nil {
				return nil, err
			}
			v = append(v, cv)
		}
		return v, nil

	case yaml.MappingNode:
		// Not m.UnmarshalYAML(n): that has no way to carry seen along.
		m := NewMap[string, any](len(n.Content) / 2)
		err := rangeYAMLMap(n, func(key string, val *yaml.Node) error {
			v, err := decodeYAML(seen, val)
			if err != nil {
				return err
			}
			m.Set(key, v)
			return nil
		})
		if err != nil {
			return nil, err
		}
		return m, nil

	case yaml.AliasNode:
		// Aliases are one way to recurse forever, caught by seen above.
		// Merges are the other, and rangeYAMLMap deals with those.
		return decodeYAML(seen, n.Alias)

	case yaml.DocumentNode:
		switch len(n.Content) {
		case 0:
			return nil, nil
		case 1:
			return decodeYAML(seen, n.Content[0])
		default:
			return nil, fmt.Errorf("line %d, col %d: document contains more than 1 content item (%d)", n.Line, n.Column, len(n.Content))
		}

	default:
		return nil, fmt.Errorf("line %d, col %d: unsupported kind %x", n.Line, n.Column, n.Kind)
	}
}

// rangeYAMLMap calls f with each key/value pair in a mapping node, in the
// order they were written. Keys must be scalars, and are converted to
// canonical strings; any other key is an error.
//
// A mapping can pull in pairs from other mappings with merge keys
// (`<<: *anchor` or `<<: [*a, *b]`), so n may also be a sequence or an alias,
// as long as those in turn only lead to mappings, sequences and aliases.
func rangeYAMLMap(n *yaml.Node, f func(key string, val *yaml.Node) error) error {
	return rangeYAMLMapImpl(make(map[*yaml.Node]bool), n, f)
}

// rangeYAMLMapImpl implements rangeYAMLMap. merged records the mappings
// already merged into the one being ranged over, which stops merge loops
// and avoids merging the same mapping twice.
func rangeYAMLMapImpl(merged map[*yaml.Node]bool, n *yaml.Node, f func(key string, val *yaml.Node) error) error {
	// Like a nil Go map, nil has no entries.
	if n == nil {
		return nil
	}

	if merged[n] {
		return nil
	}
	merged[n] = true

	switch n.Kind {
	case yaml.MappingNode:
		// yaml.v3 stores mapping contents as one flat list:
		// key, value, key, value...
		if len(n.Content)%2 != 0 {
			return fmt.Errorf("line %d, col %d: mapping node has odd content length %d", n.Line, n.Column, len(n.Content))
		}

		// A key written in the mapping itself beats the same key arriving
		// through a merge (https://yaml.org/type/merge.html), and among
		// merges the earlier one wins. Order matters too, so this takes two
		// passes: collect the keys written at this level, then walk the
		// pairs again, expanding merges and dropping keys already taken.

		// Pass 1: the keys at this level, ignoring merges.
		keys := make(map[string]bool)
		for i := 0; i < len(n.Content); i += 2 {
			k := n.Content[i]
			if k.Tag == "!!merge" {
				continue
			}
			ck, err := canonicalMapKey(k)
			if err != nil {
				return err
			}
			keys[ck] = true
		}

		// Used while merging: skip keys already taken, and take new ones so
		// later merges can't override them.
		skipKeys := func(k string, v *yaml.Node) error {
			if keys[k] {
				return nil
			}
			keys[k] = true
			return f(k, v)
		}

		// Pass 2: yield the pairs in order.
		for i := 0; i < len(n.Content); i += 2 {
			k, v := n.Content[i], n.Content[i+1]

			// `<<: value`, where value is an alias to a mapping or a
			// sequence of them, and those may merge further mappings.
			if k.Tag == "!!merge" {
				if err := rangeYAMLMapImpl(merged, v, skipKeys); err != nil {
					return err
				}
				continue
			}

			ck, err := canonicalMapKey(k)
			if err != nil {
				return err
			}
			if err := f(ck, v); err != nil {
				return err
			}
		}

	case yaml.SequenceNode:
		// Each element is merged in turn.
		for _, e := range n.Content {
			if err := rangeYAMLMapImpl(merged, e, f); err != nil {
				return err
			}
		}

	case yaml.AliasNode:
		return rangeYAMLMapImpl(merged, n.Alias, f)

	default:
		return fmt.Errorf("line %d, col %d: cannot range over node kind %x", n.Line, n.Column, n.Kind)
	}
	return nil
}

// canonicalMapKey converts a scalar key node into a string. YAML treats
// different spellings of one value, such as 0xb and 11, as the same key,
// and JSON only allows string keys.
func canonicalMapKey(n *yaml.Node) (string, error) {
	var x any
	if err := n.Decode(&x); err != nil {
		return "", err
	}
	if x == nil || n.Tag == "!!null" {
		// JSON has no null keys.
		return "", fmt.Errorf("line %d, col %d: null not supported as a map key", n.Line, n.Column)
	}
	switch n.Tag {
	case "!!bool":
		// true or false, however it was spelled.
		return fmt.Sprintf("%t", x), nil
	case "!!int":
		// Decimal.
		return fmt.Sprintf("%d", x), nil
	case "!!float":
		// Scientific notation. Inf and NaN come through quoted, so need
		// nothing special.
		return fmt.Sprintf("%e", x), nil
	default:
		// Anything else is used as written.
		return n.Value, nil
	}
}
