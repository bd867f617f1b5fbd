package value

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gpabois/emerald/internal/apperr"
)

// DecodeYAML decodes a YAML document. An empty document decodes to Null.
// Timestamps and other non-core scalars are kept as strings.
func DecodeYAML(text string) (Value, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		return Value{}, fmt.Errorf("value: decode yaml: %w: %w", apperr.ErrMalformed, err)
	}
	if doc.Kind == 0 {
		return Null(), nil
	}
	return fromYAML(&doc)
}

func fromYAML(n *yaml.Node) (Value, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return Null(), nil
		}
		return fromYAML(n.Content[0])
	case yaml.AliasNode:
		return fromYAML(n.Alias)
	case yaml.SequenceNode:
		items := make([]Value, 0, len(n.Content))
		for _, c := range n.Content {
			item, err := fromYAML(c)
			if err != nil {
				return Value{}, err
			}
			items = append(items, item)
		}
		return Array(items...), nil
	case yaml.MappingNode:
		m := NewMap()
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, val := n.Content[i], n.Content[i+1]
			if key.Kind != yaml.ScalarNode {
				return Value{}, fmt.Errorf("value: decode yaml: line %d: %w: non-scalar mapping key", key.Line, apperr.ErrMalformed)
			}
			if key.ShortTag() == "!!merge" {
				if err := mergeYAML(m, val); err != nil {
					return Value{}, err
				}
				continue
			}
			item, err := fromYAML(val)
			if err != nil {
				return Value{}, err
			}
			m.Set(key.Value, item)
		}
		return FromMap(m), nil
	case yaml.ScalarNode:
		return scalarFromYAML(n)
	}
	return Value{}, fmt.Errorf("value: decode yaml: %w: unsupported node kind %d", apperr.ErrMalformed, n.Kind)
}

// mergeYAML applies a `<<` merge key; explicit keys win over merged ones.
func mergeYAML(m *Map, src *yaml.Node) error {
	merged, err := fromYAML(src)
	if err != nil {
		return err
	}
	sources := []Value{merged}
	if items, ok := merged.AsArray(); ok {
		sources = items
	}
	for _, s := range sources {
		sm, ok := s.AsMap()
		if !ok {
			return fmt.Errorf("value: decode yaml: %w: merge of non-map value", apperr.ErrMalformed)
		}
		for k, v := range sm.All() {
			if !m.Has(k) {
				m.Set(k, v)
			}
		}
	}
	return nil
}

func scalarFromYAML(n *yaml.Node) (Value, error) {
	switch n.ShortTag() {
	case "!!null":
		return Null(), nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return Value{}, fmt.Errorf("value: decode yaml: line %d: %w", n.Line, err)
		}
		return Bool(b), nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err == nil {
			return Int(i), nil
		}
		// Out of int64 range: keep the magnitude as a float.
		var f float64
		if err := n.Decode(&f); err != nil {
			return Value{}, fmt.Errorf("value: decode yaml: line %d: %w", n.Line, err)
		}
		return Float(f), nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return Value{}, fmt.Errorf("value: decode yaml: line %d: %w", n.Line, err)
		}
		return Float(f), nil
	}
	return String(n.Value), nil
}

// EncodeYAML renders v as a YAML document with two-space indentation. The
// output ends with a newline.
func EncodeYAML(v Value) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(toYAML(v)); err != nil {
		return "", fmt.Errorf("value: encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("value: encode yaml: %w", err)
	}
	return buf.String(), nil
}

func toYAML(v Value) *yaml.Node {
	switch v.kind {
	case KindBool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(v.b)}
	case KindString:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v.s}
	case KindInteger:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatInt(v.i, 10)}
	case KindFloat:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: formatYAMLFloat(v.f)}
	case KindArray:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range v.arr {
			n.Content = append(n.Content, toYAML(item))
		}
		return n
	case KindMap:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for k, item := range v.m.All() {
			n.Content = append(n.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
				toYAML(item))
		}
		return n
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
}

func formatYAMLFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return ".inf"
	case math.IsInf(f, -1):
		return "-.inf"
	case math.IsNaN(f):
		return ".nan"
	}
	return formatFloat(f)
}

// formatFloat returns the shortest representation of f that still reads back
// as a float (1 becomes "1.0").
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}
