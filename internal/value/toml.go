package value

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/gpabois/emerald/internal/apperr"
)

// DecodeTOML decodes a TOML document into a Map value. Keys keep the order in
// which they appear in the document. Date and time values are kept as strings.
func DecodeTOML(text string) (Value, error) {
	var raw map[string]any
	md, err := toml.Decode(text, &raw)
	if err != nil {
		return Value{}, fmt.Errorf("value: decode toml: %w: %w", apperr.ErrMalformed, err)
	}
	order := newKeyOrder(md.Keys())
	return fromTOML(raw, nil, order), nil
}

// keyOrder records, for every table path, the order of its direct keys.
type keyOrder map[string][]string

func newKeyOrder(keys []toml.Key) keyOrder {
	order := make(keyOrder)
	seen := make(map[string]struct{})
	for _, k := range keys {
		if len(k) == 0 {
			continue
		}
		full := strings.Join(k, "\x00")
		if _, dup := seen[full]; dup {
			continue
		}
		seen[full] = struct{}{}
		parent := strings.Join(k[:len(k)-1], "\x00")
		order[parent] = append(order[parent], k[len(k)-1])
	}
	return order
}

func (o keyOrder) keys(path []string, m map[string]any) []string {
	known := o[strings.Join(path, "\x00")]
	out := make([]string, 0, len(m))
	for _, k := range known {
		if _, ok := m[k]; ok {
			out = append(out, k)
		}
	}
	var rest []string
	for k := range m {
		if !slices.Contains(out, k) {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

func fromTOML(v any, path []string, order keyOrder) Value {
	switch t := v.(type) {
	case map[string]any:
		m := NewMap()
		for _, k := range order.keys(path, t) {
			child := append(path[:len(path):len(path)], k)
			m.Set(k, fromTOML(t[k], child, order))
		}
		return FromMap(m)
	case []map[string]any:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = fromTOML(item, path, order)
		}
		return Array(items...)
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = fromTOML(item, path, order)
		}
		return Array(items...)
	case string:
		return String(t)
	case bool:
		return Bool(t)
	case int64:
		return Int(t)
	case float64:
		return Float(t)
	case time.Time:
		return String(t.Format(time.RFC3339Nano))
	case fmt.Stringer:
		return String(t.String())
	case nil:
		return Null()
	}
	return String(fmt.Sprint(v))
}

var errTOMLNull = errors.New("toml has no null value")

// EncodeTOML renders a Map value as a TOML document. Keys are written in map
// order, with the scalar entries of a table ahead of its sub-tables as TOML
// requires. Null entries of a table are omitted; nulls inside arrays are an
// error.
func EncodeTOML(v Value) (string, error) {
	m, ok := v.AsMap()
	if !ok {
		return "", fmt.Errorf("value: encode toml: top-level %s is not a map", v.Kind())
	}
	w := &tomlWriter{}
	w.table(nil, m)
	if w.err != nil {
		return "", fmt.Errorf("value: encode toml: %w", w.err)
	}
	return w.b.String(), nil
}

type tomlWriter struct {
	b   strings.Builder
	err error
}

func isTableArray(v Value) bool {
	items, ok := v.AsArray()
	if !ok || len(items) == 0 {
		return false
	}
	for _, item := range items {
		if item.Kind() != KindMap {
			return false
		}
	}
	return true
}

func (w *tomlWriter) table(path []string, m *Map) {
	for k, v := range m.All() {
		if v.IsNull() || v.Kind() == KindMap || isTableArray(v) {
			continue
		}
		w.b.WriteString(tomlKey(k))
		w.b.WriteString(" = ")
		w.inline(v)
		w.b.WriteByte('\n')
	}
	for k, v := range m.All() {
		child := append(path[:len(path):len(path)], k)
		switch {
		case v.Kind() == KindMap:
			w.header("[", child, "]")
			sub, _ := v.AsMap()
			w.table(child, sub)
		case isTableArray(v):
			items, _ := v.AsArray()
			for _, item := range items {
				w.header("[[", child, "]]")
				sub, _ := item.AsMap()
				w.table(child, sub)
			}
		}
	}
}

func (w *tomlWriter) header(open string, path []string, closing string) {
	if w.b.Len() > 0 {
		w.b.WriteByte('\n')
	}
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = tomlKey(p)
	}
	w.b.WriteString(open + strings.Join(parts, ".") + closing + "\n")
}

func (w *tomlWriter) inline(v Value) {
	switch v.Kind() {
	case KindNull:
		if w.err == nil {
			w.err = errTOMLNull
		}
	case KindBool:
		w.b.WriteString(strconv.FormatBool(v.b))
	case KindString:
		w.b.WriteString(quoteTOML(v.s))
	case KindInteger:
		w.b.WriteString(strconv.FormatInt(v.i, 10))
	case KindFloat:
		w.b.WriteString(formatTOMLFloat(v.f))
	case KindArray:
		w.b.WriteByte('[')
		for i, item := range v.arr {
			if i > 0 {
				w.b.WriteString(", ")
			}
			w.inline(item)
		}
		w.b.WriteByte(']')
	case KindMap:
		if v.m.Len() == 0 {
			w.b.WriteString("{}")
			return
		}
		w.b.WriteString("{ ")
		first := true
		for k, item := range v.m.All() {
			if item.IsNull() {
				continue
			}
			if !first {
				w.b.WriteString(", ")
			}
			first = false
			w.b.WriteString(tomlKey(k) + " = ")
			w.inline(item)
		}
		w.b.WriteString(" }")
	}
}

var bareKey = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func tomlKey(k string) string {
	if bareKey.MatchString(k) {
		return k
	}
	return quoteTOML(k)
}

func quoteTOML(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\b':
			b.WriteString(`\b`)
		case '\t':
			b.WriteString(`\t`)
		case '\n':
			b.WriteString(`\n`)
		case '\f':
			b.WriteString(`\f`)
		case '\r':
			b.WriteString(`\r`)
		default:
			if r < 0x20 || r == 0x7f {
				fmt.Fprintf(&b, `\u%04X`, r)
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func formatTOMLFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}
	return formatFloat(f)
}
