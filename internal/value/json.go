package value

import (
	"bytes"
	"encoding/json"
	"math"
)

// MarshalJSON encodes v with map keys in insertion order. Non-finite floats
// have no JSON form and are encoded as null.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) writeJSON(buf *bytes.Buffer) error {
	switch v.kind {
	case KindArray:
		buf.WriteByte('[')
		for i, item := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case KindMap:
		buf.WriteByte('{')
		first := true
		for k, item := range v.m.All() {
			if !first {
				buf.WriteByte(',')
			}
			first = false
			key, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := item.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case KindFloat:
		if math.IsInf(v.f, 0) || math.IsNaN(v.f) {
			buf.WriteString("null")
			return nil
		}
	}
	data, err := json.Marshal(v.Any())
	if err != nil {
		return err
	}
	buf.Write(data)
	return nil
}
