package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// fieldEncoder projects JSON records onto a set of fields. A top-level object or every
// object of a top-level array keeps only the requested keys, in the requested order.
// Other values pass through unchanged.
type fieldEncoder struct {
	w      io.Writer
	fields []string
}

func newFieldEncoder(w io.Writer, fields []string) *fieldEncoder {
	return &fieldEncoder{w: w, fields: fields}
}

func (e *fieldEncoder) Encode(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if len(e.fields) == 0 {
		return e.write(b, []byte{'\n'})
	}
	switch firstByte(b) {
	case '{':
		out, err := e.project(b)
		if err != nil {
			return err
		}
		return e.write(out, []byte{'\n'})
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(b, &items); err != nil {
			return err
		}
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if firstByte(item) != '{' {
				buf.Write(item)
				continue
			}
			out, err := e.project(item)
			if err != nil {
				return err
			}
			buf.Write(out)
		}
		buf.WriteString("]\n")
		return e.write(buf.Bytes())
	default:
		return e.write(b, []byte{'\n'})
	}
}

func (e *fieldEncoder) project(obj []byte) ([]byte, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(obj, &m); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	n := 0
	for _, f := range e.fields {
		v, ok := m[f]
		if !ok {
			continue
		}
		if n > 0 {
			buf.WriteByte(',')
		}
		n++
		key, err := json.Marshal(f)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (e *fieldEncoder) write(parts ...[]byte) error {
	for _, p := range parts {
		if _, err := e.w.Write(p); err != nil {
			return err
		}
	}
	return nil
}

func firstByte(b []byte) byte {
	b = bytes.TrimLeft(b, " \t\r\n")
	if len(b) == 0 {
		return 0
	}
	return b[0]
}
