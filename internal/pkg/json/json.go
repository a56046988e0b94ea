package json

import (
	"bytes"

	gojson "github.com/goccy/go-json"
)

type RawMessage = gojson.RawMessage

func Marshal(v any) ([]byte, error) { return gojson.Marshal(v) }

func Unmarshal(data []byte, v any) error { return gojson.Unmarshal(data, v) }

func Valid(data []byte) bool { return gojson.Valid(data) }

// Pretty re-indents an already encoded document with two spaces, keeping key
// order as it came in.
func Pretty(data []byte) ([]byte, error) {
	var compact bytes.Buffer
	if err := gojson.Compact(&compact, data); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := gojson.Indent(&buf, compact.Bytes(), "", "  "); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// MarshalPretty encodes v compactly and then indents it. Map keys come out
// sorted, so equal values always produce equal bytes.
func MarshalPretty(v any) ([]byte, error) {
	data, err := gojson.Marshal(v)
	if err != nil {
		return nil, err
	}
	return Pretty(data)
}
