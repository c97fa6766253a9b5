package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/conneroisu/flight/internal/flighterr"
	"github.com/conneroisu/flight/internal/node"
)

// MarshalValue serializes an encoded value tree (nil, bool, string,
// numbers, []interface{}, *node.Props) to its JSON payload form. Props
// marshal with keys in insertion order, so output is byte-stable for a
// given tree.
func MarshalValue(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", flighterr.NewInternalError("marshaling element payload", err)
	}

	return string(raw), nil
}

// UnmarshalValue parses a JSON payload into the generic value tree the
// decoder operates on. Objects become *node.Props with key order
// preserved; numbers stay as json.Number so integers survive untouched.
func UnmarshalValue(data []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return nil, flighterr.NewParseError("invalid element payload", err)
	}

	// Trailing garbage after the value is malformed.
	if _, err := dec.Token(); err != io.EOF {
		return nil, flighterr.NewParseError("trailing data after element payload", nil)
	}

	return v, nil
}

func decodeValue(dec *json.Decoder) (interface{}, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	return decodeFromToken(dec, tok)
}

func decodeFromToken(dec *json.Decoder, tok json.Token) (interface{}, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '[':
			return decodeArray(dec)
		case '{':
			return decodeObject(dec)
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", t)
		}
	default:
		// string, json.Number, bool, or nil.
		return tok, nil
	}
}

func decodeArray(dec *json.Decoder) ([]interface{}, error) {
	out := []interface{}{}
	for dec.More() {
		v, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	// Consume the closing bracket.
	if _, err := dec.Token(); err != nil {
		return nil, err
	}

	return out, nil
}

func decodeObject(dec *json.Decoder) (*node.Props, error) {
	props := node.NewProps()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("object key is %T, want string", keyTok)
		}
		v, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		props.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}

	return props, nil
}
