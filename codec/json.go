package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// DecodeJSON parses a JSON document into a payload tree, preserving object
// key order and distinguishing integral from fractional numbers. JSON from
// the Looker API enters the codec through this function so that the
// canonical msgpack bytes reflect the API's own field ordering.
func DecodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeJSONValue(dec)
	if err != nil {
		return nil, &DeserializationError{Msg: "invalid JSON", Err: err}
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, &DeserializationError{Msg: "trailing JSON content"}
	}
	return v, nil
}

func decodeJSONValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			m := NewMap()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is not a string: %v", keyTok)
				}
				val, err := decodeJSONValue(dec)
				if err != nil {
					return nil, err
				}
				m.Set(key, val)
			}
			// Consume closing '}'
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return m, nil
		case '[':
			arr := []any{}
			for dec.More() {
				val, err := decodeJSONValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %v", t)
		}
	case json.Number:
		return coerceNumber(t)
	case string:
		return t, nil
	case bool:
		return t, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("unexpected token %v", tok)
	}
}

// coerceNumber keeps integral JSON numbers as int64 and everything else
// as float64, so numeric types survive the JSON -> msgpack -> JSON cycle.
func coerceNumber(n json.Number) (any, error) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("unparseable number %q: %w", s, err)
	}
	return f, nil
}

// EncodeJSON renders a payload tree as JSON with mapping keys in their
// preserved order. Used when submitting payloads back to the Looker API.
func EncodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeJSONValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeJSONValue(buf *bytes.Buffer, v any) error {
	switch x := v.(type) {
	case *Map:
		if x == nil {
			buf.WriteString("null")
			return nil
		}
		buf.WriteByte('{')
		for i, p := range x.pairs {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(p.Key)
			if err != nil {
				return &SerializationError{Msg: "object key", Err: err}
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := encodeJSONValue(buf, p.Value); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case []any:
		buf.WriteByte('[')
		for i, elem := range x {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeJSONValue(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case nil, bool, int, int64, uint64, float64, string, []byte:
		out, err := json.Marshal(x)
		if err != nil {
			return &SerializationError{Msg: "scalar", Err: err}
		}
		buf.Write(out)
		return nil
	default:
		return &SerializationError{Msg: fmt.Sprintf("unencodable type %T", v)}
	}
}
