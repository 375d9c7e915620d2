// Package codec provides deterministic binary encoding of Looker API
// payloads.
//
// A payload is a tree of ordered mappings (*Map), sequences ([]any),
// strings, int64s, float64s, bools, nils, and raw byte strings. Encoding
// is msgpack with mapping keys written in insertion order, so the same
// payload always produces the same bytes and decoding reproduces the
// structural shape, key order, and numeric types exactly. Decoding never
// executes code.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// SerializationError indicates a payload that cannot be encoded.
type SerializationError struct {
	Msg string
	Err error
}

func (e *SerializationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("serialization: %s: %v", e.Msg, e.Err)
	}
	return "serialization: " + e.Msg
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// DeserializationError indicates a malformed blob.
type DeserializationError struct {
	Msg string
	Err error
}

func (e *DeserializationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("deserialization: %s: %v", e.Msg, e.Err)
	}
	return "deserialization: " + e.Msg
}

func (e *DeserializationError) Unwrap() error {
	return e.Err
}

// Pair is one key/value entry of an ordered mapping.
type Pair struct {
	Key   string
	Value any
}

// Map is a mapping that preserves key insertion order.
// It is the canonical representation of a Looker API object.
type Map struct {
	pairs []Pair
	index map[string]int
}

// NewMap creates an empty ordered mapping.
func NewMap() *Map {
	return &Map{index: make(map[string]int)}
}

// Len returns the number of entries.
func (m *Map) Len() int {
	return len(m.pairs)
}

// Get returns the value for key and whether it is present.
func (m *Map) Get(key string) (any, bool) {
	i, ok := m.index[key]
	if !ok {
		return nil, false
	}
	return m.pairs[i].Value, true
}

// Set inserts or replaces the value for key. Insertion order is preserved;
// replacing an existing key keeps its original position.
func (m *Map) Set(key string, value any) {
	if i, ok := m.index[key]; ok {
		m.pairs[i].Value = value
		return
	}
	m.index[key] = len(m.pairs)
	m.pairs = append(m.pairs, Pair{Key: key, Value: value})
}

// Delete removes key if present.
func (m *Map) Delete(key string) {
	i, ok := m.index[key]
	if !ok {
		return
	}
	m.pairs = append(m.pairs[:i], m.pairs[i+1:]...)
	delete(m.index, key)
	for j := i; j < len(m.pairs); j++ {
		m.index[m.pairs[j].Key] = j
	}
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	keys := make([]string, len(m.pairs))
	for i, p := range m.pairs {
		keys[i] = p.Key
	}
	return keys
}

// Pairs returns the entries in insertion order. The slice is shared;
// callers must not mutate it.
func (m *Map) Pairs() []Pair {
	return m.pairs
}

// Encode serializes a payload tree to its canonical msgpack bytes.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := encodeValue(enc, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeValue(enc *msgpack.Encoder, v any) error {
	switch x := v.(type) {
	case nil:
		return enc.EncodeNil()
	case bool:
		return enc.EncodeBool(x)
	case int:
		return enc.EncodeInt(int64(x))
	case int64:
		return enc.EncodeInt(x)
	case uint64:
		return enc.EncodeUint(x)
	case float64:
		return enc.EncodeFloat64(x)
	case string:
		return enc.EncodeString(x)
	case []byte:
		return enc.EncodeBytes(x)
	case []any:
		if err := enc.EncodeArrayLen(len(x)); err != nil {
			return err
		}
		for _, elem := range x {
			if err := encodeValue(enc, elem); err != nil {
				return err
			}
		}
		return nil
	case *Map:
		if x == nil {
			return enc.EncodeNil()
		}
		if err := enc.EncodeMapLen(x.Len()); err != nil {
			return err
		}
		for _, p := range x.pairs {
			if err := enc.EncodeString(p.Key); err != nil {
				return err
			}
			if err := encodeValue(enc, p.Value); err != nil {
				return err
			}
		}
		return nil
	default:
		return &SerializationError{Msg: fmt.Sprintf("unencodable type %T", v)}
	}
}

// Decode deserializes canonical msgpack bytes back into a payload tree.
// Trailing bytes after the first value are an error.
func Decode(data []byte) (any, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.PeekCode(); !errors.Is(err, io.EOF) {
		return nil, &DeserializationError{Msg: "trailing bytes after payload"}
	}
	return v, nil
}

// Validate reports whether Decode(data) would succeed.
func Validate(data []byte) bool {
	_, err := Decode(data)
	return err == nil
}

func decodeValue(dec *msgpack.Decoder) (any, error) {
	code, err := dec.PeekCode()
	if err != nil {
		return nil, &DeserializationError{Msg: "truncated payload", Err: err}
	}

	switch {
	case code == msgpcode.Nil:
		if err := dec.DecodeNil(); err != nil {
			return nil, &DeserializationError{Msg: "nil", Err: err}
		}
		return nil, nil

	case code == msgpcode.True || code == msgpcode.False:
		b, err := dec.DecodeBool()
		if err != nil {
			return nil, &DeserializationError{Msg: "bool", Err: err}
		}
		return b, nil

	case code == msgpcode.Uint64:
		// May exceed int64 range; keep as uint64 only when it must.
		u, err := dec.DecodeUint64()
		if err != nil {
			return nil, &DeserializationError{Msg: "uint", Err: err}
		}
		if u > uint64(1)<<63-1 {
			return u, nil
		}
		return int64(u), nil

	case msgpcode.IsFixedNum(code),
		code == msgpcode.Int8, code == msgpcode.Int16,
		code == msgpcode.Int32, code == msgpcode.Int64,
		code == msgpcode.Uint8, code == msgpcode.Uint16,
		code == msgpcode.Uint32:
		n, err := dec.DecodeInt64()
		if err != nil {
			return nil, &DeserializationError{Msg: "int", Err: err}
		}
		return n, nil

	case code == msgpcode.Float, code == msgpcode.Double:
		f, err := dec.DecodeFloat64()
		if err != nil {
			return nil, &DeserializationError{Msg: "float", Err: err}
		}
		return f, nil

	case msgpcode.IsFixedString(code), code == msgpcode.Str8,
		code == msgpcode.Str16, code == msgpcode.Str32:
		s, err := dec.DecodeString()
		if err != nil {
			return nil, &DeserializationError{Msg: "string", Err: err}
		}
		return s, nil

	case msgpcode.IsBin(code):
		b, err := dec.DecodeBytes()
		if err != nil {
			return nil, &DeserializationError{Msg: "bytes", Err: err}
		}
		return b, nil

	case msgpcode.IsFixedArray(code), code == msgpcode.Array16, code == msgpcode.Array32:
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return nil, &DeserializationError{Msg: "array length", Err: err}
		}
		arr := make([]any, n)
		for i := range arr {
			elem, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			arr[i] = elem
		}
		return arr, nil

	case msgpcode.IsFixedMap(code), code == msgpcode.Map16, code == msgpcode.Map32:
		n, err := dec.DecodeMapLen()
		if err != nil {
			return nil, &DeserializationError{Msg: "map length", Err: err}
		}
		m := NewMap()
		for i := 0; i < n; i++ {
			key, err := dec.DecodeString()
			if err != nil {
				return nil, &DeserializationError{Msg: "map key", Err: err}
			}
			val, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			m.Set(key, val)
		}
		return m, nil

	default:
		return nil, &DeserializationError{Msg: fmt.Sprintf("unsupported msgpack code 0x%02x", code)}
	}
}
