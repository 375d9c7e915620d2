package codec

import (
	"reflect"
	"testing"
)

func TestDecodeJSONPreservesOrderAndTypes(t *testing.T) {
	raw := []byte(`{"id":"42","title":"Sales","user_id":7,"score":0.5,"archived":false,"parent":null,"tags":["a","b"],"nested":{"z":1,"a":2}}`)

	v, err := DecodeJSON(raw)
	if err != nil {
		t.Fatalf("DecodeJSON error: %v", err)
	}
	m, ok := v.(*Map)
	if !ok {
		t.Fatalf("DecodeJSON returned %T, want *Map", v)
	}

	wantKeys := []string{"id", "title", "user_id", "score", "archived", "parent", "tags", "nested"}
	if !reflect.DeepEqual(m.Keys(), wantKeys) {
		t.Errorf("key order = %v, want %v", m.Keys(), wantKeys)
	}

	if v, _ := m.Get("user_id"); v != int64(7) {
		t.Errorf("user_id = %v (%T), want int64", v, v)
	}
	if v, _ := m.Get("score"); v != 0.5 {
		t.Errorf("score = %v (%T), want float64", v, v)
	}

	nested, _ := m.Get("nested")
	nm := nested.(*Map)
	if !reflect.DeepEqual(nm.Keys(), []string{"z", "a"}) {
		t.Errorf("nested key order = %v, want [z a]", nm.Keys())
	}
}

func TestJSONRoundTrip(t *testing.T) {
	raw := []byte(`{"b":1,"a":[true,null,2.25],"c":{"y":"x"}}`)

	v, err := DecodeJSON(raw)
	if err != nil {
		t.Fatalf("DecodeJSON error: %v", err)
	}
	out, err := EncodeJSON(v)
	if err != nil {
		t.Fatalf("EncodeJSON error: %v", err)
	}
	if string(out) != string(raw) {
		t.Errorf("round trip changed document:\n got %s\nwant %s", out, raw)
	}
}

func TestJSONThroughCodec(t *testing.T) {
	// The full path an item takes: API JSON -> tree -> msgpack -> tree -> JSON.
	raw := []byte(`{"id":123,"title":"Orders","settings":{"tile_size":100,"ratio":1.5}}`)

	tree, err := DecodeJSON(raw)
	if err != nil {
		t.Fatalf("DecodeJSON error: %v", err)
	}
	blob, err := Encode(tree)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	back, err := Decode(blob)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	out, err := EncodeJSON(back)
	if err != nil {
		t.Fatalf("EncodeJSON error: %v", err)
	}
	if string(out) != string(raw) {
		t.Errorf("codec cycle changed document:\n got %s\nwant %s", out, raw)
	}
}

func TestDecodeJSONMalformed(t *testing.T) {
	for _, raw := range []string{"", "{", `{"a":}`, `[1,2`, `{"a":1} extra`} {
		if _, err := DecodeJSON([]byte(raw)); err == nil {
			t.Errorf("DecodeJSON(%q) accepted malformed input", raw)
		}
	}
}
