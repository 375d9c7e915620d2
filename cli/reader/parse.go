package reader

import (
	"encoding/json"
	"errors"

	"github.com/lookervault/lookervault/codec"
)

// DecodePayload converts a stored content blob into JSON for display.
// Key order from the original Looker payload is preserved.
func DecodePayload(blob []byte) (json.RawMessage, error) {
	if len(blob) == 0 {
		return nil, errors.New("empty payload")
	}
	v, err := codec.Decode(blob)
	if err != nil {
		return nil, err
	}
	return codec.EncodeJSON(v)
}
