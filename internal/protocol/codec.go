package protocol

import (
	"encoding/json"
	"fmt"
)

// Codec encodes and decodes structured wire values to opaque byte payloads.
// JSON is the chosen wire format: it is self-describing, byte-for-byte
// round-trippable for the value shapes this protocol needs (records, lists,
// booleans, integers, strings, and opaque blobs carried as base64 strings),
// and safe to decode from an untrusted peer — unlike a language-native
// serialized-object format such as encoding/gob or Python pickle.
type Codec struct{}

// Encode serializes a structured value (typically an Envelope or a plain
// map[string]any) to its wire payload.
func (Codec) Encode(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: encode: %w", err)
	}
	return b, nil
}

// Decode parses a wire payload into a generic structured value. Callers that
// expect a record use DecodeMap.
func (Codec) Decode(payload []byte, out any) error {
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("codec: decode: %w", err)
	}
	return nil
}

// DecodeMap parses a wire payload expected to be a top-level record.
func (c Codec) DecodeMap(payload []byte) (map[string]any, error) {
	var m map[string]any
	if err := c.Decode(payload, &m); err != nil {
		return nil, err
	}
	return m, nil
}
