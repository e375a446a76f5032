package queue

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Delivery is one queue entry handed to a Handler.
type Delivery struct {
	ID    string
	Queue string
	Body  []byte
}

// Decode unmarshals the JSON body into v.
func (d Delivery) Decode(v interface{}) error {
	if err := json.Unmarshal(d.Body, v); err != nil {
		return fmt.Errorf("queue %s: decode %s: %w", d.Queue, d.ID, err)
	}
	return nil
}

// Encode renders payload as base64-wrapped JSON.
func Encode(payload interface{}) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// decodeBody accepts base64-wrapped JSON as well as raw JSON, since some
// producers skip the wrapping.
func decodeBody(v interface{}) ([]byte, error) {
	var raw []byte
	switch val := v.(type) {
	case string:
		raw = []byte(val)
	case []byte:
		raw = val
	default:
		return nil, fmt.Errorf("missing %q field", bodyField)
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		if !json.Valid(trimmed) {
			return nil, fmt.Errorf("invalid JSON body")
		}
		return trimmed, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(string(trimmed))
	if err != nil {
		return nil, fmt.Errorf("body is neither JSON nor base64: %w", err)
	}
	if !json.Valid(decoded) {
		return nil, fmt.Errorf("invalid JSON body")
	}
	return decoded, nil
}
