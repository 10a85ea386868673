package regorusapi

import (
	"encoding/json"
	"fmt"

	"connectrpc.com/connect"
)

// codecName replaces connect's protobuf JSON codec for this service.
const codecName = "json"

// JSONCodec marshals API messages with encoding/json. The messages are
// plain Go structs, so connect's protojson codec cannot serve them.
type JSONCodec struct{}

var _ connect.Codec = JSONCodec{}

// Name returns the codec name used in content-type negotiation.
func (JSONCodec) Name() string { return codecName }

// Marshal encodes msg as JSON.
func (JSONCodec) Marshal(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", msg, err)
	}
	return data, nil
}

// Unmarshal decodes JSON data into msg. Empty input leaves msg zeroed.
func (JSONCodec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("unmarshal %T: %w", msg, err)
	}
	return nil
}
