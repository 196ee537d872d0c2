package websocket

import (
	"encoding/json"
	"fmt"

	"github.com/nfrund/livedash/internal/transport"
)

// Encode builds the wire frame for event carrying payload. A payload that is
// already json.RawMessage is embedded as is.
func Encode(event string, payload any) ([]byte, error) {
	var data json.RawMessage
	switch p := payload.(type) {
	case nil:
	case json.RawMessage:
		data = p
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", event, err)
		}
		data = b
	}
	return json.Marshal(transport.Frame{Event: event, Data: data})
}

// Decode parses a wire frame.
func Decode(raw []byte) (transport.Frame, error) {
	var f transport.Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return f, err
	}
	if f.Event == "" {
		return f, fmt.Errorf("frame has no event name")
	}
	return f, nil
}
