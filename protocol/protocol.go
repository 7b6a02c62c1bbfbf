package protocol

import (
	"encoding/json"
	"fmt"

	"arenagame/world"
)

// Subprotocols a client may offer during the websocket handshake. A client
// that offers none speaks JSON.
const (
	SubprotocolJSON  = "arena.json"
	SubprotocolProto = "arena.proto"
)

// Envelope is the frame every event travels in.
type Envelope struct {
	Event world.EventType `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// DecodeData unmarshals the envelope payload into T.
func DecodeData[T any](env Envelope) (T, error) {
	var out T
	if len(env.Data) == 0 {
		return out, fmt.Errorf("empty payload for event %q", env.Event)
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return out, fmt.Errorf("decode %q payload: %w", env.Event, err)
	}
	return out, nil
}
