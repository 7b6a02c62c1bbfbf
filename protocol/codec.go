package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"nhooyr.io/websocket"

	"arenagame/world"
)

var ErrEmptyFrame = errors.New("empty frame")

type Codec interface {
	Subprotocol() string
	MessageType() websocket.MessageType
	Encode(event world.EventType, data any) ([]byte, error)
	Decode(b []byte) (Envelope, error)
}

var (
	JSON  Codec = jsonCodec{}
	Proto Codec = protoCodec{}
)

// Subprotocols lists what the server accepts, preferred first.
func Subprotocols() []string {
	return []string{SubprotocolJSON, SubprotocolProto}
}

// ForSubprotocol picks the codec for a negotiated subprotocol.
func ForSubprotocol(name string) Codec {
	if name == SubprotocolProto {
		return Proto
	}
	return JSON
}

type jsonCodec struct{}

func (jsonCodec) Subprotocol() string                { return SubprotocolJSON }
func (jsonCodec) MessageType() websocket.MessageType { return websocket.MessageText }

func (jsonCodec) Encode(event world.EventType, data any) ([]byte, error) {
	if event == "" {
		return nil, errors.New("encode: empty event type")
	}
	env := Envelope{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %q: %w", event, err)
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

func (jsonCodec) Decode(b []byte) (Envelope, error) {
	if len(b) == 0 {
		return Envelope{}, ErrEmptyFrame
	}
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, errors.New("decode envelope: missing event")
	}
	return env, nil
}

// protoCodec carries the same envelope as a google.protobuf.Struct in a
// binary frame. Payloads go through their JSON form, so both codecs agree on
// field names.
type protoCodec struct{}

func (protoCodec) Subprotocol() string                { return SubprotocolProto }
func (protoCodec) MessageType() websocket.MessageType { return websocket.MessageBinary }

func (protoCodec) Encode(event world.EventType, data any) ([]byte, error) {
	if event == "" {
		return nil, errors.New("encode: empty event type")
	}
	fields := map[string]any{"event": string(event)}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %q: %w", event, err)
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return nil, fmt.Errorf("encode %q: %w", event, err)
		}
		fields["data"] = generic
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode %q: %w", event, err)
	}
	return proto.Marshal(s)
}

func (protoCodec) Decode(b []byte) (Envelope, error) {
	if len(b) == 0 {
		return Envelope{}, ErrEmptyFrame
	}
	var s structpb.Struct
	if err := proto.Unmarshal(b, &s); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	fields := s.AsMap()
	event, _ := fields["event"].(string)
	if event == "" {
		return Envelope{}, errors.New("decode envelope: missing event")
	}
	env := Envelope{Event: world.EventType(event)}
	if data, ok := fields["data"]; ok {
		raw, err := json.Marshal(data)
		if err != nil {
			return Envelope{}, fmt.Errorf("decode envelope: %w", err)
		}
		env.Data = raw
	}
	return env, nil
}
