package network

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrInvalidMessage = errors.New("invalid message")
	ErrUnknownEvent   = errors.New("unknown event")
)

// MaxMessageSize bounds inbound frames; the largest valid one is an input
// message of a few dozen bytes.
const MaxMessageSize = 512

// envelope is the JSON frame: {"event": "...", "data": {...}}
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Protocol handles JSON encoding/decoding
type Protocol struct{}

// NewProtocol creates a new protocol handler
func NewProtocol() *Protocol {
	return &Protocol{}
}

// Encode frames an outbound message.
func (p *Protocol) Encode(msg Message) ([]byte, error) {
	data, err := json.Marshal(outEnvelope{Event: msg.Event(), Data: msg})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Event(), err)
	}
	return data, nil
}

// MustEncode is Encode for messages whose fields cannot fail to marshal.
func (p *Protocol) MustEncode(msg Message) []byte {
	data, err := p.Encode(msg)
	if err != nil {
		panic(err)
	}
	return data
}

// Decode validates and decodes a client frame. Anything that is not exactly
// one of the known client events with a well-formed payload is rejected.
func (p *Protocol) Decode(data []byte) (Inbound, error) {
	if len(data) == 0 || len(data) > MaxMessageSize {
		return nil, ErrInvalidMessage
	}

	var env envelope
	if err := strictUnmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	switch env.Event {
	case EventInput:
		if len(env.Data) == 0 {
			return nil, fmt.Errorf("%w: input without payload", ErrInvalidMessage)
		}
		var in InputState
		if err := strictUnmarshal(env.Data, &in); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		return InputMessage{Input: in}, nil

	case EventRequestRestart:
		return RequestRestartMessage{}, nil

	case "":
		return nil, fmt.Errorf("%w: missing event", ErrInvalidMessage)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
}

func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data")
	}
	return nil
}
