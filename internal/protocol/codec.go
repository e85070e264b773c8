package protocol

import (
	"bytes"
	"encoding/json"

	"github.com/sharetube/vectorplayer/pkg/validator"
)

// Envelope is the wire form of every message.
type Envelope struct {
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Codec encodes and decodes envelopes, validating payloads on the way in.
type Codec struct {
	validator *validator.Validator
}

func NewCodec() *Codec {
	return &Codec{validator: validator.NewValidator()}
}

func (c *Codec) EncodeCommand(cmd Command) (Envelope, error) {
	if cmd == nil {
		return Envelope{}, &ProtocolError{Reason: "nil command"}
	}
	if init, ok := cmd.(Init); ok && init.Surface != nil {
		return Envelope{}, &ProtocolError{Kind: KindInit, Reason: "surface handles cannot cross a process boundary"}
	}

	return encode(cmd.Kind(), cmd)
}

func (c *Codec) EncodeResponse(resp Response) (Envelope, error) {
	if resp == nil {
		return Envelope{}, &ProtocolError{Reason: "nil response"}
	}

	return encode(resp.Kind(), resp)
}

func (c *Codec) DecodeCommand(env Envelope) (Command, error) {
	switch env.Type {
	case KindInit:
		return decodeCommand[Init](c, env)
	case KindLoad:
		return decodeCommand[Load](c, env)
	case KindPlay:
		return decodeCommand[Play](c, env)
	case KindPause:
		return decodeCommand[Pause](c, env)
	case KindStop:
		return decodeCommand[Stop](c, env)
	case KindSeek:
		return decodeCommand[Seek](c, env)
	case KindResize:
		return decodeCommand[Resize](c, env)
	case KindSetSpeed:
		return decodeCommand[SetSpeed](c, env)
	case KindSetPlayback:
		return decodeCommand[SetPlayback](c, env)
	case KindUpdateCanvasInfo:
		return decodeCommand[UpdateCanvasInfo](c, env)
	default:
		return nil, &ProtocolError{Kind: env.Type, Reason: "unknown command type"}
	}
}

func (c *Codec) DecodeResponse(env Envelope) (Response, error) {
	switch env.Type {
	case KindReady:
		return decodeResponse[Ready](c, env)
	case KindLoaded:
		return decodeResponse[Loaded](c, env)
	case KindFrame:
		return decodeResponse[Frame](c, env)
	case KindError:
		return decodeResponse[Error](c, env)
	case KindComplete:
		return decodeResponse[Complete](c, env)
	case KindLoop:
		return decodeResponse[Loop](c, env)
	default:
		return nil, &ProtocolError{Kind: env.Type, Reason: "unknown response type"}
	}
}

func decodeCommand[T Command](c *Codec, env Envelope) (Command, error) {
	v, err := decodePayload[T](c, env)
	if err != nil {
		return nil, err
	}

	return v, nil
}

func decodeResponse[T Response](c *Codec, env Envelope) (Response, error) {
	v, err := decodePayload[T](c, env)
	if err != nil {
		return nil, err
	}

	return v, nil
}

func decodePayload[T any](c *Codec, env Envelope) (T, error) {
	var v T
	payload := bytes.TrimSpace(env.Payload)
	if len(payload) > 0 && !bytes.Equal(payload, []byte("null")) {
		if err := json.Unmarshal(payload, &v); err != nil {
			return v, &ProtocolError{Kind: env.Type, Reason: "malformed payload", Err: err}
		}
	}

	if errs, ok := c.validator.Validate(&v); !ok {
		return v, &ProtocolError{Kind: env.Type, Reason: "invalid payload", Fields: errs}
	}

	return v, nil
}

func encode(kind Kind, v any) (Envelope, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, &ProtocolError{Kind: kind, Reason: "failed to encode payload", Err: err}
	}

	return Envelope{Type: kind, Payload: payload}, nil
}

// Validate checks a command built in process, where no decoding happens.
func (c *Codec) Validate(cmd Command) error {
	if errs, ok := c.validator.Validate(cmd); !ok {
		return &ProtocolError{Kind: cmd.Kind(), Reason: "invalid payload", Fields: errs}
	}

	return nil
}
