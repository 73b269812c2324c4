package measure

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Codec serializes upstream payloads.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(b []byte, v any) error
	Name() string
}

// NewCodec returns the codec for "json" or "cbor".
func NewCodec(format string) (Codec, error) {
	switch format {
	case "", "json":
		return jsonCodec{}, nil
	case "cbor":
		em, err := cbor.CoreDetEncOptions().EncMode()
		if err != nil {
			return nil, fmt.Errorf("measure: cbor encoder: %w", err)
		}
		return cborCodec{enc: em}, nil
	default:
		return nil, fmt.Errorf("measure: unknown payload format %q", format)
	}
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)   { return json.Marshal(v) }
func (jsonCodec) Unmarshal(b []byte, v any) error { return json.Unmarshal(b, v) }
func (jsonCodec) Name() string                    { return "json" }

type cborCodec struct {
	enc cbor.EncMode
}

func (c cborCodec) Marshal(v any) ([]byte, error)   { return c.enc.Marshal(v) }
func (c cborCodec) Unmarshal(b []byte, v any) error { return cbor.Unmarshal(b, v) }
func (c cborCodec) Name() string                    { return "cbor" }
