package entity

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Codec converts entities to and from their persisted payload.
// Payloads must be JSON documents; the store digests them canonically.
type Codec[E Entity] interface {
	Encode(e E) ([]byte, error)
	Decode(data []byte) (E, error)
}

// JSONCodec stores entities as JSON. E must round-trip through
// encoding/json semantics; Record does.
type JSONCodec[E Entity] struct{}

// Encode implements Codec.
func (JSONCodec[E]) Encode(e E) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %q: %w", e.ID(), err)
	}
	return data, nil
}

// Decode implements Codec.
func (JSONCodec[E]) Decode(data []byte) (E, error) {
	var e E
	if err := json.Unmarshal(data, &e); err != nil {
		return e, fmt.Errorf("decode entity: %w", err)
	}
	return e, nil
}
