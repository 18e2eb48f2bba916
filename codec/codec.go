// Package codec turns cached collections into bytes and back.
//
// A Serializer works on arbitrary Go values (the engine hands it slices
// and maps of descriptors). Codec[V] is the typed view used at call
// sites; Typed adapts any Serializer into a Codec[V].
package codec

import "fmt"

// Serializer encodes and decodes arbitrary values.
// Unmarshal receives a pointer to the destination.
type Serializer interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(b []byte, v any) error
}

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Typed is a Codec[V] backed by a Serializer.
type Typed[V any] struct {
	S Serializer
}

var _ Codec[[]string] = Typed[[]string]{}

// For returns the typed view of s for V.
func For[V any](s Serializer) Typed[V] { return Typed[V]{S: s} }

func (c Typed[V]) Encode(v V) ([]byte, error) { return c.S.Marshal(v) }
func (c Typed[V]) Decode(b []byte) (V, error) {
	var v V
	err := c.S.Unmarshal(b, &v)
	return v, err
}

// ByName resolves the serializers shipped with this package:
// "json" (or ""), "msgpack", "cbor".
func ByName(name string) (Serializer, error) {
	switch name {
	case "", "json":
		return JSON{}, nil
	case "msgpack":
		return Msgpack{}, nil
	case "cbor":
		return NewCBOR(false)
	default:
		return nil, fmt.Errorf("codec: unknown serializer %q", name)
	}
}
