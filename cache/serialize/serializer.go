package serialize

import (
	"bytes"
	"fmt"
	"reflect"
)

// Serializer converts values of one declared type to and from the byte channel.
// Implementations hold no mutable state and must be deterministic.
type Serializer interface {
	Write(enc Encoder, value any) error
	Read(dec Decoder) (any, error)
}

// Func adapts a typed write/read pair into a Serializer.
func Func[T any](write func(Encoder, T) error, read func(Decoder) (T, error)) Serializer {
	return &funcSerializer[T]{write: write, read: read}
}

type funcSerializer[T any] struct {
	write func(Encoder, T) error
	read  func(Decoder) (T, error)
}

func (s *funcSerializer[T]) Write(enc Encoder, value any) error {
	typed, ok := value.(T)
	if !ok {
		return fmt.Errorf("%w: want %s, got %T", ErrValueType, reflect.TypeFor[T](), value)
	}
	return s.write(enc, typed)
}

func (s *funcSerializer[T]) Read(dec Decoder) (any, error) {
	return s.read(dec)
}

// ReadAs reads a value with s and asserts it to T.
func ReadAs[T any](s Serializer, dec Decoder) (T, error) {
	var zero T
	value, err := s.Read(dec)
	if err != nil {
		return zero, err
	}
	typed, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("%w: want %s, got %T", ErrValueType, reflect.TypeFor[T](), value)
	}
	return typed, nil
}

// Marshal encodes value with s into a fresh byte slice.
func Marshal(s Serializer, value any) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.Write(NewEncoder(&buf), value); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes data with s. Trailing bytes after the value are reported as corruption.
func Unmarshal(s Serializer, data []byte) (any, error) {
	reader := bytes.NewReader(data)
	value, err := s.Read(NewDecoder(reader))
	if err != nil {
		return nil, err
	}
	if reader.Len() > 0 {
		return nil, corrupt("%d trailing bytes after value", reader.Len())
	}
	return value, nil
}
