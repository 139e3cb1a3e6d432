package serialize

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedType indicates no registered type spec matches the requested type.
	// It is a configuration error: the caller asked to snapshot a value shape the registry does not know.
	ErrUnsupportedType = errors.New("serialize: no serializer registered for type")
	// ErrValueType indicates a serializer was handed a value it cannot encode.
	ErrValueType = errors.New("serialize: unexpected value type")
	// ErrCorrupt indicates the input bytes are truncated or malformed.
	ErrCorrupt = errors.New("serialize: corrupt input")
	// ErrRegistryFrozen indicates Register was called after Freeze.
	ErrRegistryFrozen = errors.New("serialize: registry is frozen")
	// ErrNilSerializer indicates Register was called without a serializer.
	ErrNilSerializer = errors.New("serialize: serializer is nil")
	// ErrInvalidSpec indicates Register was called with a zero TypeSpec.
	ErrInvalidSpec = errors.New("serialize: type spec is invalid")
)

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorrupt, fmt.Sprintf(format, args...))
}
