package serialize

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"slices"
)

// MaxLength bounds the byte length accepted for strings and binary blobs on decode.
const MaxLength = 16 << 20

const readChunk = 64 << 10

const (
	flagAbsent  byte = 0
	flagPresent byte = 1
)

// Encoder is the write side of the byte channel used by serializers.
type Encoder interface {
	WriteByte(b byte) error
	WriteBoolean(v bool) error
	// WriteSmallInt writes a non-negative int using an unsigned varint.
	WriteSmallInt(v int) error
	// WriteInt writes a signed int using a zigzag varint.
	WriteInt(v int) error
	WriteString(s string) error
	// WriteNullableString writes a presence flag followed by s when present is true.
	WriteNullableString(s string, present bool) error
	WriteBinary(b []byte) error
}

// Decoder is the read side of the byte channel used by serializers.
// Every failure it reports matches ErrCorrupt.
type Decoder interface {
	ReadByte() (byte, error)
	ReadBoolean() (bool, error)
	ReadSmallInt() (int, error)
	ReadInt() (int, error)
	ReadString() (string, error)
	ReadNullableString() (string, bool, error)
	ReadBinary() ([]byte, error)
}

// BinaryEncoder writes the compact varint-prefixed wire form to an io.Writer.
type BinaryEncoder struct {
	w       io.Writer
	scratch [binary.MaxVarintLen64]byte
}

// NewEncoder constructs a BinaryEncoder writing to w.
func NewEncoder(w io.Writer) *BinaryEncoder {
	return &BinaryEncoder{w: w}
}

// WriteByte writes a single raw byte.
func (e *BinaryEncoder) WriteByte(b byte) error {
	e.scratch[0] = b
	_, err := e.w.Write(e.scratch[:1])
	return err
}

// WriteBoolean writes 1 for true and 0 for false.
func (e *BinaryEncoder) WriteBoolean(v bool) error {
	if v {
		return e.WriteByte(1)
	}
	return e.WriteByte(0)
}

// WriteSmallInt writes v as an unsigned varint. Negative values are rejected.
func (e *BinaryEncoder) WriteSmallInt(v int) error {
	if v < 0 {
		return fmt.Errorf("serialize: small int must not be negative, got %d", v)
	}
	n := binary.PutUvarint(e.scratch[:], uint64(v))
	_, err := e.w.Write(e.scratch[:n])
	return err
}

// WriteInt writes v as a zigzag varint.
func (e *BinaryEncoder) WriteInt(v int) error {
	n := binary.PutVarint(e.scratch[:], int64(v))
	_, err := e.w.Write(e.scratch[:n])
	return err
}

// WriteString writes the byte length of s followed by its bytes.
func (e *BinaryEncoder) WriteString(s string) error {
	if err := e.WriteSmallInt(len(s)); err != nil {
		return err
	}
	if len(s) == 0 {
		return nil
	}
	_, err := io.WriteString(e.w, s)
	return err
}

// WriteNullableString writes a presence flag and, when present, the string.
func (e *BinaryEncoder) WriteNullableString(s string, present bool) error {
	if !present {
		return e.WriteByte(flagAbsent)
	}
	if err := e.WriteByte(flagPresent); err != nil {
		return err
	}
	return e.WriteString(s)
}

// WriteBinary writes the length of b followed by its bytes.
func (e *BinaryEncoder) WriteBinary(b []byte) error {
	if err := e.WriteSmallInt(len(b)); err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	_, err := e.w.Write(b)
	return err
}

// BinaryDecoder reads the wire form produced by BinaryEncoder.
type BinaryDecoder struct {
	r io.Reader
	b io.ByteReader
}

// NewDecoder constructs a BinaryDecoder reading from r. Readers that do not
// implement io.ByteReader are wrapped in a bufio.Reader, which may read ahead.
func NewDecoder(r io.Reader) *BinaryDecoder {
	if br, ok := r.(interface {
		io.Reader
		io.ByteReader
	}); ok {
		return &BinaryDecoder{r: br, b: br}
	}
	buffered := bufio.NewReader(r)
	return &BinaryDecoder{r: buffered, b: buffered}
}

// ReadByte reads a single raw byte.
func (d *BinaryDecoder) ReadByte() (byte, error) {
	b, err := d.b.ReadByte()
	if err != nil {
		return 0, readFailure("byte", err)
	}
	return b, nil
}

// ReadBoolean reads a byte that must be 0 or 1.
func (d *BinaryDecoder) ReadBoolean() (bool, error) {
	b, err := d.b.ReadByte()
	if err != nil {
		return false, readFailure("boolean", err)
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, corrupt("invalid boolean byte 0x%02x", b)
	}
}

// ReadSmallInt reads an unsigned varint that must fit in an int.
func (d *BinaryDecoder) ReadSmallInt() (int, error) {
	v, err := binary.ReadUvarint(d.b)
	if err != nil {
		return 0, readFailure("small int", err)
	}
	if v > math.MaxInt {
		return 0, corrupt("small int %d overflows int", v)
	}
	return int(v), nil
}

// ReadInt reads a zigzag varint.
func (d *BinaryDecoder) ReadInt() (int, error) {
	v, err := binary.ReadVarint(d.b)
	if err != nil {
		return 0, readFailure("int", err)
	}
	if v > math.MaxInt || v < math.MinInt {
		return 0, corrupt("int %d overflows int", v)
	}
	return int(v), nil
}

// ReadString reads a length-prefixed string.
func (d *BinaryDecoder) ReadString() (string, error) {
	buf, err := d.readBlock("string")
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

// ReadNullableString reads a presence flag and, when set, a string.
// The flag byte must be 0 or 1.
func (d *BinaryDecoder) ReadNullableString() (string, bool, error) {
	flag, err := d.b.ReadByte()
	if err != nil {
		return "", false, readFailure("nullable string flag", err)
	}
	switch flag {
	case flagAbsent:
		return "", false, nil
	case flagPresent:
		s, err := d.ReadString()
		if err != nil {
			return "", false, err
		}
		return s, true, nil
	default:
		return "", false, corrupt("invalid nullable string flag 0x%02x", flag)
	}
}

// ReadBinary reads a length-prefixed byte slice.
func (d *BinaryDecoder) ReadBinary() ([]byte, error) {
	return d.readBlock("binary")
}

func (d *BinaryDecoder) readBlock(what string) ([]byte, error) {
	n, err := d.ReadSmallInt()
	if err != nil {
		return nil, err
	}
	if n > MaxLength {
		return nil, corrupt("%s length %d exceeds limit %d", what, n, MaxLength)
	}
	if lr, ok := d.r.(interface{ Len() int }); ok && n > lr.Len() {
		return nil, corrupt("%s length %d exceeds remaining input %d", what, n, lr.Len())
	}
	if n <= readChunk {
		buf := make([]byte, n)
		if _, err := io.ReadFull(d.r, buf); err != nil {
			return nil, readFailure(what, err)
		}
		return buf, nil
	}

	// Unknown input length: grow as bytes arrive so a bogus prefix cannot
	// force a MaxLength allocation.
	buf := make([]byte, 0, readChunk)
	for len(buf) < n {
		chunk := min(n-len(buf), readChunk)
		start := len(buf)
		buf = slices.Grow(buf, chunk)[:start+chunk]
		if _, err := io.ReadFull(d.r, buf[start:]); err != nil {
			return nil, readFailure(what, err)
		}
	}
	return buf, nil
}

func readFailure(what string, err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return corrupt("%s: unexpected end of input", what)
	}
	return fmt.Errorf("%w: %s: %w", ErrCorrupt, what, err)
}
