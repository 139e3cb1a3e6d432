package serialize

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"runtime"
	"strings"
	"testing"
)

func TestChannelPrimitivesRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	steps := []func() error{
		func() error { return enc.WriteByte(0xfe) },
		func() error { return enc.WriteBoolean(true) },
		func() error { return enc.WriteBoolean(false) },
		func() error { return enc.WriteSmallInt(300) },
		func() error { return enc.WriteInt(-12345) },
		func() error { return enc.WriteInt(math.MaxInt32) },
		func() error { return enc.WriteString("héllo") },
		func() error { return enc.WriteString("") },
		func() error { return enc.WriteNullableString("", true) },
		func() error { return enc.WriteNullableString("ignored", false) },
		func() error { return enc.WriteBinary([]byte{1, 2, 3}) },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("write step %d returned error: %v", i, err)
		}
	}

	dec := NewDecoder(bytes.NewReader(buf.Bytes()))

	if b, err := dec.ReadByte(); err != nil || b != 0xfe {
		t.Fatalf("ReadByte = %x, %v", b, err)
	}
	if v, err := dec.ReadBoolean(); err != nil || !v {
		t.Fatalf("ReadBoolean = %v, %v", v, err)
	}
	if v, err := dec.ReadBoolean(); err != nil || v {
		t.Fatalf("ReadBoolean = %v, %v", v, err)
	}
	if v, err := dec.ReadSmallInt(); err != nil || v != 300 {
		t.Fatalf("ReadSmallInt = %d, %v", v, err)
	}
	if v, err := dec.ReadInt(); err != nil || v != -12345 {
		t.Fatalf("ReadInt = %d, %v", v, err)
	}
	if v, err := dec.ReadInt(); err != nil || v != math.MaxInt32 {
		t.Fatalf("ReadInt = %d, %v", v, err)
	}
	if s, err := dec.ReadString(); err != nil || s != "héllo" {
		t.Fatalf("ReadString = %q, %v", s, err)
	}
	if s, err := dec.ReadString(); err != nil || s != "" {
		t.Fatalf("ReadString = %q, %v", s, err)
	}
	if s, ok, err := dec.ReadNullableString(); err != nil || !ok || s != "" {
		t.Fatalf("ReadNullableString = %q, %v, %v", s, ok, err)
	}
	if s, ok, err := dec.ReadNullableString(); err != nil || ok || s != "" {
		t.Fatalf("ReadNullableString = %q, %v, %v", s, ok, err)
	}
	if b, err := dec.ReadBinary(); err != nil || !bytes.Equal(b, []byte{1, 2, 3}) {
		t.Fatalf("ReadBinary = %v, %v", b, err)
	}
	if _, err := dec.ReadByte(); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt at end of input, got %v", err)
	}
}

func TestStringWireLayout(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	if err := enc.WriteString("ab"); err != nil {
		t.Fatalf("WriteString returned error: %v", err)
	}
	if err := enc.WriteNullableString("c", true); err != nil {
		t.Fatalf("WriteNullableString returned error: %v", err)
	}
	if err := enc.WriteNullableString("", false); err != nil {
		t.Fatalf("WriteNullableString returned error: %v", err)
	}

	want := []byte{0x02, 'a', 'b', 0x01, 0x01, 'c', 0x00}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("expected % x, got % x", want, buf.Bytes())
	}
}

func TestDecoderRejectsMalformedInput(t *testing.T) {
	cases := []struct {
		name string
		data []byte
		read func(Decoder) error
	}{
		{
			name: "truncated string body",
			data: []byte{0x05, 'a', 'b'},
			read: func(d Decoder) error { _, err := d.ReadString(); return err },
		},
		{
			name: "missing string length",
			data: nil,
			read: func(d Decoder) error { _, err := d.ReadString(); return err },
		},
		{
			name: "invalid nullable flag",
			data: []byte{0x02, 0x00},
			read: func(d Decoder) error { _, _, err := d.ReadNullableString(); return err },
		},
		{
			name: "truncated nullable body",
			data: []byte{0x01, 0x03, 'x'},
			read: func(d Decoder) error { _, _, err := d.ReadNullableString(); return err },
		},
		{
			name: "invalid boolean",
			data: []byte{0x07},
			read: func(d Decoder) error { _, err := d.ReadBoolean(); return err },
		},
		{
			name: "length over limit",
			data: []byte{0xff, 0xff, 0xff, 0xff, 0x0f},
			read: func(d Decoder) error { _, err := d.ReadBinary(); return err },
		},
		{
			name: "truncated varint",
			data: []byte{0x80},
			read: func(d Decoder) error { _, err := d.ReadInt(); return err },
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.read(NewDecoder(bytes.NewReader(tc.data)))
			if !errors.Is(err, ErrCorrupt) {
				t.Fatalf("expected ErrCorrupt, got %v", err)
			}
			if errors.Is(err, ErrUnsupportedType) {
				t.Fatalf("decode errors must not look like configuration errors: %v", err)
			}
		})
	}
}

func TestDecoderWrapsPlainReaders(t *testing.T) {
	var buf bytes.Buffer
	if err := NewEncoder(&buf).WriteString("streamed"); err != nil {
		t.Fatalf("WriteString returned error: %v", err)
	}

	dec := NewDecoder(io.MultiReader(strings.NewReader(buf.String())))
	s, err := dec.ReadString()
	if err != nil || s != "streamed" {
		t.Fatalf("ReadString = %q, %v", s, err)
	}
}

func TestEncoderPropagatesWriteErrors(t *testing.T) {
	boom := errors.New("boom")
	enc := NewEncoder(failingWriter{err: boom})
	if err := enc.WriteString("x"); !errors.Is(err, boom) {
		t.Fatalf("expected writer error, got %v", err)
	}
	if err := enc.WriteSmallInt(-1); err == nil {
		t.Fatalf("expected negative small int to fail")
	}
}

func TestUnmarshalRejectsTrailingBytes(t *testing.T) {
	serializer := namedSerializer()
	data, err := Marshal(serializer, plainName("x"))
	if err != nil {
		t.Fatalf("Marshal returned error: %v", err)
	}

	value, err := Unmarshal(serializer, data)
	if err != nil {
		t.Fatalf("Unmarshal returned error: %v", err)
	}
	if value != plainName("x") {
		t.Fatalf("unexpected value %#v", value)
	}

	if _, err := Unmarshal(serializer, append(data, 0x00)); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt for trailing bytes, got %v", err)
	}

	var buf bytes.Buffer
	buf.Write(data)
	got, err := ReadAs[named](serializer, NewDecoder(&buf))
	if err != nil || got.Name() != "x" {
		t.Fatalf("ReadAs = %v, %v", got, err)
	}
	if _, err := ReadAs[labeled](serializer, NewDecoder(bytes.NewReader(data))); !errors.Is(err, ErrValueType) {
		t.Fatalf("expected ErrValueType, got %v", err)
	}
}

type failingWriter struct {
	err error
}

func (w failingWriter) Write([]byte) (int, error) {
	return 0, w.err
}

func TestDecoderBoundsAllocationForOversizedPrefix(t *testing.T) {
	data := binary.AppendUvarint(nil, MaxLength)
	data = append(data, 'a', 'b')

	cases := map[string]func() Decoder{
		"sized reader": func() Decoder { return NewDecoder(bytes.NewReader(data)) },
		"plain reader": func() Decoder { return NewDecoder(struct{ io.Reader }{bytes.NewReader(data)}) },
	}
	for name, newDecoder := range cases {
		t.Run(name, func(t *testing.T) {
			dec := newDecoder()

			var before, after runtime.MemStats
			runtime.ReadMemStats(&before)
			_, err := dec.ReadString()
			runtime.ReadMemStats(&after)

			if !errors.Is(err, ErrCorrupt) {
				t.Fatalf("expected ErrCorrupt, got %v", err)
			}
			if allocated := after.TotalAlloc - before.TotalAlloc; allocated > 1<<20 {
				t.Fatalf("expected bounded allocation for a truncated string, got %d bytes", allocated)
			}
		})
	}
}

func TestDecoderReadsLargeBlockInChunks(t *testing.T) {
	want := bytes.Repeat([]byte{0x5a}, 3*readChunk+17)
	var buf bytes.Buffer
	if err := NewEncoder(&buf).WriteBinary(want); err != nil {
		t.Fatalf("WriteBinary returned error: %v", err)
	}

	got, err := NewDecoder(struct{ io.Reader }{&buf}).ReadBinary()
	if err != nil {
		t.Fatalf("ReadBinary returned error: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("expected %d bytes back, got %d", len(want), len(got))
	}
}
