package core

const (
	// FormatBinary identifies payloads written with the serialize byte channel.
	FormatBinary = "binary"
)

// Payload contains serialized bytes plus the format and the registered type spec
// name so readers can check they are decoding the shape that was written.
type Payload struct {
	Format string
	Type   string
	Data   []byte
}
