package identity

import (
	"fmt"

	"github.com/entitycache/valuesnap/cache/serialize"
)

// CapabilitySerializer writes [group][name][version: nullable].
type CapabilitySerializer struct{}

// Write encodes any Capability. A missing version is written as an absent nullable string.
func (CapabilitySerializer) Write(enc serialize.Encoder, value any) error {
	c, ok := value.(Capability)
	if !ok || c == nil {
		return fmt.Errorf("%w: want Capability, got %T", serialize.ErrValueType, value)
	}
	if err := enc.WriteString(c.Group()); err != nil {
		return err
	}
	if err := enc.WriteString(c.Name()); err != nil {
		return err
	}
	return enc.WriteNullableString(c.Version())
}

// Read returns an ImmutableCapability.
func (CapabilitySerializer) Read(dec serialize.Decoder) (any, error) {
	group, err := dec.ReadString()
	if err != nil {
		return nil, err
	}
	name, err := dec.ReadString()
	if err != nil {
		return nil, err
	}
	version, ok, err := dec.ReadNullableString()
	if err != nil {
		return nil, err
	}
	if !ok {
		return NewCapability(group, name), nil
	}
	return NewVersionedCapability(group, name, version), nil
}

// ModuleVersionIdentifierSerializer writes [group][name][version] and reads
// back through a ModuleIdentifierFactory so decoded identifiers are canonical.
type ModuleVersionIdentifierSerializer struct {
	factory ModuleIdentifierFactory
}

// NewModuleVersionIdentifierSerializer uses factory, or a fresh InterningFactory when nil.
func NewModuleVersionIdentifierSerializer(factory ModuleIdentifierFactory) *ModuleVersionIdentifierSerializer {
	if factory == nil {
		factory = NewInterningFactory()
	}
	return &ModuleVersionIdentifierSerializer{factory: factory}
}

// Write encodes any ModuleVersionIdentifier.
func (s *ModuleVersionIdentifierSerializer) Write(enc serialize.Encoder, value any) error {
	id, ok := value.(ModuleVersionIdentifier)
	if !ok || id == nil {
		return fmt.Errorf("%w: want ModuleVersionIdentifier, got %T", serialize.ErrValueType, value)
	}
	if err := enc.WriteString(id.Group()); err != nil {
		return err
	}
	if err := enc.WriteString(id.Name()); err != nil {
		return err
	}
	return enc.WriteString(id.Version())
}

// Read returns the factory's canonical identifier for the decoded coordinates.
func (s *ModuleVersionIdentifierSerializer) Read(dec serialize.Decoder) (any, error) {
	group, err := dec.ReadString()
	if err != nil {
		return nil, err
	}
	name, err := dec.ReadString()
	if err != nil {
		return nil, err
	}
	version, err := dec.ReadString()
	if err != nil {
		return nil, err
	}
	return s.factory.ModuleWithVersion(group, name, version), nil
}

const (
	tagModuleComponent  byte = 1
	tagProjectComponent byte = 2
	tagLibraryBinary    byte = 3
	tagOpaqueComponent  byte = 4
)

// ComponentIdentifierSerializer writes a variant tag followed by the variant's fields.
type ComponentIdentifierSerializer struct{}

// Write encodes the four known variants, by value or by pointer. Other
// implementations fail with serialize.ErrValueType.
func (ComponentIdentifierSerializer) Write(enc serialize.Encoder, value any) error {
	switch id := derefComponent(value).(type) {
	case ModuleComponentIdentifier:
		return writeStrings(enc, tagModuleComponent, id.Group, id.Module, id.Version)
	case ProjectComponentIdentifier:
		return writeStrings(enc, tagProjectComponent, id.BuildPath, id.ProjectPath, id.ProjectName)
	case LibraryBinaryIdentifier:
		return writeStrings(enc, tagLibraryBinary, id.ProjectPath, id.LibraryName, id.Variant)
	case OpaqueComponentIdentifier:
		return writeStrings(enc, tagOpaqueComponent, id.Name)
	default:
		return fmt.Errorf("%w: unsupported component identifier %T", serialize.ErrValueType, value)
	}
}

// Read returns the variant named by the tag byte, by value. Unknown tags are corrupt input.
func (ComponentIdentifierSerializer) Read(dec serialize.Decoder) (any, error) {
	tag, err := dec.ReadByte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagModuleComponent:
		f, err := readStrings(dec, 3)
		if err != nil {
			return nil, err
		}
		return ModuleComponentIdentifier{Group: f[0], Module: f[1], Version: f[2]}, nil
	case tagProjectComponent:
		f, err := readStrings(dec, 3)
		if err != nil {
			return nil, err
		}
		return ProjectComponentIdentifier{BuildPath: f[0], ProjectPath: f[1], ProjectName: f[2]}, nil
	case tagLibraryBinary:
		f, err := readStrings(dec, 3)
		if err != nil {
			return nil, err
		}
		return LibraryBinaryIdentifier{ProjectPath: f[0], LibraryName: f[1], Variant: f[2]}, nil
	case tagOpaqueComponent:
		f, err := readStrings(dec, 1)
		if err != nil {
			return nil, err
		}
		return OpaqueComponentIdentifier{Name: f[0]}, nil
	default:
		return nil, fmt.Errorf("%w: unknown component identifier tag %d", serialize.ErrCorrupt, tag)
	}
}

// ArtifactIdentifierSerializer writes the owning module component followed by
// [name][type][extension: nullable][classifier: nullable].
type ArtifactIdentifierSerializer struct{}

// Write encodes empty extension and classifier as absent.
func (ArtifactIdentifierSerializer) Write(enc serialize.Encoder, value any) error {
	id, ok := value.(ModuleComponentArtifactIdentifier)
	if !ok {
		return fmt.Errorf("%w: want ModuleComponentArtifactIdentifier, got %T", serialize.ErrValueType, value)
	}
	c := id.Component
	if err := enc.WriteString(c.Group); err != nil {
		return err
	}
	if err := enc.WriteString(c.Module); err != nil {
		return err
	}
	if err := enc.WriteString(c.Version); err != nil {
		return err
	}
	if err := enc.WriteString(id.Name.Name); err != nil {
		return err
	}
	if err := enc.WriteString(id.Name.Type); err != nil {
		return err
	}
	if err := enc.WriteNullableString(id.Name.Extension, id.Name.Extension != ""); err != nil {
		return err
	}
	return enc.WriteNullableString(id.Name.Classifier, id.Name.Classifier != "")
}

// Read maps absent extension and classifier back to empty strings.
func (ArtifactIdentifierSerializer) Read(dec serialize.Decoder) (any, error) {
	f, err := readStrings(dec, 5)
	if err != nil {
		return nil, err
	}
	extension, _, err := dec.ReadNullableString()
	if err != nil {
		return nil, err
	}
	classifier, _, err := dec.ReadNullableString()
	if err != nil {
		return nil, err
	}
	return ModuleComponentArtifactIdentifier{
		Component: ModuleComponentIdentifier{Group: f[0], Module: f[1], Version: f[2]},
		Name: ArtifactName{
			Name:       f[3],
			Type:       f[4],
			Extension:  extension,
			Classifier: classifier,
		},
	}, nil
}

const (
	tagAttrString byte = 1
	tagAttrBool   byte = 2
	tagAttrInt    byte = 3
	tagAttrNamed  byte = 4
)

// AttributesSerializer writes [count] then [name][tag][value] per attribute, in name order.
type AttributesSerializer struct{}

// Write normalizes the container first, so any AttributeContainer encodes in name order.
func (AttributesSerializer) Write(enc serialize.Encoder, value any) error {
	container, ok := value.(AttributeContainer)
	if !ok || container == nil {
		return fmt.Errorf("%w: want AttributeContainer, got %T", serialize.ErrValueType, value)
	}
	attrs, err := NewAttributes(container.Attributes()...)
	if err != nil {
		return err
	}
	if err := enc.WriteSmallInt(attrs.Len()); err != nil {
		return err
	}
	for _, attr := range attrs.entries {
		if err := enc.WriteString(attr.Name); err != nil {
			return err
		}
		if err := writeAttributeValue(enc, attr.Value); err != nil {
			return err
		}
	}
	return nil
}

// Read returns Attributes. Names out of order, empty names and unknown value
// tags are corrupt input.
func (AttributesSerializer) Read(dec serialize.Decoder) (any, error) {
	count, err := dec.ReadSmallInt()
	if err != nil {
		return nil, err
	}
	if count > serialize.MaxLength {
		return nil, fmt.Errorf("%w: attribute count %d exceeds limit", serialize.ErrCorrupt, count)
	}
	entries := make([]Attribute, 0, min(count, 64))
	for i := 0; i < count; i++ {
		name, err := dec.ReadString()
		if err != nil {
			return nil, err
		}
		if name == "" {
			return nil, fmt.Errorf("%w: empty attribute name", serialize.ErrCorrupt)
		}
		value, err := readAttributeValue(dec)
		if err != nil {
			return nil, err
		}
		if n := len(entries); n > 0 && entries[n-1].Name >= name {
			return nil, fmt.Errorf("%w: attribute %q out of order", serialize.ErrCorrupt, name)
		}
		entries = append(entries, Attribute{Name: name, Value: value})
	}
	return Attributes{entries: entries}, nil
}

func writeAttributeValue(enc serialize.Encoder, value any) error {
	switch v := value.(type) {
	case string:
		if err := enc.WriteByte(tagAttrString); err != nil {
			return err
		}
		return enc.WriteString(v)
	case bool:
		if err := enc.WriteByte(tagAttrBool); err != nil {
			return err
		}
		return enc.WriteBoolean(v)
	case int:
		if err := enc.WriteByte(tagAttrInt); err != nil {
			return err
		}
		return enc.WriteInt(v)
	case Named:
		if err := enc.WriteByte(tagAttrNamed); err != nil {
			return err
		}
		return enc.WriteString(string(v))
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedAttributeValue, value)
	}
}

func readAttributeValue(dec serialize.Decoder) (any, error) {
	tag, err := dec.ReadByte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case tagAttrString:
		return dec.ReadString()
	case tagAttrBool:
		return dec.ReadBoolean()
	case tagAttrInt:
		return dec.ReadInt()
	case tagAttrNamed:
		s, err := dec.ReadString()
		if err != nil {
			return nil, err
		}
		return Named(s), nil
	default:
		return nil, fmt.Errorf("%w: unknown attribute value tag %d", serialize.ErrCorrupt, tag)
	}
}

func derefComponent(value any) any {
	switch id := value.(type) {
	case *ModuleComponentIdentifier:
		if id != nil {
			return *id
		}
	case *ProjectComponentIdentifier:
		if id != nil {
			return *id
		}
	case *LibraryBinaryIdentifier:
		if id != nil {
			return *id
		}
	case *OpaqueComponentIdentifier:
		if id != nil {
			return *id
		}
	}
	return value
}

func writeStrings(enc serialize.Encoder, tag byte, fields ...string) error {
	if err := enc.WriteByte(tag); err != nil {
		return err
	}
	for _, f := range fields {
		if err := enc.WriteString(f); err != nil {
			return err
		}
	}
	return nil
}

func readStrings(dec serialize.Decoder, n int) ([]string, error) {
	out := make([]string, n)
	for i := range out {
		s, err := dec.ReadString()
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}
