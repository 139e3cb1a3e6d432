package identity

import (
	"fmt"

	"github.com/entitycache/valuesnap/cache/serialize"
)

// SupportedSpecs returns the type specs registered by NewSnapshotRegistry, in
// registration order.
func SupportedSpecs() []serialize.TypeSpec {
	return []serialize.TypeSpec{
		serialize.SpecFor[Capability](),
		serialize.SpecFor[ModuleVersionIdentifier](),
		serialize.SpecFor[ComponentIdentifier](),
		serialize.SpecFor[ModuleComponentArtifactIdentifier](),
		serialize.SpecFor[AttributeContainer](),
	}
}

// NewSnapshotRegistry builds the frozen registry used to snapshot dependency
// management values. Module version identifiers are reconstructed through
// factory; a nil factory gets a private InterningFactory.
func NewSnapshotRegistry(factory ModuleIdentifierFactory) (*serialize.Registry, error) {
	builder := serialize.NewBuilder()
	if err := RegisterSerializers(builder, factory); err != nil {
		return nil, err
	}
	return builder.Freeze(), nil
}

// RegisterSerializers adds the built-in serializers to builder so callers can
// register more specific types ahead of them.
func RegisterSerializers(builder *serialize.Builder, factory ModuleIdentifierFactory) error {
	specs := SupportedSpecs()
	serializers := []serialize.Serializer{
		CapabilitySerializer{},
		NewModuleVersionIdentifierSerializer(factory),
		ComponentIdentifierSerializer{},
		ArtifactIdentifierSerializer{},
		AttributesSerializer{},
	}
	for i, spec := range specs {
		if err := builder.Register(spec, serializers[i]); err != nil {
			return fmt.Errorf("identity: register %s: %w", spec, err)
		}
	}
	return nil
}
