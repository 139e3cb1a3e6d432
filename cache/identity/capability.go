// Package identity holds the value types persisted alongside cached results
// (capabilities, module/component/artifact identifiers and attribute sets)
// together with their binary serializers and the registry bootstrap.
package identity

import "fmt"

// Capability identifies a resolvable feature in the dependency graph.
type Capability interface {
	Group() string
	Name() string
	// Version returns the version and whether one is set.
	Version() (string, bool)
}

// ImmutableCapability is the comparable Capability value produced by decoding.
type ImmutableCapability struct {
	group      string
	name       string
	version    string
	hasVersion bool
}

// NewCapability constructs a capability without a version.
func NewCapability(group, name string) ImmutableCapability {
	return ImmutableCapability{group: group, name: name}
}

// NewVersionedCapability constructs a capability with a version, which may be empty.
func NewVersionedCapability(group, name, version string) ImmutableCapability {
	return ImmutableCapability{group: group, name: name, version: version, hasVersion: true}
}

// CapabilityOf copies any Capability into an ImmutableCapability.
func CapabilityOf(c Capability) ImmutableCapability {
	if ic, ok := c.(ImmutableCapability); ok {
		return ic
	}
	version, ok := c.Version()
	return ImmutableCapability{group: c.Group(), name: c.Name(), version: version, hasVersion: ok}
}

func (c ImmutableCapability) Group() string { return c.group }

func (c ImmutableCapability) Name() string { return c.name }

func (c ImmutableCapability) Version() (string, bool) { return c.version, c.hasVersion }

func (c ImmutableCapability) String() string {
	if !c.hasVersion {
		return fmt.Sprintf("%s:%s", c.group, c.name)
	}
	return fmt.Sprintf("%s:%s:%s", c.group, c.name, c.version)
}

// CapabilitiesEqual compares group, name and version, including version presence.
func CapabilitiesEqual(a, b Capability) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return CapabilityOf(a) == CapabilityOf(b)
}
