package identity

import (
	"fmt"
	"sync"
)

// ModuleIdentifier names a module without a version.
type ModuleIdentifier struct {
	Group string
	Name  string
}

func (m ModuleIdentifier) String() string {
	return fmt.Sprintf("%s:%s", m.Group, m.Name)
}

// ModuleVersionIdentifier names one version of a module.
type ModuleVersionIdentifier interface {
	Group() string
	Name() string
	Version() string
	Module() ModuleIdentifier
}

type moduleVersion struct {
	module  ModuleIdentifier
	version string
}

// NewModuleVersionIdentifier returns a non-interned identifier. Use a
// ModuleIdentifierFactory when canonical instances matter.
func NewModuleVersionIdentifier(group, name, version string) ModuleVersionIdentifier {
	return &moduleVersion{module: ModuleIdentifier{Group: group, Name: name}, version: version}
}

func (m *moduleVersion) Group() string            { return m.module.Group }
func (m *moduleVersion) Name() string             { return m.module.Name }
func (m *moduleVersion) Version() string          { return m.version }
func (m *moduleVersion) Module() ModuleIdentifier { return m.module }

func (m *moduleVersion) String() string {
	return fmt.Sprintf("%s:%s:%s", m.module.Group, m.module.Name, m.version)
}

// ModuleVersionsEqual compares identifiers structurally.
func ModuleVersionsEqual(a, b ModuleVersionIdentifier) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Module() == b.Module() && a.Version() == b.Version()
}

// ModuleIdentifierFactory reconstructs identifiers from their decoded parts.
type ModuleIdentifierFactory interface {
	Module(group, name string) ModuleIdentifier
	ModuleWithVersion(group, name, version string) ModuleVersionIdentifier
}

// InterningFactory hands out one canonical ModuleVersionIdentifier per
// (group, name, version). It is safe for concurrent use.
type InterningFactory struct {
	versions sync.Map // map[moduleVersionKey]*moduleVersion
}

type moduleVersionKey struct {
	group   string
	name    string
	version string
}

// NewInterningFactory constructs an empty InterningFactory.
func NewInterningFactory() *InterningFactory {
	return &InterningFactory{}
}

// Module returns the module identifier for group and name.
func (f *InterningFactory) Module(group, name string) ModuleIdentifier {
	return ModuleIdentifier{Group: group, Name: name}
}

// ModuleWithVersion returns the canonical identifier for the given coordinates.
func (f *InterningFactory) ModuleWithVersion(group, name, version string) ModuleVersionIdentifier {
	key := moduleVersionKey{group: group, name: name, version: version}
	if existing, ok := f.versions.Load(key); ok {
		return existing.(*moduleVersion)
	}
	created := &moduleVersion{module: f.Module(group, name), version: version}
	actual, _ := f.versions.LoadOrStore(key, created)
	return actual.(*moduleVersion)
}
