package identity

import "fmt"

// ComponentIdentifier identifies a node of the resolved dependency graph.
// The set of implementations is closed; see the variants below.
type ComponentIdentifier interface {
	DisplayName() string
	componentIdentifier()
}

// ModuleComponentIdentifier identifies a component published as a module version.
type ModuleComponentIdentifier struct {
	Group   string
	Module  string
	Version string
}

func (m ModuleComponentIdentifier) DisplayName() string {
	return fmt.Sprintf("%s:%s:%s", m.Group, m.Module, m.Version)
}

// ModuleIdentifier returns the versionless module coordinates.
func (m ModuleComponentIdentifier) ModuleIdentifier() ModuleIdentifier {
	return ModuleIdentifier{Group: m.Group, Name: m.Module}
}

func (ModuleComponentIdentifier) componentIdentifier() {}

// ProjectComponentIdentifier identifies a project of a build.
type ProjectComponentIdentifier struct {
	BuildPath   string
	ProjectPath string
	ProjectName string
}

func (p ProjectComponentIdentifier) DisplayName() string {
	if p.BuildPath == "" || p.BuildPath == ":" {
		return fmt.Sprintf("project %s", p.ProjectPath)
	}
	return fmt.Sprintf("project %s%s", p.BuildPath, p.ProjectPath)
}

func (ProjectComponentIdentifier) componentIdentifier() {}

// LibraryBinaryIdentifier identifies one variant of a native library binary.
type LibraryBinaryIdentifier struct {
	ProjectPath string
	LibraryName string
	Variant     string
}

func (l LibraryBinaryIdentifier) DisplayName() string {
	return fmt.Sprintf("%s:%s:%s", l.ProjectPath, l.LibraryName, l.Variant)
}

func (LibraryBinaryIdentifier) componentIdentifier() {}

// OpaqueComponentIdentifier identifies a component only by name.
type OpaqueComponentIdentifier struct {
	Name string
}

func (o OpaqueComponentIdentifier) DisplayName() string { return o.Name }

func (OpaqueComponentIdentifier) componentIdentifier() {}
