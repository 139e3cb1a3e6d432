package identity

import (
	"fmt"
	"strings"
)

// ArtifactName describes one file of a module component. Empty Extension and
// Classifier mean the value is absent.
type ArtifactName struct {
	Name       string
	Type       string
	Extension  string
	Classifier string
}

func (a ArtifactName) String() string {
	var b strings.Builder
	b.WriteString(a.Name)
	if a.Classifier != "" {
		b.WriteByte('-')
		b.WriteString(a.Classifier)
	}
	if a.Extension != "" {
		b.WriteByte('.')
		b.WriteString(a.Extension)
	}
	return b.String()
}

// ModuleComponentArtifactIdentifier identifies an artifact of a module component.
type ModuleComponentArtifactIdentifier struct {
	Component ModuleComponentIdentifier
	Name      ArtifactName
}

// ComponentIdentifier returns the owning component.
func (m ModuleComponentArtifactIdentifier) ComponentIdentifier() ComponentIdentifier {
	return m.Component
}

func (m ModuleComponentArtifactIdentifier) DisplayName() string {
	return fmt.Sprintf("%s (%s)", m.Name, m.Component.DisplayName())
}
