package module

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Capability is a declared module capability kind. Distinct from the
// sandbox package's runtime Capability grant — this is what a module
// metadata sidecar advertises it provides, not what it is permitted to do.
type Capability struct {
	Kind        string // parser | formatter | synthesis | monitor | model-provider | test-generator | custom
	Language    string
	Name        string
	Description string
}

// Dependency is a declared module-to-module dependency.
type Dependency struct {
	Name               string
	VersionRequirement string
	Optional           bool
}

// Metadata is the YAML sidecar content describing a module, parsed from
// `<module>.meta.yaml` next to the binary artifact.
type Metadata struct {
	Name         string       `yaml:"name"`
	Version      string       `yaml:"version"`
	Author       string       `yaml:"author"`
	Description  string       `yaml:"description"`
	Capabilities []Capability `yaml:"capabilities"`
	Dependencies []Dependency `yaml:"dependencies"`
}

// ParsedVersion parses Metadata.Version into a Version, failing the same
// way load-time validation does on a malformed sidecar.
func (m Metadata) ParsedVersion() (Version, error) {
	return ParseVersion(m.Version)
}

// MetadataPath derives the sidecar path for a module artifact: the
// artifact's path with ".meta.yaml" appended.
func MetadataPath(artifactPath string) string {
	return artifactPath + ".meta.yaml"
}

// LoadMetadata reads and parses a module's YAML sidecar.
func LoadMetadata(path string) (Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("module: read metadata %s: %w", path, err)
	}
	var m Metadata
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return Metadata{}, fmt.Errorf("module: parse metadata %s: %w", path, err)
	}
	return m, nil
}
