package plugin

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/harun/biomni/pkg/credentials"
	"github.com/harun/biomni/pkg/tool"
)

var (
	// pluginIDRegex validates plugin ID format (lowercase alphanumeric with hyphens)
	pluginIDRegex = regexp.MustCompile(`^[a-z0-9-]+$`)

	// semverRegex validates semver version format
	semverRegex = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
)

// CredentialField is a host-provided credential the plugin understands
type CredentialField struct {
	Name     string `json:"name" yaml:"name"`
	Required bool   `json:"required" yaml:"required"`
	Secret   bool   `json:"secret" yaml:"secret"`
}

// Manifest declares the plugin to hosts
type Manifest struct {
	ID          string            `json:"id" yaml:"id"`
	Name        string            `json:"name" yaml:"name"`
	Version     string            `json:"version" yaml:"version"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Author      string            `json:"author,omitempty" yaml:"author,omitempty"`
	Main        string            `json:"main" yaml:"main"`
	Permissions []string          `json:"permissions,omitempty" yaml:"permissions,omitempty"`
	Credentials []CredentialField `json:"credentials,omitempty" yaml:"credentials,omitempty"`
	Tools       []tool.Definition `json:"tools" yaml:"tools"`
}

// BuildManifest describes this plugin. No credential is required up front;
// which one is needed depends on the configured model.
func BuildManifest(version, main string) *Manifest {
	m := &Manifest{
		ID:          "biomni",
		Name:        "Biomni",
		Version:     version,
		Description: "Biomedical research agent for analysis, hypothesis generation and literature synthesis",
		Author:      "biomni",
		Main:        main,
		Permissions: []string{"filesystem:read", "filesystem:write", "network:http", "process:spawn"},
		Tools:       []tool.Definition{tool.BiomniDefinition()},
	}
	for _, name := range credentials.SecretNames() {
		m.Credentials = append(m.Credentials, CredentialField{
			Name:   name,
			Secret: strings.HasSuffix(name, "_KEY") || strings.HasSuffix(name, "_TOKEN"),
		})
	}
	return m
}

// WriteYAML encodes the manifest as YAML
func (m *Manifest) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	return enc.Close()
}

// ManifestLoader loads and validates plugin manifests
type ManifestLoader struct {
	logger zerolog.Logger
	schema *gojsonschema.Schema
}

// NewManifestLoader creates a new manifest loader
func NewManifestLoader(logger zerolog.Logger) (*ManifestLoader, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(ManifestSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile manifest schema: %w", err)
	}
	return &ManifestLoader{
		logger: logger.With().Str("component", "manifest-loader").Logger(),
		schema: schema,
	}, nil
}

// LoadManifest loads and validates a manifest file. YAML and JSON are both
// accepted.
func (m *ManifestLoader) LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}
	manifest, err := m.ParseManifest(data)
	if err != nil {
		return nil, err
	}

	m.logger.Debug().
		Str("id", manifest.ID).
		Str("version", manifest.Version).
		Msg("Loaded manifest")
	return manifest, nil
}

// ParseManifest parses and validates manifest bytes
func (m *ManifestLoader) ParseManifest(data []byte) (*Manifest, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if err := m.validateSchema(doc); err != nil {
		return nil, fmt.Errorf("manifest schema validation failed: %w", err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if err := validateManifest(&manifest); err != nil {
		return nil, fmt.Errorf("manifest validation failed: %w", err)
	}
	return &manifest, nil
}

func (m *ManifestLoader) validateSchema(doc map[string]any) error {
	result, err := m.schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("schema validation errors: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// validateManifest performs additional validation beyond JSON schema
func validateManifest(manifest *Manifest) error {
	if !pluginIDRegex.MatchString(manifest.ID) {
		return fmt.Errorf("invalid plugin ID format: %s (must be lowercase alphanumeric with hyphens)", manifest.ID)
	}
	if !semverRegex.MatchString(manifest.Version) {
		return fmt.Errorf("invalid version format: %s (must be semver: X.Y.Z)", manifest.Version)
	}

	seen := make(map[string]bool)
	for _, t := range manifest.Tools {
		if seen[t.Name] {
			return fmt.Errorf("duplicate tool: %s", t.Name)
		}
		seen[t.Name] = true
	}
	return nil
}
