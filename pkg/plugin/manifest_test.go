package plugin

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoader(t *testing.T) *ManifestLoader {
	t.Helper()
	loader, err := NewManifestLoader(zerolog.Nop())
	require.NoError(t, err)
	return loader
}

func TestBuildManifest_RoundTrip(t *testing.T) {
	m := BuildManifest("1.2.0", "biomni serve")

	var buf bytes.Buffer
	require.NoError(t, m.WriteYAML(&buf))
	assert.Contains(t, buf.String(), "name: biomni_agent")

	parsed, err := newLoader(t).ParseManifest(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "biomni", parsed.ID)
	require.Len(t, parsed.Tools, 1)
	assert.Equal(t, "research_query", parsed.Tools[0].Parameters[0].Name)

	var anthropic *CredentialField
	for i := range parsed.Credentials {
		if parsed.Credentials[i].Name == "ANTHROPIC_API_KEY" {
			anthropic = &parsed.Credentials[i]
		}
	}
	require.NotNil(t, anthropic)
	assert.True(t, anthropic.Secret)
	assert.False(t, anthropic.Required)
}

func TestManifestLoader_LoadManifest(t *testing.T) {
	loader := newLoader(t)

	t.Run("loads json", func(t *testing.T) {
		path := writeManifest(t, "manifest.json", `{
			"id": "biomni",
			"name": "Biomni",
			"version": "1.0.0",
			"main": "biomni serve",
			"tools": [{"name": "biomni_agent", "parameters": [{"name": "research_query", "type": "string"}]}]
		}`)

		m, err := loader.LoadManifest(path)
		require.NoError(t, err)
		assert.Equal(t, "Biomni", m.Name)
	})

	t.Run("rejects missing tools", func(t *testing.T) {
		path := writeManifest(t, "manifest.yaml", "id: biomni\nname: Biomni\nversion: 1.0.0\nmain: biomni\n")
		_, err := loader.LoadManifest(path)
		assert.ErrorContains(t, err, "schema validation failed")
	})

	t.Run("rejects bad version", func(t *testing.T) {
		path := writeManifest(t, "manifest.yaml", `id: biomni
name: Biomni
version: "1.0"
main: biomni
tools:
  - name: biomni_agent
    parameters: []
`)
		_, err := loader.LoadManifest(path)
		assert.Error(t, err)
	})

	t.Run("rejects duplicate tools", func(t *testing.T) {
		path := writeManifest(t, "manifest.yaml", `id: biomni
name: Biomni
version: 1.0.0
main: biomni
tools:
  - name: biomni_agent
    parameters: []
  - name: biomni_agent
    parameters: []
`)
		_, err := loader.LoadManifest(path)
		assert.ErrorContains(t, err, "duplicate tool")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := loader.LoadManifest(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorContains(t, err, "failed to read manifest file")
	})
}

func writeManifest(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
