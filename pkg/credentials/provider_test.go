package credentials

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequiredSecret(t *testing.T) {
	tests := []struct {
		model    string
		provider string
		secret   string
		known    bool
	}{
		{model: "claude-sonnet-4-20250514", provider: "anthropic", secret: "ANTHROPIC_API_KEY", known: true},
		{model: "Claude-3-Haiku", provider: "anthropic", secret: "ANTHROPIC_API_KEY", known: true},
		{model: "gpt-4o", provider: "openai", secret: "OPENAI_API_KEY", known: true},
		{model: "o3-mini", provider: "openai", secret: "OPENAI_API_KEY", known: true},
		{model: "azure-gpt-4o", provider: "azure", secret: "AZURE_OPENAI_API_KEY", known: true},
		{model: "gemini-2.0-flash", provider: "gemini", secret: "GEMINI_API_KEY", known: true},
		{model: "groq/llama-3.3-70b", provider: "groq", secret: "GROQ_API_KEY", known: true},
		{model: "us.anthropic.claude-3-5-sonnet", provider: "bedrock", secret: "AWS_ACCESS_KEY_ID", known: true},
		{model: "ollama/llama3", provider: "ollama", secret: "", known: true},
		{model: "mystery-model", known: false},
		{model: "   ", known: false},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			p, ok := RequiredSecret(tt.model)
			assert.Equal(t, tt.known, ok)
			assert.Equal(t, tt.provider, p.Name)
			assert.Equal(t, tt.secret, p.Secret)
		})
	}
}

func TestSecretNames(t *testing.T) {
	names := SecretNames()

	assert.Contains(t, names, "ANTHROPIC_API_KEY")
	assert.Contains(t, names, "AWS_SECRET_ACCESS_KEY")
	assert.Contains(t, names, "AZURE_OPENAI_ENDPOINT")

	seen := map[string]bool{}
	for _, n := range names {
		assert.False(t, seen[n], "duplicate %s", n)
		seen[n] = true
	}
}
