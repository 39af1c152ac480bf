package credentials

import "strings"

// Provider is a model family and the secret it needs
type Provider struct {
	// Name identifies the family
	Name string
	// Secret is the variable that must be set, empty when none is needed
	Secret string
	// Forward lists additional variables the agent may read for this family
	Forward []string

	patterns []string
}

// Providers are matched in order; more specific families come first.
var Providers = []Provider{
	{Name: "azure", Secret: "AZURE_OPENAI_API_KEY", Forward: []string{"AZURE_OPENAI_ENDPOINT", "OPENAI_API_VERSION"}, patterns: []string{"azure"}},
	{Name: "bedrock", Secret: "AWS_ACCESS_KEY_ID", Forward: []string{"AWS_SECRET_ACCESS_KEY", "AWS_SESSION_TOKEN", "AWS_REGION", "AWS_DEFAULT_REGION", "AWS_PROFILE"}, patterns: []string{"bedrock", "us.anthropic", "anthropic."}},
	{Name: "anthropic", Secret: "ANTHROPIC_API_KEY", patterns: []string{"claude", "anthropic"}},
	{Name: "openai", Secret: "OPENAI_API_KEY", Forward: []string{"OPENAI_BASE_URL"}, patterns: []string{"gpt", "openai", "o1", "o3", "o4"}},
	{Name: "gemini", Secret: "GEMINI_API_KEY", Forward: []string{"GOOGLE_API_KEY"}, patterns: []string{"gemini"}},
	{Name: "groq", Secret: "GROQ_API_KEY", patterns: []string{"groq"}},
	{Name: "ollama", patterns: []string{"ollama", "local"}},
}

// RequiredSecret selects the provider family for a model identifier
func RequiredSecret(model string) (Provider, bool) {
	m := strings.ToLower(strings.TrimSpace(model))
	if m == "" {
		return Provider{}, false
	}
	for _, p := range Providers {
		for _, pattern := range p.patterns {
			if strings.Contains(m, pattern) {
				return p, true
			}
		}
	}
	return Provider{}, false
}

// SecretNames lists every variable any provider may need, without duplicates
func SecretNames() []string {
	seen := make(map[string]bool)
	var names []string
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	for _, p := range Providers {
		add(p.Secret)
		for _, f := range p.Forward {
			add(f)
		}
	}
	return names
}
