package credentials

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go"
	openaioption "github.com/openai/openai-go/option"
)

// KeyProber checks a key against the provider's API
type KeyProber interface {
	Probe(ctx context.Context, key string) error
}

// KeyProberFunc adapts a function to KeyProber
type KeyProberFunc func(ctx context.Context, key string) error

func (f KeyProberFunc) Probe(ctx context.Context, key string) error { return f(ctx, key) }

// AnthropicProber lists one model with the key
type AnthropicProber struct {
	// BaseURL overrides the API endpoint when set
	BaseURL string
}

func (p AnthropicProber) Probe(ctx context.Context, key string) error {
	opts := []anthropicoption.RequestOption{
		anthropicoption.WithAPIKey(key),
		anthropicoption.WithMaxRetries(0),
	}
	if p.BaseURL != "" {
		opts = append(opts, anthropicoption.WithBaseURL(p.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	if _, err := client.Models.List(ctx, anthropic.ModelListParams{Limit: anthropic.Int(1)}); err != nil {
		return fmt.Errorf("anthropic key rejected: %w", err)
	}
	return nil
}

// OpenAIProber lists models with the key
type OpenAIProber struct {
	BaseURL string
}

func (p OpenAIProber) Probe(ctx context.Context, key string) error {
	opts := []openaioption.RequestOption{
		openaioption.WithAPIKey(key),
		openaioption.WithMaxRetries(0),
	}
	if p.BaseURL != "" {
		opts = append(opts, openaioption.WithBaseURL(p.BaseURL))
	}
	client := openai.NewClient(opts...)

	if _, err := client.Models.List(ctx); err != nil {
		return fmt.Errorf("openai key rejected: %w", err)
	}
	return nil
}

// DefaultProbers returns the live probers keyed by provider name
func DefaultProbers() map[string]KeyProber {
	return map[string]KeyProber{
		"anthropic": AnthropicProber{},
		"openai":    OpenAIProber{},
	}
}
