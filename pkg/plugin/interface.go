package plugin

import (
	"context"

	"github.com/harun/biomni/pkg/tool"
)

// Provider is what the host talks to over the plugin connection
type Provider interface {
	// ValidateCredentials checks the agent environment with host supplied
	// credentials, which take precedence over the process environment
	ValidateCredentials(ctx context.Context, credentials map[string]string) error

	// Tools lists the tools this provider serves
	Tools(ctx context.Context) ([]tool.Definition, error)

	// InvokeTool runs a tool and returns its messages in order
	InvokeTool(ctx context.Context, name string, params map[string]any) ([]tool.Message, error)
}
