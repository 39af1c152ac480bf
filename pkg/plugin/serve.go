package plugin

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"
)

// Serve runs the plugin server on stdio until the host disconnects. Calls
// are served under ctx. Nothing else may write to stdout while it runs.
func Serve(ctx context.Context, impl Provider, logger hclog.Logger) {
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]plugin.Plugin{
			PluginName: &ProviderRPCPlugin{Impl: impl, Context: ctx},
		},
		Logger: logger,
	})
}

// Connection is a host side connection to a plugin process
type Connection struct {
	Provider Provider
	client   *plugin.Client
}

// Close kills the plugin process
func (c *Connection) Close() {
	c.client.Kill()
}

// Dial starts the plugin binary in cmd and dispenses its provider
func Dial(cmd *exec.Cmd, logger hclog.Logger) (*Connection, error) {
	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig:  Handshake,
		Plugins:          PluginMap,
		Cmd:              cmd,
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolNetRPC},
		Logger:           logger,
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to connect to plugin: %w", err)
	}

	raw, err := rpcClient.Dispense(PluginName)
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("failed to dispense plugin: %w", err)
	}

	provider, ok := raw.(Provider)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("plugin does not implement Provider")
	}

	return &Connection{Provider: provider, client: client}, nil
}
