package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/rpc"

	"github.com/hashicorp/go-plugin"

	"github.com/harun/biomni/pkg/tool"
)

// Handshake is used to verify that the plugin and host are compatible
var Handshake = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "BIOMNI_PLUGIN",
	MagicCookieValue: "biomni-tool-provider-v1",
}

// PluginName is the key the provider is dispensed under
const PluginName = "provider"

// PluginMap is the map of plugins we can dispense
var PluginMap = map[string]plugin.Plugin{
	PluginName: &ProviderRPCPlugin{},
}

// ProviderRPCPlugin is the implementation of plugin.Plugin for RPC
type ProviderRPCPlugin struct {
	Impl Provider
	// Context bounds every served call; canceling it stops in-flight
	// invocations. context.Background when nil.
	Context context.Context
}

func (p *ProviderRPCPlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return &ProviderRPCServer{Impl: p.Impl, ctx: p.Context}, nil
}

func (p *ProviderRPCPlugin) Client(b *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &ProviderRPCClient{client: c}, nil
}

// Payloads cross the connection as JSON and errors as strings; gob cannot
// carry interface values.

// ValidateArgs are the arguments for the ValidateCredentials call
type ValidateArgs struct {
	Credentials []byte
}

// ErrorResp carries an error message, empty on success
type ErrorResp struct {
	Error string
}

// ToolsResp is the response for the Tools call
type ToolsResp struct {
	Definitions []byte
	Error       string
}

// InvokeArgs are the arguments for the InvokeTool call
type InvokeArgs struct {
	Name   string
	Params []byte
}

// InvokeResp is the response for the InvokeTool call
type InvokeResp struct {
	Messages []byte
	Error    string
}

// ProviderRPCServer is the RPC server that ProviderRPCClient talks to
type ProviderRPCServer struct {
	Impl Provider
	ctx  context.Context
}

func (s *ProviderRPCServer) baseContext() context.Context {
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (s *ProviderRPCServer) ValidateCredentials(args *ValidateArgs, resp *ErrorResp) error {
	creds := map[string]string{}
	if len(args.Credentials) > 0 {
		if err := json.Unmarshal(args.Credentials, &creds); err != nil {
			resp.Error = fmt.Sprintf("invalid credentials payload: %v", err)
			return nil
		}
	}
	resp.Error = errString(s.Impl.ValidateCredentials(s.baseContext(), creds))
	return nil
}

func (s *ProviderRPCServer) Tools(args interface{}, resp *ToolsResp) error {
	defs, err := s.Impl.Tools(s.baseContext())
	if err != nil {
		resp.Error = err.Error()
		return nil
	}
	resp.Definitions, err = json.Marshal(defs)
	resp.Error = errString(err)
	return nil
}

func (s *ProviderRPCServer) InvokeTool(args *InvokeArgs, resp *InvokeResp) error {
	params := map[string]any{}
	if len(args.Params) > 0 {
		if err := json.Unmarshal(args.Params, &params); err != nil {
			resp.Error = fmt.Sprintf("invalid params payload: %v", err)
			return nil
		}
	}

	msgs, err := s.Impl.InvokeTool(s.baseContext(), args.Name, params)
	if err != nil {
		resp.Error = err.Error()
		return nil
	}
	resp.Messages, err = json.Marshal(msgs)
	resp.Error = errString(err)
	return nil
}

// ProviderRPCClient is the RPC client that talks to ProviderRPCServer
type ProviderRPCClient struct {
	client *rpc.Client
}

// call waits for the reply or for ctx. A canceled wait does not stop the
// remote side.
func (c *ProviderRPCClient) call(ctx context.Context, method string, args, reply any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	pending := c.client.Go("Plugin."+method, args, reply, make(chan *rpc.Call, 1))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case done := <-pending.Done:
		return done.Error
	}
}

func (c *ProviderRPCClient) ValidateCredentials(ctx context.Context, credentials map[string]string) error {
	data, err := json.Marshal(credentials)
	if err != nil {
		return err
	}
	var resp ErrorResp
	if err := c.call(ctx, "ValidateCredentials", &ValidateArgs{Credentials: data}, &resp); err != nil {
		return err
	}
	if resp.Error != "" {
		return errors.New(resp.Error)
	}
	return nil
}

func (c *ProviderRPCClient) Tools(ctx context.Context) ([]tool.Definition, error) {
	var resp ToolsResp
	if err := c.call(ctx, "Tools", new(interface{}), &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, errors.New(resp.Error)
	}
	var defs []tool.Definition
	if err := json.Unmarshal(resp.Definitions, &defs); err != nil {
		return nil, fmt.Errorf("invalid tools payload: %w", err)
	}
	return defs, nil
}

func (c *ProviderRPCClient) InvokeTool(ctx context.Context, name string, params map[string]any) ([]tool.Message, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	var resp InvokeResp
	if err := c.call(ctx, "InvokeTool", &InvokeArgs{Name: name, Params: data}, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, errors.New(resp.Error)
	}
	var msgs []tool.Message
	if err := json.Unmarshal(resp.Messages, &msgs); err != nil {
		return nil, fmt.Errorf("invalid messages payload: %w", err)
	}
	return msgs, nil
}
