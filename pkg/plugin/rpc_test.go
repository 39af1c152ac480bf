package plugin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hashicorp/go-plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/biomni/pkg/tool"
)

type stubProvider struct {
	creds  map[string]string
	params map[string]any
	err    error
}

func (s *stubProvider) ValidateCredentials(_ context.Context, creds map[string]string) error {
	s.creds = creds
	return s.err
}

func (s *stubProvider) Tools(context.Context) ([]tool.Definition, error) {
	return []tool.Definition{tool.BiomniDefinition()}, nil
}

func (s *stubProvider) InvokeTool(_ context.Context, name string, params map[string]any) ([]tool.Message, error) {
	if name != tool.Name {
		return nil, ErrUnknownTool
	}
	s.params = params
	return []tool.Message{
		{Kind: tool.MessageStarted, Text: "started"},
		{Kind: tool.MessageResult, Text: "done"},
	}, nil
}

func dispense(t *testing.T, impl Provider) Provider {
	t.Helper()
	return dispenseWithContext(t, context.Background(), impl)
}

func dispenseWithContext(t *testing.T, ctx context.Context, impl Provider) Provider {
	t.Helper()

	client, _ := plugin.TestPluginRPCConn(t, map[string]plugin.Plugin{
		PluginName: &ProviderRPCPlugin{Impl: impl, Context: ctx},
	}, nil)
	t.Cleanup(func() { _ = client.Close() })

	raw, err := client.Dispense(PluginName)
	require.NoError(t, err)
	p, ok := raw.(Provider)
	require.True(t, ok)
	return p
}

func TestRPC_ValidateCredentials(t *testing.T) {
	stub := &stubProvider{}
	p := dispense(t, stub)

	require.NoError(t, p.ValidateCredentials(context.Background(), map[string]string{"ANTHROPIC_API_KEY": "k"}))
	assert.Equal(t, "k", stub.creds["ANTHROPIC_API_KEY"])

	stub.err = errors.New("ANTHROPIC_API_KEY is not set")
	err := p.ValidateCredentials(context.Background(), nil)
	assert.EqualError(t, err, "ANTHROPIC_API_KEY is not set")
}

func TestRPC_Tools(t *testing.T) {
	p := dispense(t, &stubProvider{})

	defs, err := p.Tools(context.Background())
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "biomni_agent", defs[0].Name)
	assert.Len(t, defs[0].Parameters, 3)
}

func TestRPC_InvokeTool(t *testing.T) {
	stub := &stubProvider{}
	p := dispense(t, stub)

	msgs, err := p.InvokeTool(context.Background(), tool.Name, map[string]any{
		"research_query":     "q",
		"max_execution_time": 30,
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, tool.MessageResult, msgs[1].Kind)
	assert.Equal(t, "q", stub.params["research_query"])
	assert.Equal(t, float64(30), stub.params["max_execution_time"])

	_, err = p.InvokeTool(context.Background(), "other", nil)
	assert.ErrorContains(t, err, "unknown tool")
}

func TestRPC_CanceledContext(t *testing.T) {
	p := dispense(t, &stubProvider{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Tools(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

// waitingProvider blocks InvokeTool until its context is done
type waitingProvider struct {
	stubProvider
	entered chan struct{}
}

func (w *waitingProvider) InvokeTool(ctx context.Context, _ string, _ map[string]any) ([]tool.Message, error) {
	close(w.entered)
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRPC_ServerContextCancelsInvocation(t *testing.T) {
	base, cancel := context.WithCancel(context.Background())
	defer cancel()

	impl := &waitingProvider{entered: make(chan struct{})}
	p := dispenseWithContext(t, base, impl)

	done := make(chan error, 1)
	go func() {
		_, err := p.InvokeTool(context.Background(), tool.Name, map[string]any{"research_query": "q"})
		done <- err
	}()

	select {
	case <-impl.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("invocation did not reach the server")
	}
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "context canceled")
	case <-time.After(5 * time.Second):
		t.Fatal("server context did not stop the invocation")
	}
}
