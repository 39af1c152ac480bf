package tool

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/biomni/pkg/invoker"
	"github.com/harun/biomni/pkg/sandbox"
)

type fakeRunner struct {
	mu       sync.Mutex
	requests []invoker.Request
	outcome  *invoker.Outcome
}

func (f *fakeRunner) Invoke(_ context.Context, req invoker.Request) *invoker.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.outcome == nil {
		return &invoker.Outcome{State: invoker.StateCompleted}
	}
	return f.outcome
}

func kinds(msgs []Message) []MessageKind {
	out := make([]MessageKind, len(msgs))
	for i, m := range msgs {
		out[i] = m.Kind
	}
	return out
}

func TestInvoke_EmptyQuery(t *testing.T) {
	runner := &fakeRunner{}
	tl, err := New(runner, time.Minute)
	require.NoError(t, err)

	msgs, out := tl.Collect(context.Background(), map[string]any{"research_query": "   "})

	assert.Nil(t, out)
	require.Len(t, msgs, 1)
	assert.Equal(t, MessageValidation, msgs[0].Kind)
	assert.Equal(t, "❌ **Error**: Please provide a research query", msgs[0].Text)
	assert.Empty(t, runner.requests)
}

func TestInvoke_NotConfigured(t *testing.T) {
	runner := &fakeRunner{}
	tl, err := New(runner, time.Minute, WithReadiness(func(context.Context) error {
		return errors.New("ANTHROPIC_API_KEY is not set")
	}))
	require.NoError(t, err)

	msgs, _ := tl.Collect(context.Background(), map[string]any{"research_query": "q"})

	assert.Equal(t, []MessageKind{MessageNotConfigured}, kinds(msgs))
	assert.Contains(t, msgs[0].Text, "ANTHROPIC_API_KEY")
	assert.Empty(t, runner.requests)
}

func TestInvoke_Completed(t *testing.T) {
	runner := &fakeRunner{outcome: &invoker.Outcome{
		State:   invoker.StateCompleted,
		Elapsed: 2 * time.Second,
		Payload: invoker.Payload{Kind: invoker.PayloadStructured, Fields: map[string]any{
			"analysis":   "enriched",
			"references": "PMID:1",
		}},
	}}
	tl, err := New(runner, time.Minute)
	require.NoError(t, err)

	msgs, _ := tl.Collect(context.Background(), map[string]any{
		"research_query":     "q",
		"max_execution_time": 30,
		"include_citations":  "no",
	})

	assert.Equal(t, []MessageKind{MessageStarted, MessageResult}, kinds(msgs))
	assert.Contains(t, msgs[0].Text, "**Citations**: Disabled")
	assert.Contains(t, msgs[1].Text, "**Analysis**:\nenriched")
	assert.NotContains(t, msgs[1].Text, "References")

	require.Len(t, runner.requests, 1)
	assert.Equal(t, 30*time.Second, runner.requests[0].Timeout)
	assert.False(t, runner.requests[0].IncludeCitations)
}

func TestInvoke_SlowWarning(t *testing.T) {
	runner := &fakeRunner{outcome: &invoker.Outcome{State: invoker.StateCompleted, Elapsed: 11 * time.Second}}
	tl, err := New(runner, time.Minute)
	require.NoError(t, err)

	msgs, _ := tl.Collect(context.Background(), map[string]any{"research_query": "q", "max_execution_time": 10})

	assert.Equal(t, []MessageKind{MessageStarted, MessageWarning, MessageResult}, kinds(msgs))
}

func TestInvoke_TimedOut(t *testing.T) {
	runner := &fakeRunner{outcome: &invoker.Outcome{State: invoker.StateTimedOut, Timeout: 5 * time.Second}}
	tl, err := New(runner, time.Minute)
	require.NoError(t, err)

	msgs, _ := tl.Collect(context.Background(), map[string]any{"research_query": "q"})

	assert.Equal(t, []MessageKind{MessageStarted, MessageTimeout}, kinds(msgs))
	assert.Contains(t, msgs[1].Text, "maximum execution time of 5 seconds")
}

func TestInvoke_Failed(t *testing.T) {
	runner := &fakeRunner{outcome: &invoker.Outcome{
		State:   invoker.StateFailed,
		Failure: &invoker.Failure{Kind: invoker.KindAgent, Message: "boom", ErrorType: "RuntimeError"},
	}}
	tl, err := New(runner, time.Minute)
	require.NoError(t, err)

	msgs, _ := tl.Collect(context.Background(), map[string]any{"research_query": "q"})

	assert.Equal(t, []MessageKind{MessageStarted, MessageError}, kinds(msgs))
	assert.Contains(t, msgs[1].Text, "boom")
}

func TestInvoke_InvalidParams(t *testing.T) {
	runner := &fakeRunner{}
	tl, err := New(runner, time.Minute)
	require.NoError(t, err)

	msgs, _ := tl.Collect(context.Background(), map[string]any{"research_query": []any{"q"}})

	assert.Equal(t, []MessageKind{MessageError}, kinds(msgs))
	assert.Empty(t, runner.requests)
}

func TestInvoke_ThroughInvoker(t *testing.T) {
	sb, err := sandbox.NewHostSandbox(sandbox.DefaultConfig())
	require.NoError(t, err)

	cfg := invoker.DefaultConfig()
	cfg.Model = "claude-sonnet-4"
	cfg.DataPath = t.TempDir()
	cfg.Interpreter = []string{"sh", "-s"}

	body := `echo RESULT_START
echo '{"success": true, "nonce": "NONCE", "result": {"analysis": "a", "references": ["PMID:9"]}}'
echo RESULT_END
`
	inv, err := invoker.New(cfg, sb, invoker.WithScriptBuilder(func(p invoker.ScriptParams) (string, error) {
		return strings.ReplaceAll(body, "NONCE", p.Nonce), nil
	}))
	require.NoError(t, err)

	tl, err := New(inv, cfg.DefaultTimeout)
	require.NoError(t, err)

	msgs, out := tl.Collect(context.Background(), map[string]any{"research_query": "q", "include_citations": true})
	require.NotNil(t, out)
	require.Equal(t, invoker.StateCompleted, out.State, "failure: %+v", out.Failure)
	assert.Contains(t, msgs[len(msgs)-1].Text, "**References**:\n- PMID:9")

	msgs, _ = tl.Collect(context.Background(), map[string]any{"research_query": "q", "include_citations": false})
	assert.NotContains(t, msgs[len(msgs)-1].Text, "References")
}
