package invoker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanBlocks(t *testing.T) {
	stdout := strings.Join([]string{
		"loading tools...",
		"RESULT_START",
		`{"success": true, "result": "one"}`,
		"RESULT_END",
		"  ERROR_START  ",
		`{"success": false, "error": "boom"}`,
		"ERROR_END\r",
		"RESULT_START",
		"never closed",
	}, "\n")

	blocks := scanBlocks(stdout)

	require.Len(t, blocks, 2)
	assert.Equal(t, resultBlock, blocks[0].kind)
	assert.Equal(t, `{"success": true, "result": "one"}`, blocks[0].body)
	assert.Equal(t, errorBlock, blocks[1].kind)
	assert.Equal(t, `{"success": false, "error": "boom"}`, blocks[1].body)
}

func TestScanBlocks_MismatchedEndIsContent(t *testing.T) {
	blocks := scanBlocks("RESULT_START\nERROR_END\npayload\nRESULT_END\n")

	require.Len(t, blocks, 1)
	assert.Equal(t, "ERROR_END\npayload", blocks[0].body)
}

func TestFindBlock(t *testing.T) {
	blocks := []block{
		{kind: resultBlock, body: `{"result": "mine", "nonce": "n1"}`},
		{kind: resultBlock, body: `{"result": "theirs", "nonce": "n2"}`},
		{kind: errorBlock, body: `{"error": "e", "nonce": "n1"}`},
	}

	b, ok := findBlock(blocks, resultBlock, "n1")
	require.True(t, ok)
	assert.Contains(t, b.body, "mine")

	_, ok = findBlock(blocks, errorBlock, "n2")
	assert.False(t, ok)

	raw := []block{{kind: resultBlock, body: "not json"}}
	b, ok = findBlock(raw, resultBlock, "n1")
	require.True(t, ok)
	assert.Equal(t, "not json", b.body)
}

func TestDecodeResult(t *testing.T) {
	tests := []struct {
		name string
		body string
		kind PayloadKind
	}{
		{name: "string", body: `{"success": true, "result": "text"}`, kind: PayloadText},
		{name: "object", body: `{"success": true, "result": {"analysis": "x"}}`, kind: PayloadStructured},
		{name: "list", body: `{"success": true, "result": [1, 2]}`, kind: PayloadOther},
		{name: "number", body: `{"success": true, "result": 42}`, kind: PayloadOther},
		{name: "missing", body: `{"success": true}`, kind: PayloadOther},
		{name: "invalid", body: `{"success": true, "result": `, kind: PayloadRaw},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, _, failure := decodeResult(tt.body)
			require.Nil(t, failure)
			assert.Equal(t, tt.kind, payload.Kind)
		})
	}

	t.Run("success false", func(t *testing.T) {
		_, _, failure := decodeResult(`{"success": false, "error": "nope"}`)
		require.NotNil(t, failure)
		assert.Equal(t, "nope", failure.Message)
	})
}

func TestDecodeError(t *testing.T) {
	f := decodeError(`{"success": false}`)
	assert.Equal(t, KindAgent, f.Kind)
	assert.NotEmpty(t, f.Message)

	f = decodeError("garbled")
	assert.Equal(t, "garbled", f.Message)
}

func TestTail(t *testing.T) {
	assert.Equal(t, "short", tail("  short\n", 10))
	assert.Equal(t, "...6789", tail("0123456789", 4))

	// Do not split a multi-byte rune.
	out := tail("aé", 1)
	assert.Equal(t, "...", out)
}
