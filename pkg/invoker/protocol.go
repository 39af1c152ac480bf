package invoker

import (
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

type blockKind int

const (
	resultBlock blockKind = iota
	errorBlock
)

// block is the text captured between one pair of marker lines
type block struct {
	kind blockKind
	body string
}

// scanBlocks finds every complete marker-delimited block in stdout. An
// unterminated block is ignored.
func scanBlocks(stdout string) []block {
	var (
		blocks  []block
		current *block
		lines   []string
	)

	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimRight(line, "\r")
		marker := strings.TrimSpace(line)

		if current == nil {
			switch marker {
			case ResultStart:
				current = &block{kind: resultBlock}
				lines = lines[:0]
			case ErrorStart:
				current = &block{kind: errorBlock}
				lines = lines[:0]
			}
			continue
		}

		if (current.kind == resultBlock && marker == ResultEnd) || (current.kind == errorBlock && marker == ErrorEnd) {
			current.body = strings.TrimSpace(strings.Join(lines, "\n"))
			blocks = append(blocks, *current)
			current = nil
			continue
		}
		lines = append(lines, line)
	}

	return blocks
}

// findBlock returns the last block of the given kind that belongs to this
// invocation. Blocks carrying a different nonce were printed by something
// else and are skipped; unparseable blocks are kept so they can degrade to raw
// text.
func findBlock(blocks []block, kind blockKind, nonce string) (block, bool) {
	for i := len(blocks) - 1; i >= 0; i-- {
		b := blocks[i]
		if b.kind != kind {
			continue
		}
		if gjson.Valid(b.body) {
			if n := gjson.Get(b.body, "nonce"); n.Exists() && n.String() != nonce {
				continue
			}
		}
		return b, true
	}
	return block{}, false
}

// decodeResult turns a success block into a payload. Invalid JSON becomes a
// PayloadRaw carrying the captured text.
func decodeResult(body string) (Payload, Metadata, *Failure) {
	if !gjson.Valid(body) {
		return Payload{Kind: PayloadRaw, Text: body}, Metadata{}, nil
	}

	doc := gjson.Parse(body)
	if s := doc.Get("success"); s.Exists() && !s.Bool() {
		return Payload{}, Metadata{}, decodeError(body)
	}

	meta := Metadata{Model: doc.Get("model").String()}
	if extra, ok := doc.Get("metadata").Value().(map[string]any); ok {
		meta.Extra = extra
	}

	result := doc.Get("result")
	switch {
	case result.Type == gjson.String:
		return Payload{Kind: PayloadText, Text: result.String()}, meta, nil
	case result.IsObject():
		fields, _ := result.Value().(map[string]any)
		return Payload{Kind: PayloadStructured, Fields: fields, Value: fields}, meta, nil
	default:
		return Payload{Kind: PayloadOther, Value: result.Value()}, meta, nil
	}
}

// decodeError turns an error block into a failure
func decodeError(body string) *Failure {
	if !gjson.Valid(body) {
		return &Failure{Kind: KindAgent, Message: body}
	}

	doc := gjson.Parse(body)
	message := doc.Get("error").String()
	if message == "" {
		message = "agent reported failure without a message"
	}
	return &Failure{
		Kind:      KindAgent,
		Message:   message,
		ErrorType: doc.Get("error_type").String(),
		Traceback: doc.Get("traceback").String(),
	}
}

// tail keeps the last n bytes of s, cut on a rune boundary
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	start := len(s) - n
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return "..." + s[start:]
}
