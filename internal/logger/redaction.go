package logger

import (
	"io"
	"regexp"
	"sync"
)

// minSecretLen keeps short values such as "1" from masking unrelated text
const minSecretLen = 8

// Redactor redacts sensitive information from logs
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
}

// NewRedactor creates a new redactor with default patterns
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*regexp.Regexp{
			// Anthropic before the generic sk- form
			regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{20,}`),
			regexp.MustCompile(`sk-(proj-)?[a-zA-Z0-9_-]{20,}`),

			// Groq
			regexp.MustCompile(`gsk_[a-zA-Z0-9]{20,}`),

			// Google / Gemini
			regexp.MustCompile(`AIza[0-9A-Za-z_-]{35}`),

			// AWS access key ids
			regexp.MustCompile(`(AKIA|ASIA)[0-9A-Z]{16}`),

			// Bearer tokens
			regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._-]+`),

			// Key-value secrets
			regexp.MustCompile(`(?i)(api[_-]?key|secret|password|token)["\s:=]+[^\s",}]{8,}`),
		},
	}
}

// AddPattern adds a custom redaction pattern
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.patterns = append(r.patterns, re)
	r.mu.Unlock()
	return nil
}

// AddSecret masks a literal value, such as a configured key
func (r *Redactor) AddSecret(value string) {
	if len(value) < minSecretLen {
		return
	}
	r.mu.Lock()
	r.patterns = append(r.patterns, regexp.MustCompile(regexp.QuoteMeta(value)))
	r.mu.Unlock()
}

// Redact redacts sensitive information from a string
func (r *Redactor) Redact(s string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := s
	for _, pattern := range r.patterns {
		result = pattern.ReplaceAllString(result, "[REDACTED]")
	}
	return result
}

// Wrap wraps an io.Writer to redact sensitive information
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{
		writer:   w,
		redactor: r,
	}
}

// redactingWriter is an io.Writer that redacts sensitive information
type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

// Write reports len(p); the redacted line may be shorter
func (w *redactingWriter) Write(p []byte) (int, error) {
	if _, err := w.writer.Write([]byte(w.redactor.Redact(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}
