package tool

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/xeipuuv/gojsonschema"

	"github.com/harun/biomni/pkg/invoker"
)

// ErrInvalidParams is returned when parameters fail schema validation
var ErrInvalidParams = errors.New("invalid tool parameters")

// Params are the coerced tool parameters
type Params struct {
	Query            string
	MaxExecutionTime time.Duration
	IncludeCitations bool
}

// ParseParams validates raw host parameters and coerces them. A missing or
// blank query yields invoker.ErrEmptyQuery.
func ParseParams(schema *gojsonschema.Schema, raw map[string]any, defaultTimeout time.Duration) (Params, error) {
	var query string
	switch q := raw["research_query"].(type) {
	case nil:
		return Params{}, invoker.ErrEmptyQuery
	case string:
		query = strings.TrimSpace(q)
		if query == "" {
			return Params{}, invoker.ErrEmptyQuery
		}
	}

	if schema != nil {
		result, err := schema.Validate(gojsonschema.NewGoLoader(raw))
		if err != nil {
			return Params{}, fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		if !result.Valid() {
			msgs := make([]string, 0, len(result.Errors()))
			for _, e := range result.Errors() {
				msgs = append(msgs, e.String())
			}
			return Params{}, fmt.Errorf("%w: %s", ErrInvalidParams, strings.Join(msgs, "; "))
		}
	}

	return Params{
		Query:            query,
		MaxExecutionTime: maxExecutionTime(raw["max_execution_time"], defaultTimeout),
		IncludeCitations: toBool(raw["include_citations"], true),
	}, nil
}

// maxTimeoutSeconds is the largest bound a time.Duration can hold
const maxTimeoutSeconds = math.MaxInt64 / int64(time.Second)

// maxExecutionTime reads seconds; absent, zero, negative or unparseable
// values fall back to def. Values past what a Duration holds are clamped.
func maxExecutionTime(v any, def time.Duration) time.Duration {
	if v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		v = strings.TrimSpace(s)
	}
	if f, ok := v.(float64); ok && f >= float64(maxTimeoutSeconds) {
		return time.Duration(maxTimeoutSeconds) * time.Second
	}

	n, err := cast.ToInt64E(v)
	if err != nil {
		// out of int64 range or exponent notation
		f, ferr := cast.ToFloat64E(v)
		if ferr != nil || math.IsNaN(f) {
			return def
		}
		if f >= float64(maxTimeoutSeconds) {
			return time.Duration(maxTimeoutSeconds) * time.Second
		}
		n = int64(f)
	}
	if n <= 0 {
		return def
	}
	if n > maxTimeoutSeconds {
		n = maxTimeoutSeconds
	}
	return time.Duration(n) * time.Second
}

func toBool(v any, def bool) bool {
	switch t := v.(type) {
	case nil:
		return def
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "yes", "y", "on":
			return true
		case "false", "0", "no", "n", "off":
			return false
		}
		return def
	}

	f, err := cast.ToFloat64E(v)
	if err != nil {
		return def
	}
	return f != 0
}
