package formatter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"

	"github.com/harun/biomni/pkg/invoker"
)

// Section is one labeled part of a structured result
type Section struct {
	Key      string
	Label    string
	Citation bool
}

// Sections are rendered in this order
var Sections = []Section{
	{Key: "analysis", Label: "Analysis"},
	{Key: "conclusions", Label: "Conclusions"},
	{Key: "recommendations", Label: "Recommendations"},
	{Key: "references", Label: "References", Citation: true},
}

// Format renders a payload for display
func Format(p invoker.Payload, includeCitations bool) (out string) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Error formatting result")
			out = "Result: " + fmt.Sprint(p.Value)
		}
	}()

	switch p.Kind {
	case invoker.PayloadText, invoker.PayloadRaw:
		return p.Text
	case invoker.PayloadStructured:
		return formatFields(p.Fields, includeCitations)
	default:
		return stringify(p.Value)
	}
}

func formatFields(fields map[string]any, includeCitations bool) string {
	var b strings.Builder
	for _, s := range Sections {
		if s.Citation && !includeCitations {
			continue
		}
		value, ok := fields[s.Key]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "**%s**:\n%s\n\n", s.Label, stringify(value))
	}

	if b.Len() == 0 {
		return stringify(fields)
	}
	return b.String()
}

// stringify renders scalars as-is, lists as bullet lines and anything else as
// JSON
func stringify(v any) string {
	if v == nil {
		return ""
	}

	if items, ok := v.([]any); ok {
		lines := make([]string, 0, len(items))
		for _, item := range items {
			lines = append(lines, "- "+stringify(item))
		}
		return strings.Join(lines, "\n")
	}

	if s, err := cast.ToStringE(v); err == nil {
		return s
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
