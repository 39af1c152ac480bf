package formatter

import (
	"fmt"
	"strings"
	"time"

	"github.com/harun/biomni/pkg/invoker"
)

// queryPreviewLen bounds the query echoed in the started message
const queryPreviewLen = 200

// ValidationMessage is shown when no query was given
func ValidationMessage() string {
	return "❌ **Error**: Please provide a research query"
}

// NotConfiguredMessage is shown when the environment check failed
func NotConfiguredMessage(err error) string {
	return fmt.Sprintf("❌ **Error**: Biomni agent is not properly configured. %v\n\n"+
		"Set BIOMNI_AGENT_IMPORT or ensure the Biomni package is installed.", err)
}

// StartedMessage announces a dispatched query
func StartedMessage(query string, maxTime time.Duration, includeCitations bool) string {
	citations := "Disabled"
	if includeCitations {
		citations = "Enabled"
	}
	return fmt.Sprintf("🧬 **Biomni Agent Started**\n\n"+
		"**Query**: %s\n"+
		"**Max Time**: %d seconds\n"+
		"**Citations**: %s\n\n"+
		"⏳ **Status**: Processing your biomedical research query...",
		preview(query), seconds(maxTime), citations)
}

// SlowWarningMessage is shown when execution ran past the configured bound
func SlowWarningMessage(elapsed, maxTime time.Duration) string {
	return fmt.Sprintf("⚠️ **Warning**: Execution took %.1f seconds (limit %d seconds)",
		elapsed.Seconds(), seconds(maxTime))
}

// CompletedMessage carries the formatted result
func CompletedMessage(query string, out *invoker.Outcome, includeCitations bool) string {
	return fmt.Sprintf("✅ **Biomni Analysis Complete**\n\n"+
		"**Query**: %s\n\n"+
		"**Execution Time**: %.1f seconds\n\n"+
		"**Results**:\n\n%s",
		query, out.Elapsed.Seconds(), Format(out.Payload, includeCitations))
}

// TimeoutMessage reports an elapsed bound
func TimeoutMessage(bound time.Duration) string {
	return fmt.Sprintf("⏰ **Timeout**: The analysis exceeded the maximum execution time of %d seconds. "+
		"Try breaking down your query into smaller parts or increasing the timeout limit.", seconds(bound))
}

// ErrorMessage reports a failed invocation with troubleshooting tips
func ErrorMessage(query string, f *invoker.Failure) string {
	var b strings.Builder
	b.WriteString("❌ **Biomni Agent Error**\n\n")
	fmt.Fprintf(&b, "**Error**: %s\n", failureText(f))
	fmt.Fprintf(&b, "**Query**: %s\n\n", query)

	if f != nil && (f.Stderr != "" || f.Stdout != "") {
		b.WriteString("**Diagnostics**:\n```\n")
		if f.Stderr != "" {
			b.WriteString(f.Stderr)
			b.WriteString("\n")
		}
		if f.Stdout != "" {
			b.WriteString(f.Stdout)
			b.WriteString("\n")
		}
		b.WriteString("```\n\n")
	}

	b.WriteString("**Troubleshooting Tips**:\n")
	if f != nil && isImportFailure(f) {
		b.WriteString("• Install the agent package: pip install biomni\n")
		b.WriteString("• Set BIOMNI_PYTHON_PATH if Biomni is not installed in the interpreter's site-packages\n")
	}
	b.WriteString("• Check if your query is properly formatted\n")
	b.WriteString("• Ensure the Biomni agent is running and accessible\n")
	b.WriteString("• Set BIOMNI_AGENT_IMPORT and BIOMNI_AGENT_METHOD appropriately\n")
	b.WriteString("• Check the logs for more detailed error information")
	return b.String()
}

func failureText(f *invoker.Failure) string {
	if f == nil {
		return "unknown error"
	}
	if f.ErrorType != "" {
		return f.ErrorType + ": " + f.Message
	}
	return f.Message
}

func isImportFailure(f *invoker.Failure) bool {
	return f.ErrorType == "ImportError" || f.ErrorType == "ModuleNotFoundError" || f.Kind == invoker.KindSpawn
}

func preview(query string) string {
	runes := []rune(query)
	if len(runes) <= queryPreviewLen {
		return query
	}
	return string(runes[:queryPreviewLen]) + "..."
}

func seconds(d time.Duration) int {
	return int(d.Seconds())
}
