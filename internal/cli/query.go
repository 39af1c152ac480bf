package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/harun/biomni/pkg/tool"
)

// errQueryFailed is returned after the failure message was printed
var errQueryFailed = errors.New("query did not complete")

var (
	queryMaxTime     int
	queryNoCitations bool
	queryRaw         bool
)

var queryCmd = &cobra.Command{
	Use:   "query <research question>",
	Short: "Run one research query locally",
	Long: `Run one research query through the same path the host uses and print the
messages the tool emits. Markdown is rendered for the terminal unless --raw.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().IntVar(&queryMaxTime, "max-time", 0, "max execution time in seconds (default from config)")
	queryCmd.Flags().BoolVar(&queryNoCitations, "no-citations", false, "omit references from the result")
	queryCmd.Flags().BoolVar(&queryRaw, "raw", false, "print markdown without rendering")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	a, err := newApp(os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	params := map[string]any{
		"research_query":    strings.Join(args, " "),
		"include_citations": !queryNoCitations,
	}
	if queryMaxTime > 0 {
		params["max_execution_time"] = queryMaxTime
	}

	ctx, stop := interruptContext(cmd.Context())
	defer stop()

	msgs, err := a.provider.InvokeTool(ctx, tool.Name, params)
	if err != nil {
		return err
	}

	if err := renderMessages(cmd.OutOrStdout(), msgs, queryRaw); err != nil {
		return err
	}

	if len(msgs) == 0 || msgs[len(msgs)-1].Kind != tool.MessageResult {
		return errQueryFailed
	}
	return nil
}

// renderMessages prints each message, as terminal markdown unless raw
func renderMessages(w io.Writer, msgs []tool.Message, raw bool) error {
	var r *glamour.TermRenderer
	if !raw {
		var err error
		r, err = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(100),
		)
		if err != nil {
			return fmt.Errorf("failed to create markdown renderer: %w", err)
		}
	}

	for _, m := range msgs {
		text := m.Text
		if r != nil {
			out, err := r.Render(text)
			if err != nil {
				return fmt.Errorf("failed to render %s message: %w", m.Kind, err)
			}
			text = out
		}
		if _, err := fmt.Fprintln(w, strings.TrimRight(text, "\n")); err != nil {
			return err
		}
		if raw {
			fmt.Fprintln(w)
		}
	}
	return nil
}
