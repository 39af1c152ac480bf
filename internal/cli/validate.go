package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/harun/biomni/pkg/credentials"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the agent environment",
	Long: `Check that the model's API key is set, the data directory is writable and,
unless use_subprocess is off, that the agent package imports.`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	a, err := newApp(os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := interruptContext(cmd.Context())
	defer stop()

	if err := a.provider.ValidateCredentials(ctx, nil); err != nil {
		return err
	}

	printReport(cmd.OutOrStdout(), a.provider.Report(), a.cfg.DataPath)
	return nil
}

func printReport(w io.Writer, r *credentials.Report, dataPath string) {
	fmt.Fprintf(w, "Model: %s\n", r.Model)
	switch {
	case !r.KnownProvider:
		fmt.Fprintln(w, "Provider: unknown (credentials not checked)")
	case r.Provider.Secret == "":
		fmt.Fprintf(w, "Provider: %s (no key required)\n", r.Provider.Name)
	default:
		fmt.Fprintf(w, "Provider: %s (%s set)\n", r.Provider.Name, r.Provider.Secret)
	}
	fmt.Fprintf(w, "Data path: %s\n", dataPath)
	if r.Agent != nil {
		version := r.Agent.Version
		if version == "" {
			version = "unknown"
		}
		fmt.Fprintf(w, "Agent: method %s, version %s\n", r.Agent.Method, version)
	} else {
		fmt.Fprintln(w, "Agent: import not checked")
	}
	fmt.Fprintln(w, "Status: ready")
}
