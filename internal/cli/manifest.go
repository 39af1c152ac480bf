package cli

import (
	"github.com/spf13/cobra"

	"github.com/harun/biomni/pkg/plugin"
)

var manifestMain string

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Print the plugin manifest as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		return plugin.BuildManifest(version, manifestMain).WriteYAML(cmd.OutOrStdout())
	},
}

func init() {
	manifestCmd.Flags().StringVar(&manifestMain, "main", "biomni", "plugin binary the host launches")
	rootCmd.AddCommand(manifestCmd)
}
