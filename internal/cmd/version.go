package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/olakz-ops/export-chat-converter/internal/app"
	"github.com/olakz-ops/export-chat-converter/internal/version"
)

var versionLong bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return writeVersion(cmd.OutOrStdout(), version.Get(), versionLong)
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionLong, "long", false, "Print detailed version information as JSON")
	rootCmd.AddCommand(versionCmd)
}

// writeVersion prints "wachat v1.2.0 (3f2c1ab, 2024-02-01T09:00:00Z) go1.24.0",
// or the whole BuildInfo as JSON when long is set.
func writeVersion(w io.Writer, info version.BuildInfo, long bool) error {
	if long {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	line := app.ApplicationName + " " + info.String()
	if info.GoVersion != "" {
		line += " " + info.GoVersion
	}
	_, err := fmt.Fprintln(w, line)
	return err
}
