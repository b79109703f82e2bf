// Command flowline runs pipelines described in a YAML definition.
//
//	flowline validate --config pipelines.yaml
//	flowline run --config pipelines.yaml
//
// Process settings come from FLOWLINE_* environment variables; see
// config.Settings.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "flowline",
		Short:         "flowline runs in-process message pipelines",
		Long:          `Build pipelines from a YAML definition, run them, and export their statistics to Prometheus.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newValidateCmd(), newVersionCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
