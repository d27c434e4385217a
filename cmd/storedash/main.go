// cmd/storedash/main.go
//
// storedash – store dashboard service and form tooling.
//
// Commands
// --------
//
//	storedash serve                              run the HTTP service
//	storedash forms list   [--dir forms]         print registered forms
//	storedash forms check  <file.yaml>...        structure-check definitions
//	storedash forms validate <form-id> <values.yaml> [--role staff]
//	                                             run the submit gate offline
//	storedash version
//
// Large comment blocks are framed by blank “//” lines; inline comments use
// a single “//”.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "storedash",
		Short: "Store management dashboard service",
		Long: `storedash serves the store dashboard API: role-aware form definitions,
server-side form validation, post-submit actions, and list screens backed by
the store REST backend.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), formsCmd(), versionCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "storedash %s (%s) %s %s/%s\n",
				version, commit, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
