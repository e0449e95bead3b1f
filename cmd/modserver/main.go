package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "modserver:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "modserver",
		Short: "Modular HTTP server with a cached static file backend",
		Long: `modserver runs a registry of modules: a file cache, a request handler
that routes exact paths and falls back to static files, a connection-level
HTTP/1.1 server and an admin actuator.

Any configuration key can be overridden on the command line with a dotted
flag, for example --server.port=9090 or --cache.root ./site.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("modserver version {{.Version}}\n")
	root.AddCommand(newServeCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "modserver version %s\n", version)
		},
	}
}
