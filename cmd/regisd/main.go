// Command regisd is the host-telemetry daemon (spec.md §1). It wires the
// orchestrator and its four supervised worker tasks, then blocks until
// graceful shutdown.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var opts daemonOptions

var rootCmd = &cobra.Command{
	Use:   "regisd",
	Short: "Host-telemetry daemon",
	Long: `regisd samples host resource metrics on an interval, retains a
bounded recent history, and serves it to remote authenticated clients
and a local administrative console.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if opts.daemon && !isForegroundChild() {
			if err := daemonize(pidFilePath(opts.root)); err != nil {
				return exitError{code: exitDaemonize, err: err}
			}
			return nil
		}

		code, err := runDaemon(context.Background(), opts)
		if err != nil {
			return exitError{code: code, err: err}
		}
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// exitError carries the specific exit code a failure maps to (spec.md
// §6), surfaced through cobra's error return rather than an early
// os.Exit so deferred cleanup in runDaemon still runs.
type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string { return e.err.Error() }
func (e exitError) Unwrap() error { return e.err }

func init() {
	rootCmd.Flags().StringVar(&opts.root, "root", defaultRoot, "on-disk root for config, auth state, and the console socket")
	rootCmd.Flags().BoolVar(&opts.daemon, "daemon", false, "run detached from the launching terminal")
	rootCmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "info-level logging")
	rootCmd.Flags().BoolVar(&opts.debug, "debug", false, "debug-level logging")
	rootCmd.Flags().BoolVar(&opts.overrideConfig, "override-config", false, "fall back to default configuration when the on-disk file is missing or invalid")
	rootCmd.Flags().StringVar(&opts.stdout, "stdout", "", "redirect stdout to this file")
	rootCmd.Flags().StringVar(&opts.stderr, "stderr", "", "redirect stderr to this file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var ee exitError
		if errors.As(err, &ee) {
			fmt.Fprintln(os.Stderr, "regisd:", ee.err)
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, "regisd:", err)
		os.Exit(exitUnexpected)
	}
}
