// Command regisc is the local administrative console for regisd
// (spec.md §6): it dials the daemon's Unix console socket and either
// runs one quick command or drives an interactive REPL.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	optRoot    string
	optQuick   string
	optVerbose bool
)

var rootCmd = &cobra.Command{
	Use:     "regisc",
	Short:   "Console for the regisd host-telemetry daemon",
	Version: "0.1.0",
	RunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelWarn
		if optVerbose {
			level = slog.LevelDebug
		}
		log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

		socketPath := consoleSocketPath(optRoot)
		log.Debug("dialing console socket", "path", socketPath)

		c, err := dial(socketPath)
		if err != nil {
			return err
		}
		defer func() { _ = c.close() }()

		if optQuick != "" {
			quick, err := parseQuickCommand(optQuick)
			if err != nil {
				return err
			}
			log.Info("sending quick command", "command", quick)
			return runQuick(c, quick)
		}

		return runREPL(c, os.Stdin, os.Stdout)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().StringVar(&optRoot, "root", defaultRoot, "on-disk root regisd was started with (locates its console socket)")
	rootCmd.Flags().StringVarP(&optQuick, "quick", "q", "", "connect, send one request (Shutdown, Config, or Poll), and exit")
	rootCmd.Flags().BoolVarP(&optVerbose, "verbose", "v", false, "debug-level logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "regisc:", err)
		os.Exit(1)
	}
}
