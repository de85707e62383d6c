/*
Command strata wires the document store, producer queue, access
checker, and ambient stack (config, logging, metrics) into a running
process: one cobra root with persistent logging flags and an
init-then-dispatch shape, fanning out to the serve/migrate/bench
subcommands.
*/
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/strata/pkg/strlog"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "strata",
	Short:   "Strata - an embedded document store framework",
	Version: Version,
	Long: `Strata is a document-store framework: a schema-typed key/value
layer, a producer/outbox queue for notifying remote peers of mutations,
and an ACL-based access checker, all running in a single process.`,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("strata version %s\ncommit: %s\nbuilt: %s\n", Version, Commit, BuildTime))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(benchCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	strlog.Init(strlog.Config{
		Level:      strlog.Level(level),
		JSONOutput: jsonOut,
	})
}
