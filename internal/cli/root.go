// Package cli implements the hd4ctl command tree.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// #region root

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/vireosec/hd4-controller/internal/cli.version=1.2.3"
	version = "0.4.0"

	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "hd4ctl",
	Short: "hd4ctl - two-speed entity processing controller",
	Long: "hd4ctl runs the HD4 controller: a fast observe/orient/decide/act loop\n" +
		"over tracked entities, with slow correlation work pushed to the background.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("hd4ctl %s\n", version)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(exportFixtureCmd)
	rootCmd.AddCommand(initDBCmd)
}

// #endregion root
