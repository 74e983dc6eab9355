// Package cmd provides the command-line interface of pagesim.
package cmd

import (
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/pagesim/kernel"
	"github.com/sarchlab/pagesim/sim/hooking"
)

var (
	quiet   bool
	envFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pagesim",
	Short: "pagesim simulates a frame allocator and a two-level demand pager.",
	Long: `pagesim boots a small machine with a kernel and a process frame ` +
		`pool, enables paging and runs memory-reference workloads that are ` +
		`served by page faults.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false,
		"Do not log memory events to stderr.")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env",
		"File with PAGESIM_* defaults.")
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}
}

func loadConfig() (kernel.Config, error) {
	return kernel.LoadConfig(envFile)
}

// logHooks returns the hooks that print events, or none when quiet.
func logHooks() []hooking.Hook {
	if quiet {
		return nil
	}

	return []hooking.Hook{
		hooking.NewLogHook(log.New(os.Stderr, "", log.Lmicroseconds)),
	}
}
