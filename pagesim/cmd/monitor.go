package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/sarchlab/pagesim/kernel"
)

// waitForInterrupt blocks until the process receives SIGINT or SIGTERM.
var waitForInterrupt = func() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	<-stop
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Boot the machine and serve the monitoring API.",
	Long: "`monitor` boots the machine with the code and heap catalogs, runs " +
		"the vmpool test once and keeps serving until interrupted.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		port, _ := cmd.Flags().GetInt("port")
		open, _ := cmd.Flags().GetBool("open")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if cmd.Flags().Changed("port") || cfg.MonitorPort == 0 {
			cfg.MonitorPort = port
		}
		cfg.CreateRegions = true

		halt := kernel.NewHaltPolicy()
		hooks := logHooks()
		for _, h := range hooks {
			halt.AcceptHook(h)
		}

		sys, err := kernel.Boot(cfg, hooks...)
		if err := halt.Check(err); err != nil {
			return err
		}

		m := newMonitor(sys, cfg.MonitorPort)

		url, err := m.StartServer()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Monitoring with %s\n", url)

		if open {
			if err := browser.OpenURL(url); err != nil {
				fmt.Fprintf(os.Stderr, "cannot open browser: %v\n", err)
			}
		}

		bar := m.CreateProgressBar("vmpool", workloadSize("vmpool"))
		err = runWorkload(sys, "vmpool", bar)
		if err := halt.Check(err); err != nil {
			return err
		}
		m.CompleteProgressBar(bar)

		printSummary(out, sys)

		waitForInterrupt()

		return nil
	},
}

func init() {
	monitorCmd.Flags().Int("port", 0, "Port of the monitoring server.")
	monitorCmd.Flags().Bool("open", false, "Open the monitor in a browser.")
	rootCmd.AddCommand(monitorCmd)
}
