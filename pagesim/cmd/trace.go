package cmd

import (
	"fmt"
	"io"
	"os"
	"slices"
	"sort"

	"github.com/spf13/cobra"

	"github.com/sarchlab/pagesim/datarecording"
	"github.com/sarchlab/pagesim/mem/trace"
)

var traceCmd = &cobra.Command{
	Use:   "trace <db-file>",
	Short: "Summarize a recorded memory trace.",
	Long: "`trace` reads a database written by `run --trace-db` and prints " +
		"the number of events per hook position and per domain. With " +
		"`--last N` it also lists the newest N events.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pos, _ := cmd.Flags().GetString("pos")
		domain, _ := cmd.Flags().GetString("domain")
		last, _ := cmd.Flags().GetInt("last")

		if _, err := os.Stat(args[0]); err != nil {
			return err
		}

		reader, err := datarecording.NewReader(args[0])
		if err != nil {
			return err
		}
		defer reader.Close()

		ctx := cmd.Context()

		tables, err := reader.ListTables(ctx)
		if err != nil {
			return err
		}

		if !slices.Contains(tables, trace.TableName) {
			return fmt.Errorf("%s has no %s table", args[0], trace.TableName)
		}

		filter := trace.Filter{Pos: pos, Domain: domain}

		s, err := trace.Summarize(ctx, reader, filter)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%d events\n", s.Total)
		printCountMap(out, "position", s.ByPos)
		printCountMap(out, "domain", s.ByDomain)

		if last <= 0 {
			return nil
		}

		events, err := trace.Last(ctx, reader, filter, last)
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "\nlast %d event(s):\n", len(events))
		for _, e := range events {
			printEvent(out, e)
		}

		return nil
	},
}

func init() {
	traceCmd.Flags().String("pos", "", "Only count events of this hook position.")
	traceCmd.Flags().String("domain", "", "Only count events of this domain.")
	traceCmd.Flags().Int("last", 0, "List the newest N events.")
	rootCmd.AddCommand(traceCmd)
}

func printCountMap(out io.Writer, title string, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(out, "\nby %s:\n", title)
	for _, k := range keys {
		fmt.Fprintf(out, "  %-16s %d\n", k, counts[k])
	}
}

func printEvent(out io.Writer, e trace.Event) {
	fmt.Fprintf(out, "  %6d %-12s %-16s 0x%08x", e.Seq, e.Domain, e.Pos, e.Address)

	if e.Frame != 0 {
		fmt.Fprintf(out, " frame=%d", e.Frame)
	}

	if e.Length != 0 {
		fmt.Fprintf(out, " length=%d", e.Length)
	}

	if e.Detail != "" {
		fmt.Fprintf(out, " %s", e.Detail)
	}

	fmt.Fprintln(out)
}
