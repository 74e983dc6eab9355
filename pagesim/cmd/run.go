package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sarchlab/pagesim/datarecording"
	"github.com/sarchlab/pagesim/kernel"
	"github.com/sarchlab/pagesim/mem/mm"
	"github.com/sarchlab/pagesim/mem/trace"
	"github.com/sarchlab/pagesim/monitoring"
	"github.com/sarchlab/pagesim/sim/hooking"
	"github.com/sarchlab/pagesim/sim/id"
)

// Workload parameters of the built-in tests.
const (
	faultAddr      = mm.VAddr(4 * mm.MB)
	numAccesses    = 2 * 1024
	regionRounds   = 50
	regionWordStep = 100
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Boot the machine and run a memory-reference test.",
	Long: "`run --test pagetable` touches memory above the shared region " +
		"with no region catalog. `run --test vmpool` allocates and frees " +
		"arrays in the code and heap catalogs.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		test, _ := cmd.Flags().GetString("test")
		traceDB, _ := cmd.Flags().GetString("trace-db")
		withMonitor, _ := cmd.Flags().GetBool("monitor")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if traceDB != "" {
			cfg.TraceDB = traceDB
		}

		switch test {
		case "pagetable":
		case "vmpool":
			cfg.CreateRegions = true
		default:
			return fmt.Errorf("unknown test %q, want pagetable or vmpool", test)
		}

		return runTest(cmd.OutOrStdout(), cfg, test, withMonitor)
	},
}

func init() {
	runCmd.Flags().String("test", "pagetable", "pagetable or vmpool.")
	runCmd.Flags().String("trace-db", "",
		"Record every memory event into <trace-db>.sqlite3.")
	runCmd.Flags().Bool("monitor", false,
		"Serve the monitoring API while the test runs.")
	rootCmd.AddCommand(runCmd)
}

func runTest(out io.Writer, cfg kernel.Config, test string, withMonitor bool) error {
	counter := hooking.NewCountHook()
	hooks := append(logHooks(), counter)

	var tracer *trace.DBTracer
	if cfg.TraceDB != "" {
		recorder := datarecording.New(cfg.TraceDB)
		defer recorder.Close()

		tracer = trace.NewDBTracer(recorder, id.NewIDGenerator())
		hooks = append(hooks, tracer)
	}

	halt := kernel.NewHaltPolicy()
	for _, h := range hooks {
		halt.AcceptHook(h)
	}

	sys, err := kernel.Boot(cfg, hooks...)
	if err := halt.Check(err); err != nil {
		return err
	}

	var progress kernel.Progress
	if withMonitor || cfg.MonitorPort != 0 {
		m := newMonitor(sys, cfg.MonitorPort)

		url, err := m.StartServer()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Monitoring with %s\n", url)

		bar := m.CreateProgressBar(test, workloadSize(test))
		defer m.CompleteProgressBar(bar)
		progress = bar
	}

	err = runWorkload(sys, test, progress)
	if err := halt.Check(err); err != nil {
		return err
	}

	fmt.Fprintf(out, "Test %s passed.\n", test)
	printSummary(out, sys)
	printCounts(out, counter)

	if tracer != nil {
		tracer.Flush()
		fmt.Fprintf(out, "Recorded %d events into %s.sqlite3.\n",
			tracer.NumEvents(), cfg.TraceDB)
	}

	return nil
}

func workloadSize(test string) uint64 {
	if test == "vmpool" {
		return 2 * (regionRounds - 1)
	}

	return numAccesses
}

func runWorkload(sys *kernel.System, test string, progress kernel.Progress) error {
	if test == "pagetable" {
		return kernel.PageTableReferences(sys.MMU, faultAddr, numAccesses, progress)
	}

	for _, pool := range []kernel.Allocator{sys.Code, sys.Heap} {
		err := kernel.RegionReferences(sys.MMU, pool,
			regionRounds, regionWordStep, progress)
		if err != nil {
			return err
		}
	}

	return nil
}

func newMonitor(sys *kernel.System, port int) *monitoring.Monitor {
	m := monitoring.NewMonitor().WithPortNumber(port)
	m.RegisterFrameRegistry(sys.Registry)
	m.RegisterMMU(sys.MMU)
	m.RegisterPaging(sys.Paging)

	if sys.Code != nil {
		m.RegisterComponent(sys.Code)
		m.RegisterComponent(sys.Heap)
	}

	return m
}

func printSummary(out io.Writer, sys *kernel.System) {
	for _, p := range sys.Registry.Pools() {
		s := p.Snapshot()
		fmt.Fprintf(out, "%-12s frames %5d-%5d  free %5d  runs %d\n",
			s.Name, s.BaseFrame, s.BaseFrame+s.NumFrames-1, s.NumFree, s.NumRuns)
	}

	ps := sys.Paging.Stats()
	fmt.Fprintf(out, "paging       faults %d  tables %d  mapped %d  freed %d\n",
		ps.Faults, ps.NewTables, ps.Mapped, ps.Freed)

	ms := sys.MMU.Stats()
	fmt.Fprintf(out, "mmu          accesses %d  hits %d  walks %d  flushes %d\n",
		ms.Accesses, ms.CacheHits, ms.Walks, ms.Flushes)
}

func printCounts(out io.Writer, counter *hooking.CountHook) {
	for _, name := range counter.PosNames() {
		fmt.Fprintf(out, "%-16s %d\n",
			name, counter.Count(&hooking.HookPos{Name: name}))
	}
}
