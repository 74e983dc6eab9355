package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sarchlab/pagesim/kernel"
	"github.com/sarchlab/pagesim/mem/frame"
	"github.com/sarchlab/pagesim/mem/mm"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print the machine layout.",
	Long: "`info` prints the configured physical layout. With `--frames N` " +
		"it also prints how many info frames a pool of N frames needs.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		frames, _ := cmd.Flags().GetUint64("frames")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		printLayout(out, cfg)

		if frames > 0 {
			fmt.Fprintf(out, "\n%d frames need %d info frame(s).\n",
				frames, frame.NeededInfoFrames(frames))
		}

		return nil
	},
}

func init() {
	infoCmd.Flags().Uint64("frames", 0, "Number of frames of a pool.")
	rootCmd.AddCommand(infoCmd)
}

func printFrames(out io.Writer, name string, base mm.Frame, n uint64) {
	fmt.Fprintf(out, "%-14s frames %5d-%5d  [0x%08x, 0x%08x)\n",
		name, base, uint64(base)+n-1,
		uint64(base.Address()), uint64(base.Address())+n*mm.PageSize)
}

func printLayout(out io.Writer, cfg kernel.Config) {
	fmt.Fprintf(out, "memory         %d MiB\n", cfg.MemorySize/mm.MB)
	printFrames(out, "kernel pool", cfg.KernelPoolBase, cfg.KernelPoolFrames)
	printFrames(out, "process pool", cfg.ProcessPoolBase, cfg.ProcessPoolFrames)

	if cfg.HoleFrames > 0 {
		printFrames(out, "hole", cfg.HoleBase, cfg.HoleFrames)
	}

	fmt.Fprintf(out, "shared         [0x%08x, 0x%08x)  user=%t\n",
		0, cfg.SharedSize, cfg.UserShared)
	fmt.Fprintf(out, "code catalog   [0x%08x, 0x%08x)\n",
		uint32(cfg.CodeBase), uint64(cfg.CodeBase)+cfg.CodeSize)
	fmt.Fprintf(out, "heap catalog   [0x%08x, 0x%08x)\n",
		uint32(cfg.HeapBase), uint64(cfg.HeapBase)+cfg.HeapSize)
	fmt.Fprintf(out, "tlb ways       %d\n", cfg.TLBWays)
}
