package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/scandex/scandex/internal/stats"
)

// statsOptions holds CLI flags for the stats command.
type statsOptions struct {
	compute bool
	top     int
}

// newStatsCmd creates the stats subcommand.
func newStatsCmd(global *globalOptions) *cobra.Command {
	opts := &statsOptions{}

	cmd := &cobra.Command{
		Use:   "stats [scan-id]",
		Short: "Show aggregate statistics for a scan",
		Long: `Shows extension and owner breakdowns for a scan (the most recent one
unless a scan id is given), plus the largest directories when per-directory
rollups have been computed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			arg := ""
			if len(args) == 1 {
				arg = args[0]
			}
			return runStats(arg, global, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.compute, "compute", false, "Recompute per-directory rollups first")
	cmd.Flags().IntVar(&opts.top, "top", 10, "Number of rows per breakdown")

	return cmd
}

func runStats(scanArg string, global *globalOptions, opts *statsOptions) error {
	cfg, err := loadConfig(global)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	scanID, err := resolveScanID(st, scanArg)
	if err != nil {
		return err
	}

	if opts.compute {
		if _, err := stats.Compute(st, scanID, logger); err != nil {
			return err
		}
	}

	files, err := st.TotalFiles(scanID)
	if err != nil {
		return err
	}
	bytes, err := st.TotalSize(scanID)
	if err != nil {
		return err
	}
	fmt.Printf("Scan %s: %s files, %s\n", scanID,
		humanize.Comma(files), humanize.IBytes(uint64(bytes)))

	extensions, err := st.ExtensionStats(scanID)
	if err != nil {
		return err
	}
	if len(extensions) > 0 {
		fmt.Println("\nBy extension:")
		for i, ext := range extensions {
			if i >= opts.top {
				break
			}
			fmt.Printf("  %-12s %8s files  %10s  (avg %s)\n",
				ext.Extension, humanize.Comma(ext.Count),
				humanize.IBytes(uint64(ext.TotalBytes)),
				humanize.IBytes(uint64(ext.AvgBytes)))
		}
	}

	owners, err := st.OwnerStats(scanID)
	if err != nil {
		return err
	}
	if len(owners) > 0 {
		fmt.Println("\nBy owner:")
		for i, owner := range owners {
			if i >= opts.top {
				break
			}
			fmt.Printf("  %-12s %8s files  %10s\n",
				owner.Owner, humanize.Comma(owner.Count),
				humanize.IBytes(uint64(owner.TotalBytes)))
		}
	}

	dirs, err := st.TopDirectories(scanID, opts.top)
	if err != nil {
		return err
	}
	if len(dirs) > 0 {
		fmt.Println("\nLargest directories:")
		for i := range dirs {
			d := &dirs[i]
			fmt.Printf("  %10s  %8s files  %s\n",
				humanize.IBytes(uint64(d.TotalBytes)),
				humanize.Comma(d.TotalFiles), d.DirPath)
		}
	} else if !opts.compute {
		fmt.Println("\nNo directory rollups; run with --compute to build them.")
	}
	return nil
}
