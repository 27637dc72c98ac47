package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/scandex/scandex/internal/exclude"
	"github.com/scandex/scandex/internal/stats"
	"github.com/scandex/scandex/internal/types"
	"github.com/scandex/scandex/internal/walker"
)

// scanOptions holds CLI flags for the scan command.
type scanOptions struct {
	workers      int
	batchSize    int
	excludeDirs  []string
	excludeExts  []string
	computeStats bool
}

// newScanCmd creates the scan subcommand.
func newScanCmd(global *globalOptions) *cobra.Command {
	opts := &scanOptions{}

	cmd := &cobra.Command{
		Use:   "scan [paths...]",
		Short: "Walk directories and record file metadata",
		Long: `Walks the given directories (or the configured root paths) and records
metadata for every file and directory into the scan database. Entries that
cannot be read are recorded with their error instead of being skipped.

Interrupting a scan with Ctrl-C leaves it in state "interrupted";
records written so far are kept.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(_ *cobra.Command, args []string) error {
			return runScan(args, global, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "Number of parallel workers (default: CPUs-1)")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, "Records per database batch")
	cmd.Flags().StringSliceVarP(&opts.excludeDirs, "exclude", "e", nil, "Additional glob patterns to exclude")
	cmd.Flags().StringSliceVar(&opts.excludeExts, "exclude-ext", nil, "Additional file extensions to exclude")
	cmd.Flags().BoolVar(&opts.computeStats, "stats", false, "Compute per-directory rollups after the walk")

	return cmd
}

func runScan(args []string, global *globalOptions, opts *scanOptions) error {
	cfg, err := loadConfig(global)
	if err != nil {
		return err
	}
	if opts.workers > 0 {
		cfg.Performance.NumWorkers = opts.workers
	}
	if opts.batchSize > 0 {
		cfg.Performance.BatchSize = opts.batchSize
	}
	if err := exclude.ValidatePatterns(opts.excludeDirs); err != nil {
		return fmt.Errorf("invalid --exclude: %w", err)
	}
	cfg.Exclusions.Directories = append(cfg.Exclusions.Directories, opts.excludeDirs...)
	cfg.Exclusions.Extensions = append(cfg.Exclusions.Extensions, opts.excludeExts...)

	roots := args
	if len(roots) == 0 {
		roots = cfg.RootPaths
	}
	if len(roots) == 0 {
		return fmt.Errorf("no paths given and no root_paths configured")
	}

	logger := newLogger(cfg)
	cfg.WarnMissingRoots(logger)

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	scanID, err := st.CreateScan(roots, cfg.Performance.NumWorkers)
	if err != nil {
		return err
	}
	logger.Info("scan started", "scan", scanID, "roots", roots)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w := walker.New(scanID, cfg.ExcludeConfig(), cfg.Performance.NumWorkers,
		cfg.Performance.BatchSize, cfg.CheckpointInterval(), st, logger, !global.noProgress)
	walkStats, walkErr := w.Run(ctx, roots)

	switch {
	case walkErr == nil:
		bytes, err := st.TotalSize(scanID)
		if err != nil {
			return err
		}
		if err := st.UpdateScanProgress(scanID, types.StatusCompleted,
			walkStats.FilesScanned, bytes, walkStats.Errors); err != nil {
			return err
		}
	case errors.Is(walkErr, context.Canceled):
		// The walker already marked the scan interrupted.
		fmt.Fprintf(os.Stderr, "scan %s interrupted; partial results kept\n", scanID)
		return nil
	default:
		_ = st.UpdateScanProgress(scanID, types.StatusFailed,
			walkStats.FilesScanned, walkStats.BytesScanned, walkStats.Errors)
		return walkErr
	}

	if opts.computeStats {
		if _, err := stats.Compute(st, scanID, logger); err != nil {
			return err
		}
	}

	printScanSummary(scanID, walkStats)
	return nil
}

func printScanSummary(scanID string, st types.ScanStats) {
	fmt.Printf("Scan %s complete\n", scanID)
	fmt.Printf("  entries:     %s\n", humanize.Comma(st.FilesScanned))
	fmt.Printf("  directories: %s\n", humanize.Comma(st.DirectoriesScanned))
	fmt.Printf("  errors:      %s\n", humanize.Comma(st.Errors))
	fmt.Printf("  duration:    %.1fs (%.0f entries/s)\n", st.DurationSeconds, st.FilesPerSecond)
}
