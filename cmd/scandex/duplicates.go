package main

import (
	"fmt"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/scandex/scandex/internal/detector"
	"github.com/scandex/scandex/internal/types"
)

// duplicatesOptions holds CLI flags for the duplicates command.
type duplicatesOptions struct {
	minSizeStr    string
	workers       int
	noPartialHash bool
	noCache       bool
	noSaveCache   bool
	details       bool
	limit         int
}

// newDuplicatesCmd creates the duplicates subcommand.
func newDuplicatesCmd(global *globalOptions) *cobra.Command {
	opts := &duplicatesOptions{}

	cmd := &cobra.Command{
		Use:   "duplicates [scan-id]",
		Short: "Find files with identical content within a scan",
		Long: `Finds duplicate files among the records of a scan (the most recent one
unless a scan id is given). Detection narrows candidates by size, then by a
cheap partial hash, then confirms with a full content hash.

Results are cached per scan; repeated runs with the same or a larger
--min-size are served from the cache.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			arg := ""
			if len(args) == 1 {
				arg = args[0]
			}
			return runDuplicates(arg, global, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.minSizeStr, "min-size", "m", "1", "Minimum file size (e.g., 100, 1K, 10M, 1G)")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "Number of parallel hash workers (default: CPUs-1)")
	cmd.Flags().BoolVar(&opts.noPartialHash, "no-partial-hash", false, "Skip the partial-hash pre-screening stage")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "Ignore cached detection results")
	cmd.Flags().BoolVar(&opts.noSaveCache, "no-save-cache", false, "Do not cache this detection result")
	cmd.Flags().BoolVarP(&opts.details, "details", "d", false, "Show per-file metadata for each group")
	cmd.Flags().IntVar(&opts.limit, "limit", 20, "Maximum groups to print (0 = all)")

	return cmd
}

func runDuplicates(scanArg string, global *globalOptions, opts *duplicatesOptions) error {
	minSize, err := parseSize(opts.minSizeStr)
	if err != nil {
		return fmt.Errorf("invalid --min-size: %w", err)
	}

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

	workers := opts.workers
	if workers <= 0 {
		workers = runtime.NumCPU() - 1
		if workers < 1 {
			workers = 1
		}
	}

	det := detector.New(st, scanID, detector.Options{
		MinSize:        minSize,
		UsePartialHash: !opts.noPartialHash,
		UseCache:       !opts.noCache,
		SaveToCache:    !opts.noSaveCache,
		Workers:        workers,
		ShowProgress:   !global.noProgress,
	}, logger)

	report, err := det.Run()
	if err != nil {
		return err
	}

	printReport(scanID, report, opts.limit)
	if opts.details && len(report.Groups) > 0 {
		groups := report.Groups
		if opts.limit > 0 && len(groups) > opts.limit {
			groups = groups[:opts.limit]
		}
		enriched, err := det.Details(groups)
		if err != nil {
			return err
		}
		printDetails(enriched)
	}
	return nil
}

func printReport(scanID string, report *types.Report, limit int) {
	source := "computed"
	if report.ServedFromCache {
		source = "cached"
	}
	fmt.Printf("Scan %s: %d duplicate groups, %d redundant files, %s wasted (%s, %.1fs)\n",
		scanID, report.TotalGroups, report.TotalDuplicateFiles,
		humanize.IBytes(uint64(report.WastedBytes)), source, report.ElapsedSeconds)

	for i := range report.Groups {
		if limit > 0 && i >= limit {
			fmt.Printf("... and %d more groups\n", len(report.Groups)-limit)
			break
		}
		g := &report.Groups[i]
		fmt.Printf("\n%s  %d files x %s (%s wasted)\n",
			shortHash(g.Hash), g.Count, humanize.IBytes(uint64(g.SizeBytes)),
			humanize.IBytes(uint64(g.WastedBytes())))
		for _, p := range g.Paths {
			fmt.Printf("  %s\n", p)
		}
	}
}

func printDetails(groups []types.EnrichedGroup) {
	fmt.Println("\nDetails (oldest member first):")
	for i := range groups {
		g := &groups[i]
		fmt.Printf("\n%s  probable original: %s\n", shortHash(g.Hash), g.OldestPath)
		for j := range g.Files {
			f := &g.Files[j]
			mtime := "-"
			if f.MTime.Valid {
				mtime = time.Unix(f.MTime.Int64, 0).Format("2006-01-02 15:04:05")
			}
			owner := f.OwnerName.String
			if owner == "" {
				owner = "-"
			}
			fmt.Printf("  %s  %s  %s  %s\n", mtime, f.Permissions.String, owner, f.Path)
		}
	}
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
