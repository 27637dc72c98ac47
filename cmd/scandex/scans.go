package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/scandex/scandex/internal/types"
)

// newScansCmd creates the scans subcommand.
func newScansCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scans",
		Short: "List recorded scan runs",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runScans(global)
		},
	}
}

func runScans(global *globalOptions) error {
	cfg, err := loadConfig(global)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	runs, err := st.Scans()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No scans recorded.")
		return nil
	}

	for i := range runs {
		printScanRun(&runs[i])
	}
	return nil
}

func printScanRun(run *types.ScanRun) {
	started := time.Unix(run.StartTime, 0).Format("2006-01-02 15:04:05")
	duration := "-"
	if run.EndTime.Valid {
		duration = (time.Duration(run.EndTime.Int64-run.StartTime) * time.Second).String()
	}
	fmt.Printf("%s  %-11s  %s  %8s files  %10s  %d errors  %s\n",
		run.ID, run.Status, started,
		humanize.Comma(run.TotalFiles), humanize.IBytes(uint64(run.TotalBytes)),
		run.Errors, duration)
}
