package main

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/scandex/scandex/internal/detector"
	"github.com/scandex/scandex/internal/exclude"
	"github.com/scandex/scandex/internal/export"
	"github.com/scandex/scandex/internal/store"
)

// exportOptions holds CLI flags for the export command.
type exportOptions struct {
	format     string
	output     string
	minSizeStr string
	maxSizeStr string
	extensions []string
	owners     []string
	namePat    string
	newerThan  string
	olderThan  string
	filesOnly  bool
	errorsOnly bool
	duplicates bool
}

// newExportCmd creates the export subcommand.
func newExportCmd(global *globalOptions) *cobra.Command {
	opts := &exportOptions{}

	cmd := &cobra.Command{
		Use:   "export [scan-id]",
		Short: "Export scan records or the duplicate report",
		Long: `Exports a scan's file records as CSV or JSON, filtered by the given
predicates. With --duplicates the cached (or freshly computed) duplicate
report is exported instead and the record filters do not apply.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			arg := ""
			if len(args) == 1 {
				arg = args[0]
			}
			return runExport(arg, global, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.format, "format", "f", "csv", "Output format: csv or json")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().StringVar(&opts.minSizeStr, "min-size", "", "Keep files at least this large (e.g., 10M)")
	cmd.Flags().StringVar(&opts.maxSizeStr, "max-size", "", "Keep files at most this large")
	cmd.Flags().StringSliceVar(&opts.extensions, "ext", nil, "Keep files with one of these extensions")
	cmd.Flags().StringSliceVar(&opts.owners, "owner", nil, "Keep files owned by one of these users")
	cmd.Flags().StringVar(&opts.namePat, "name", "", "Keep files whose name matches this glob")
	cmd.Flags().StringVar(&opts.newerThan, "newer-than", "", "Keep files modified after this date (2006-01-02)")
	cmd.Flags().StringVar(&opts.olderThan, "older-than", "", "Keep files modified before this date (2006-01-02)")
	cmd.Flags().BoolVar(&opts.filesOnly, "files-only", false, "Exclude directory records")
	cmd.Flags().BoolVar(&opts.errorsOnly, "errors-only", false, "Keep only failed-extraction records")
	cmd.Flags().BoolVar(&opts.duplicates, "duplicates", false, "Export the duplicate report instead of records")

	return cmd
}

func runExport(scanArg string, global *globalOptions, opts *exportOptions) error {
	format, err := export.ParseFormat(opts.format)
	if err != nil {
		return err
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

	out := io.Writer(os.Stdout)
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	if opts.duplicates {
		workers := runtime.NumCPU() - 1
		if workers < 1 {
			workers = 1
		}
		det := detector.New(st, scanID, detector.Options{
			MinSize:        1,
			UsePartialHash: true,
			UseCache:       true,
			SaveToCache:    true,
			Workers:        workers,
		}, logger)
		report, err := det.Run()
		if err != nil {
			return err
		}
		return export.Duplicates(out, format, report)
	}

	filters, err := buildFilters(opts)
	if err != nil {
		return err
	}
	records, err := st.QueryFiles(scanID, filters...)
	if err != nil {
		return err
	}
	logger.Info("exporting records", "scan", scanID, "records", len(records), "format", string(format))
	return export.Files(out, format, records)
}

// buildFilters translates CLI flags into store query predicates.
func buildFilters(opts *exportOptions) ([]store.Filter, error) {
	var filters []store.Filter

	if opts.minSizeStr != "" || opts.maxSizeStr != "" {
		var r store.SizeRange
		var err error
		if opts.minSizeStr != "" {
			if r.Min, err = parseSize(opts.minSizeStr); err != nil {
				return nil, fmt.Errorf("invalid --min-size: %w", err)
			}
		}
		if opts.maxSizeStr != "" {
			if r.Max, err = parseSize(opts.maxSizeStr); err != nil {
				return nil, fmt.Errorf("invalid --max-size: %w", err)
			}
		}
		filters = append(filters, r)
	}
	if len(opts.extensions) > 0 {
		filters = append(filters, store.ExtensionSet(opts.extensions))
	}
	if len(opts.owners) > 0 {
		filters = append(filters, store.OwnerSet(opts.owners))
	}
	if opts.namePat != "" {
		if err := exclude.ValidatePatterns([]string{opts.namePat}); err != nil {
			return nil, fmt.Errorf("invalid --name: %w", err)
		}
		filters = append(filters, store.NamePattern(opts.namePat))
	}
	if opts.newerThan != "" || opts.olderThan != "" {
		var r store.ModifiedRange
		var err error
		if opts.newerThan != "" {
			if r.From, err = parseDate(opts.newerThan); err != nil {
				return nil, fmt.Errorf("invalid --newer-than: %w", err)
			}
		}
		if opts.olderThan != "" {
			if r.To, err = parseDate(opts.olderThan); err != nil {
				return nil, fmt.Errorf("invalid --older-than: %w", err)
			}
		}
		filters = append(filters, r)
	}
	if opts.filesOnly {
		filters = append(filters, store.OnlyFiles{})
	}
	if opts.errorsOnly {
		filters = append(filters, store.OnlyErrors{})
	}
	return filters, nil
}
