package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/scandex/scandex/internal/config"
	"github.com/scandex/scandex/internal/logging"
	"github.com/scandex/scandex/internal/store"
)

var (
	version = "dev"
	commit  = "none"
)

// globalOptions holds flags shared by every subcommand.
type globalOptions struct {
	configPath string
	dbPath     string
	logLevel   string
	noProgress bool
}

func main() {
	os.Exit(run())
}

func run() int {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:     "scandex",
		Short:   "Inventory filesystems and find duplicate files",
		Version: version + " (" + commit + ")",
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to TOML config file")
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "Path to scan database (overrides config)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	root.PersistentFlags().BoolVar(&opts.noProgress, "no-progress", false, "Disable progress output")

	root.AddCommand(newScanCmd(opts))
	root.AddCommand(newDuplicatesCmd(opts))
	root.AddCommand(newScansCmd(opts))
	root.AddCommand(newStatsCmd(opts))
	root.AddCommand(newExportCmd(opts))
	root.AddCommand(newCacheCmd(opts))

	if err := root.Execute(); err != nil {
		return 1
	}
	return 0
}

// loadConfig reads the config file (or defaults) and applies CLI
// overrides.
func loadConfig(opts *globalOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.dbPath != "" {
		cfg.Database.Path = opts.dbPath
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the CLI logger. Log records go to stderr so stdout
// stays clean for command output and exports.
func newLogger(cfg *config.Config) logging.Logger {
	return logging.New(os.Stderr, cfg.Logging.Level)
}

// openStore opens the scan database named by the config.
func openStore(cfg *config.Config) (*store.Store, error) {
	return store.Open(cfg.DatabasePath())
}

// resolveScanID returns the explicit id when given, otherwise the most
// recent scan in the database.
func resolveScanID(st *store.Store, arg string) (string, error) {
	if arg != "" {
		info, err := st.ScanInfo(arg)
		if err != nil {
			return "", err
		}
		if info == nil {
			return "", fmt.Errorf("unknown scan %s", arg)
		}
		return arg, nil
	}
	id, err := st.LatestScanID()
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("no scans in database; run 'scandex scan' first")
	}
	return id, nil
}
