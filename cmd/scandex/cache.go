package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newCacheCmd creates the cache subcommand group.
func newCacheCmd(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage cached duplicate detection results",
	}

	var all bool
	clear := &cobra.Command{
		Use:   "clear [scan-id]",
		Short: "Drop cached duplicate results",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			arg := ""
			if len(args) == 1 {
				arg = args[0]
			}
			return runCacheClear(arg, all, global)
		},
	}
	clear.Flags().BoolVar(&all, "all", false, "Clear caches of every scan")
	cmd.AddCommand(clear)

	return cmd
}

func runCacheClear(scanArg string, all bool, global *globalOptions) error {
	cfg, err := loadConfig(global)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	if all {
		if err := st.ClearDuplicateCache(""); err != nil {
			return err
		}
		fmt.Println("Cleared duplicate caches for all scans.")
		return nil
	}

	scanID, err := resolveScanID(st, scanArg)
	if err != nil {
		return err
	}
	if err := st.ClearDuplicateCache(scanID); err != nil {
		return err
	}
	fmt.Printf("Cleared duplicate cache for scan %s.\n", scanID)
	return nil
}
