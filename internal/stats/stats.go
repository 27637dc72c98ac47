// Package stats computes per-directory rollups from a scan's records
// and materializes them into the directory_stats table, so reporting
// queries do not re-aggregate the files table on every invocation.
package stats

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/scandex/scandex/internal/logging"
	"github.com/scandex/scandex/internal/store"
)

// extensionEntry is the per-extension payload inside a rollup's
// extension_stats JSON column.
type extensionEntry struct {
	Count int64 `json:"count"`
	Bytes int64 `json:"bytes"`
}

// Compute aggregates every directory seen in a scan and upserts one
// rollup row per directory. It returns the number of directories
// processed.
func Compute(st *store.Store, scanID string, logger logging.Logger) (int, error) {
	dirs, err := st.DistinctParentDirs(scanID)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	for _, dir := range dirs {
		row, err := rollupDirectory(st, scanID, dir)
		if err != nil {
			return 0, err
		}
		if err := st.UpsertDirectoryStats(row); err != nil {
			return 0, err
		}
	}

	logger.Info("directory stats computed",
		"scan", scanID, "directories", len(dirs),
		"elapsed", time.Since(start).Truncate(time.Millisecond).String())
	return len(dirs), nil
}

func rollupDirectory(st *store.Store, scanID, dir string) (store.DirectoryStatsRow, error) {
	files, subdirs, bytes, oldest, newest, err := st.DirectorySummary(scanID, dir)
	if err != nil {
		return store.DirectoryStatsRow{}, err
	}

	extCounts, extBytes, err := st.DirectoryExtensionCounts(scanID, dir)
	if err != nil {
		return store.DirectoryStatsRow{}, err
	}
	owners, err := st.DirectoryOwnerCounts(scanID, dir)
	if err != nil {
		return store.DirectoryStatsRow{}, err
	}

	extensions := make(map[string]extensionEntry, len(extCounts))
	for ext, n := range extCounts {
		extensions[ext] = extensionEntry{Count: n, Bytes: extBytes[ext]}
	}

	extJSON, err := json.Marshal(extensions)
	if err != nil {
		return store.DirectoryStatsRow{}, fmt.Errorf("encoding extension stats for %s: %w", dir, err)
	}
	ownerJSON, err := json.Marshal(owners)
	if err != nil {
		return store.DirectoryStatsRow{}, fmt.Errorf("encoding owner stats for %s: %w", dir, err)
	}

	return store.DirectoryStatsRow{
		ScanID:           scanID,
		DirPath:          dir,
		TotalFiles:       files,
		TotalDirectories: subdirs,
		TotalBytes:       bytes,
		ExtensionStats:   string(extJSON),
		OwnerStats:       string(ownerJSON),
		OldestMTime:      oldest,
		NewestMTime:      newest,
		UpdatedAt:        time.Now().Unix(),
	}, nil
}
