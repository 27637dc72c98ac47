package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/scandex/scandex/internal/types"
)

// pathSeparator joins member paths into one cache column. Filesystem
// paths cannot contain it.
const pathSeparator = "\x00"

// CachedGroups is a persisted duplicate detection result together with
// the minimum-size threshold it was computed under. The threshold decides
// whether the cache can serve a later request: a cache built with a
// looser (smaller) threshold can be filtered down, the reverse cannot.
type CachedGroups struct {
	Groups  []types.DuplicateGroup
	MinSize int64
}

// SaveDuplicateCache replaces the cached duplicate groups for a scan in
// one transaction.
func (s *Store) SaveDuplicateCache(scanID string, groups []types.DuplicateGroup, minSize int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("saving duplicate cache: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM duplicate_groups WHERE scan_id = ?", scanID); err != nil {
		return fmt.Errorf("clearing previous cache: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO duplicate_groups (
			scan_id, hash, size_bytes, file_count, file_paths,
			detection_timestamp, min_size_config
		) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("saving duplicate cache: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, g := range groups {
		_, err := stmt.Exec(scanID, g.Hash, g.SizeBytes, g.Count,
			strings.Join(g.Paths, pathSeparator), now, minSize)
		if err != nil {
			return fmt.Errorf("caching group %s: %w", g.Hash, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("saving duplicate cache: %w", err)
	}
	return nil
}

// LoadDuplicateCache returns the cached groups for a scan, or nil when
// no cache exists. Validity against a requested threshold is the
// detector's decision; the store only reports what was saved.
func (s *Store) LoadDuplicateCache(scanID string) (*CachedGroups, error) {
	rows, err := s.db.Query(`
		SELECT hash, size_bytes, file_count, file_paths, min_size_config
		FROM duplicate_groups
		WHERE scan_id = ?
		ORDER BY size_bytes DESC, hash`,
		scanID)
	if err != nil {
		return nil, fmt.Errorf("loading duplicate cache: %w", err)
	}
	defer rows.Close()

	var cached *CachedGroups
	for rows.Next() {
		var (
			g     types.DuplicateGroup
			paths string
		)
		var minSize int64
		if err := rows.Scan(&g.Hash, &g.SizeBytes, &g.Count, &paths, &minSize); err != nil {
			return nil, fmt.Errorf("loading duplicate cache: %w", err)
		}
		if paths != "" {
			g.Paths = strings.Split(paths, pathSeparator)
		}
		if cached == nil {
			cached = &CachedGroups{MinSize: minSize}
		}
		cached.Groups = append(cached.Groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading duplicate cache: %w", err)
	}
	return cached, nil
}

// ClearDuplicateCache removes the cached groups for one scan, or for all
// scans when scanID is empty.
func (s *Store) ClearDuplicateCache(scanID string) error {
	var err error
	if scanID == "" {
		_, err = s.db.Exec("DELETE FROM duplicate_groups")
	} else {
		_, err = s.db.Exec("DELETE FROM duplicate_groups WHERE scan_id = ?", scanID)
	}
	if err != nil {
		return fmt.Errorf("clearing duplicate cache: %w", err)
	}
	return nil
}
