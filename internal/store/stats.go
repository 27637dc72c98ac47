package store

import (
	"database/sql"
	"fmt"
)

// DirectoryStatsRow is one precomputed per-directory rollup.
type DirectoryStatsRow struct {
	ScanID           string
	DirPath          string
	TotalFiles       int64
	TotalDirectories int64
	TotalBytes       int64
	ExtensionStats   string // JSON: extension -> {count, bytes}
	OwnerStats       string // JSON: owner -> count
	OldestMTime      sql.NullInt64
	NewestMTime      sql.NullInt64
	UpdatedAt        int64
}

// ExtensionStat is a scan-wide per-extension aggregate.
type ExtensionStat struct {
	Extension  string
	Count      int64
	TotalBytes int64
	AvgBytes   float64
	MinBytes   int64
	MaxBytes   int64
}

// OwnerStat is a scan-wide per-owner aggregate.
type OwnerStat struct {
	Owner      string
	Count      int64
	TotalBytes int64
}

// DistinctParentDirs returns every parent directory appearing in a
// scan's records, sorted.
func (s *Store) DistinctParentDirs(scanID string) ([]string, error) {
	rows, err := s.db.Query(
		"SELECT DISTINCT parent_dir FROM files WHERE scan_id = ? ORDER BY parent_dir",
		scanID)
	if err != nil {
		return nil, fmt.Errorf("listing parent dirs: %w", err)
	}
	defer rows.Close()

	var dirs []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("listing parent dirs: %w", err)
		}
		dirs = append(dirs, d)
	}
	return dirs, rows.Err()
}

// DirectorySummary aggregates the direct children of one directory.
func (s *Store) DirectorySummary(scanID, dir string) (files, dirs, bytes int64, oldest, newest sql.NullInt64, err error) {
	err = s.db.QueryRow(`
		SELECT
			COUNT(*) FILTER (WHERE is_directory = 0),
			COUNT(*) FILTER (WHERE is_directory = 1),
			COALESCE(SUM(size_bytes), 0),
			MIN(mtime),
			MAX(mtime)
		FROM files
		WHERE scan_id = ? AND parent_dir = ?`,
		scanID, dir).Scan(&files, &dirs, &bytes, &oldest, &newest)
	if err != nil {
		err = fmt.Errorf("summarizing directory %s: %w", dir, err)
	}
	return
}

// DirectoryExtensionCounts returns per-extension file counts and byte
// totals among the direct children of one directory.
func (s *Store) DirectoryExtensionCounts(scanID, dir string) (counts map[string]int64, bytes map[string]int64, err error) {
	rows, err := s.db.Query(`
		SELECT COALESCE(extension, ''), COUNT(*), COALESCE(SUM(size_bytes), 0)
		FROM files
		WHERE scan_id = ? AND parent_dir = ? AND is_directory = 0
		GROUP BY extension`,
		scanID, dir)
	if err != nil {
		return nil, nil, fmt.Errorf("counting extensions in %s: %w", dir, err)
	}
	defer rows.Close()

	counts = make(map[string]int64)
	bytes = make(map[string]int64)
	for rows.Next() {
		var (
			ext    string
			n, sum int64
		)
		if err := rows.Scan(&ext, &n, &sum); err != nil {
			return nil, nil, fmt.Errorf("counting extensions in %s: %w", dir, err)
		}
		if ext == "" {
			ext = "no_ext"
		}
		counts[ext] = n
		bytes[ext] = sum
	}
	return counts, bytes, rows.Err()
}

// DirectoryOwnerCounts returns per-owner file counts among the direct
// children of one directory.
func (s *Store) DirectoryOwnerCounts(scanID, dir string) (map[string]int64, error) {
	rows, err := s.db.Query(`
		SELECT COALESCE(owner_name, 'unknown'), COUNT(*)
		FROM files
		WHERE scan_id = ? AND parent_dir = ? AND is_directory = 0
		GROUP BY owner_name`,
		scanID, dir)
	if err != nil {
		return nil, fmt.Errorf("counting owners in %s: %w", dir, err)
	}
	defer rows.Close()

	owners := make(map[string]int64)
	for rows.Next() {
		var (
			owner string
			n     int64
		)
		if err := rows.Scan(&owner, &n); err != nil {
			return nil, fmt.Errorf("counting owners in %s: %w", dir, err)
		}
		owners[owner] = n
	}
	return owners, rows.Err()
}

// UpsertDirectoryStats writes one rollup row, replacing a previous
// rollup of the same directory within the scan.
func (s *Store) UpsertDirectoryStats(row DirectoryStatsRow) error {
	_, err := s.db.Exec(`
		INSERT INTO directory_stats (
			scan_id, dir_path, total_files, total_directories,
			total_size_bytes, extension_stats, owner_stats,
			oldest_file_mtime, newest_file_mtime, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scan_id, dir_path) DO UPDATE SET
			total_files = excluded.total_files,
			total_directories = excluded.total_directories,
			total_size_bytes = excluded.total_size_bytes,
			extension_stats = excluded.extension_stats,
			owner_stats = excluded.owner_stats,
			oldest_file_mtime = excluded.oldest_file_mtime,
			newest_file_mtime = excluded.newest_file_mtime,
			updated_at = excluded.updated_at`,
		row.ScanID, row.DirPath, row.TotalFiles, row.TotalDirectories,
		row.TotalBytes, row.ExtensionStats, row.OwnerStats,
		row.OldestMTime, row.NewestMTime, row.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting directory stats for %s: %w", row.DirPath, err)
	}
	return nil
}

// TopDirectories returns the largest rolled-up directories of a scan.
func (s *Store) TopDirectories(scanID string, limit int) ([]DirectoryStatsRow, error) {
	rows, err := s.db.Query(`
		SELECT scan_id, dir_path, total_files, total_directories,
			total_size_bytes, extension_stats, owner_stats,
			oldest_file_mtime, newest_file_mtime, updated_at
		FROM directory_stats
		WHERE scan_id = ?
		ORDER BY total_size_bytes DESC, dir_path
		LIMIT ?`,
		scanID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing top directories: %w", err)
	}
	defer rows.Close()

	var result []DirectoryStatsRow
	for rows.Next() {
		var r DirectoryStatsRow
		err := rows.Scan(&r.ScanID, &r.DirPath, &r.TotalFiles,
			&r.TotalDirectories, &r.TotalBytes, &r.ExtensionStats,
			&r.OwnerStats, &r.OldestMTime, &r.NewestMTime, &r.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("listing top directories: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// ExtensionStats aggregates a scan's files per extension, largest total
// first.
func (s *Store) ExtensionStats(scanID string) ([]ExtensionStat, error) {
	rows, err := s.db.Query(`
		SELECT COALESCE(extension, ''), COUNT(*),
			COALESCE(SUM(size_bytes), 0), COALESCE(AVG(size_bytes), 0),
			COALESCE(MIN(size_bytes), 0), COALESCE(MAX(size_bytes), 0)
		FROM files
		WHERE scan_id = ? AND is_directory = 0 AND error_message IS NULL
		GROUP BY extension
		ORDER BY SUM(size_bytes) DESC`,
		scanID)
	if err != nil {
		return nil, fmt.Errorf("aggregating extensions: %w", err)
	}
	defer rows.Close()

	var stats []ExtensionStat
	for rows.Next() {
		var st ExtensionStat
		err := rows.Scan(&st.Extension, &st.Count, &st.TotalBytes,
			&st.AvgBytes, &st.MinBytes, &st.MaxBytes)
		if err != nil {
			return nil, fmt.Errorf("aggregating extensions: %w", err)
		}
		if st.Extension == "" {
			st.Extension = "no_ext"
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// OwnerStats aggregates a scan's files per owner, largest total first.
func (s *Store) OwnerStats(scanID string) ([]OwnerStat, error) {
	rows, err := s.db.Query(`
		SELECT COALESCE(owner_name, 'unknown'), COUNT(*),
			COALESCE(SUM(size_bytes), 0)
		FROM files
		WHERE scan_id = ? AND is_directory = 0 AND error_message IS NULL
		GROUP BY owner_name
		ORDER BY SUM(size_bytes) DESC`,
		scanID)
	if err != nil {
		return nil, fmt.Errorf("aggregating owners: %w", err)
	}
	defer rows.Close()

	var stats []OwnerStat
	for rows.Next() {
		var st OwnerStat
		if err := rows.Scan(&st.Owner, &st.Count, &st.TotalBytes); err != nil {
			return nil, fmt.Errorf("aggregating owners: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}
