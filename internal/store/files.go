package store

import (
	"fmt"

	"github.com/scandex/scandex/internal/types"
)

// InsertFileRecords bulk-inserts a batch of records in one transaction.
// The batch is all-or-nothing: on any error nothing from it is persisted.
func (s *Store) InsertFileRecords(records []types.FileRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting batch insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO files (
			scan_id, path, filename, parent_dir, size_bytes, is_directory,
			extension, owner_uid, owner_gid, owner_name, group_name,
			permissions, mtime, ctime, atime, inode, num_links,
			scan_timestamp, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing batch insert: %w", err)
	}
	defer stmt.Close()

	for i := range records {
		r := &records[i]
		_, err := stmt.Exec(
			r.ScanID, r.Path, r.Name, r.ParentDir, r.SizeBytes, r.IsDir,
			r.Extension, r.OwnerUID, r.OwnerGID, r.OwnerName, r.GroupName,
			r.Permissions, r.MTime, r.CTime, r.ATime, r.Inode, r.NumLinks,
			r.ScanTimestamp, r.ErrorMessage)
		if err != nil {
			return fmt.Errorf("inserting file record %s: %w", r.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing batch insert: %w", err)
	}
	return nil
}

// TotalFiles counts the non-directory records of a scan.
func (s *Store) TotalFiles(scanID string) (int64, error) {
	var n int64
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM files WHERE scan_id = ? AND is_directory = 0",
		scanID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting files: %w", err)
	}
	return n, nil
}

// TotalSize sums the byte sizes of a scan's non-directory records.
func (s *Store) TotalSize(scanID string) (int64, error) {
	var n int64
	err := s.db.QueryRow(
		"SELECT COALESCE(SUM(size_bytes), 0) FROM files WHERE scan_id = ? AND is_directory = 0",
		scanID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("summing sizes: %w", err)
	}
	return n, nil
}

// FilesBySize returns the scan's files of at least minSize bytes grouped
// by exact size, keeping only groups with two or more members. Error
// records never participate. Groups come back largest first, members in
// path order.
func (s *Store) FilesBySize(scanID string, minSize int64) ([]types.SizeGroup, error) {
	rows, err := s.db.Query(`
		SELECT size_bytes, path FROM files
		WHERE scan_id = ?
		  AND is_directory = 0
		  AND error_message IS NULL
		  AND size_bytes >= ?
		ORDER BY size_bytes DESC, path`,
		scanID, minSize)
	if err != nil {
		return nil, fmt.Errorf("querying files by size: %w", err)
	}
	defer rows.Close()

	var groups []types.SizeGroup
	for rows.Next() {
		var (
			size int64
			path string
		)
		if err := rows.Scan(&size, &path); err != nil {
			return nil, fmt.Errorf("querying files by size: %w", err)
		}
		if n := len(groups); n > 0 && groups[n-1].SizeBytes == size {
			groups[n-1].Paths = append(groups[n-1].Paths, path)
		} else {
			groups = append(groups, types.SizeGroup{SizeBytes: size, Paths: []string{path}})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("querying files by size: %w", err)
	}

	kept := groups[:0]
	for _, g := range groups {
		if len(g.Paths) >= 2 {
			kept = append(kept, g)
		}
	}
	return kept, nil
}

// FileMetadata fetches the full records for the given paths within one
// scan, ordered by modification time ascending (oldest first).
func (s *Store) FileMetadata(scanID string, paths []string) ([]types.FileRecord, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	placeholders := inPlaceholders(len(paths))
	args := make([]any, 0, len(paths)+1)
	args = append(args, scanID)
	for _, p := range paths {
		args = append(args, p)
	}

	rows, err := s.db.Query(fileColumns+`
		WHERE scan_id = ? AND path IN (`+placeholders+`)
		ORDER BY mtime ASC, path`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying file metadata: %w", err)
	}
	defer rows.Close()

	return collectFileRecords(rows)
}
