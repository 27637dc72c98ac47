package store

import (
	"database/sql"
	"fmt"

	"github.com/scandex/scandex/internal/types"
)

const fileColumns = `SELECT scan_id, path, filename, parent_dir, size_bytes,
	is_directory, extension, owner_uid, owner_gid, owner_name, group_name,
	permissions, mtime, ctime, atime, inode, num_links, scan_timestamp,
	error_message FROM files`

// QueryFiles returns a scan's records matching every given filter,
// ordered by path.
func (s *Store) QueryFiles(scanID string, filters ...Filter) ([]types.FileRecord, error) {
	query := fileColumns + " WHERE scan_id = ?"
	args := []any{scanID}
	for _, f := range filters {
		clause, clauseArgs := f.clause()
		query += " AND " + clause
		args = append(args, clauseArgs...)
	}
	query += " ORDER BY path"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying files: %w", err)
	}
	defer rows.Close()

	return collectFileRecords(rows)
}

func collectFileRecords(rows *sql.Rows) ([]types.FileRecord, error) {
	var records []types.FileRecord
	for rows.Next() {
		var r types.FileRecord
		err := rows.Scan(
			&r.ScanID, &r.Path, &r.Name, &r.ParentDir, &r.SizeBytes,
			&r.IsDir, &r.Extension, &r.OwnerUID, &r.OwnerGID, &r.OwnerName,
			&r.GroupName, &r.Permissions, &r.MTime, &r.CTime, &r.ATime,
			&r.Inode, &r.NumLinks, &r.ScanTimestamp, &r.ErrorMessage)
		if err != nil {
			return nil, fmt.Errorf("scanning file record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
