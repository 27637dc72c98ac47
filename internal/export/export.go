// Package export serializes query results and duplicate reports to CSV
// and JSON for downstream tooling.
package export

import (
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/scandex/scandex/internal/types"
)

// Format selects an output encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatCSV, FormatJSON:
		return Format(s), nil
	}
	return "", fmt.Errorf("unknown export format %q (want csv or json)", s)
}

var fileHeader = []string{
	"path", "filename", "parent_dir", "size_bytes", "is_directory",
	"extension", "owner_name", "group_name", "permissions",
	"mtime", "ctime", "atime", "inode", "num_links", "error_message",
}

// Files writes file records to w in the given format.
func Files(w io.Writer, format Format, records []types.FileRecord) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, fileRows(records))
	default:
		return filesCSV(w, records)
	}
}

func filesCSV(w io.Writer, records []types.FileRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(fileHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for i := range records {
		r := &records[i]
		row := []string{
			r.Path, r.Name, r.ParentDir,
			strconv.FormatInt(r.SizeBytes, 10),
			strconv.FormatBool(r.IsDir),
			r.Extension.String, r.OwnerName.String, r.GroupName.String,
			r.Permissions.String,
			nullInt(r.MTime), nullInt(r.CTime), nullInt(r.ATime),
			r.Inode.String, nullInt(r.NumLinks),
			r.ErrorMessage.String,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing csv row for %s: %w", r.Path, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// fileRow is the JSON shape of one exported record. Null database
// fields become absent keys rather than empty strings.
type fileRow struct {
	Path         string  `json:"path"`
	Name         string  `json:"filename"`
	ParentDir    string  `json:"parent_dir"`
	SizeBytes    int64   `json:"size_bytes"`
	IsDir        bool    `json:"is_directory"`
	Extension    *string `json:"extension,omitempty"`
	OwnerName    *string `json:"owner_name,omitempty"`
	GroupName    *string `json:"group_name,omitempty"`
	Permissions  *string `json:"permissions,omitempty"`
	MTime        *int64  `json:"mtime,omitempty"`
	CTime        *int64  `json:"ctime,omitempty"`
	ATime        *int64  `json:"atime,omitempty"`
	Inode        *string `json:"inode,omitempty"`
	NumLinks     *int64  `json:"num_links,omitempty"`
	ErrorMessage *string `json:"error_message,omitempty"`
}

func fileRows(records []types.FileRecord) []fileRow {
	rows := make([]fileRow, 0, len(records))
	for i := range records {
		r := &records[i]
		rows = append(rows, fileRow{
			Path:         r.Path,
			Name:         r.Name,
			ParentDir:    r.ParentDir,
			SizeBytes:    r.SizeBytes,
			IsDir:        r.IsDir,
			Extension:    nullStringPtr(r.Extension),
			OwnerName:    nullStringPtr(r.OwnerName),
			GroupName:    nullStringPtr(r.GroupName),
			Permissions:  nullStringPtr(r.Permissions),
			MTime:        nullInt64Ptr(r.MTime),
			CTime:        nullInt64Ptr(r.CTime),
			ATime:        nullInt64Ptr(r.ATime),
			Inode:        nullStringPtr(r.Inode),
			NumLinks:     nullInt64Ptr(r.NumLinks),
			ErrorMessage: nullStringPtr(r.ErrorMessage),
		})
	}
	return rows
}

var duplicateHeader = []string{"hash", "size_bytes", "file_count", "wasted_bytes", "path"}

// Duplicates writes a duplicate report to w in the given format. CSV
// flattens each group into one row per member path.
func Duplicates(w io.Writer, format Format, report *types.Report) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, report)
	default:
		return duplicatesCSV(w, report)
	}
}

func duplicatesCSV(w io.Writer, report *types.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(duplicateHeader); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for i := range report.Groups {
		g := &report.Groups[i]
		for _, path := range g.Paths {
			row := []string{
				g.Hash,
				strconv.FormatInt(g.SizeBytes, 10),
				strconv.Itoa(g.Count),
				strconv.FormatInt(g.WastedBytes(), 10),
				path,
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("writing csv row for group %s: %w", g.Hash, err)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding json: %w", err)
	}
	return nil
}

func nullInt(v sql.NullInt64) string {
	if !v.Valid {
		return ""
	}
	return strconv.FormatInt(v.Int64, 10)
}

func nullStringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func nullInt64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}
