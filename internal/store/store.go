// Package store is the SQLite persistence layer shared by the walker,
// the duplicate detector and the reporting commands.
//
// One Store owns one database file (or ":memory:"). All multi-row writes
// (file batches, cache replacement, scan updates) run inside a single
// transaction so a crash mid-write leaves the scan incomplete but never
// half-written.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/scandex/scandex/internal/store/migrations"
	"github.com/scandex/scandex/internal/types"
)

// Store provides access to the scan database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if necessary) the database at path and brings the
// schema up to date. path can be ":memory:" for tests.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single connection keeps ":memory:" databases coherent and avoids
	// SQLITE_BUSY between the walker's batch writer and readers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA cache_size=-40000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("configuring database: %w", err)
		}
	}

	if err := migrations.Up(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateScan registers a new scan run with status "running" and returns
// its generated identifier.
func (s *Store) CreateScan(rootPaths []string, numWorkers int) (string, error) {
	scanID := uuid.New().String()
	_, err := s.db.Exec(`
		INSERT INTO scans (id, start_time, status, root_paths, num_workers)
		VALUES (?, ?, ?, ?, ?)`,
		scanID, time.Now().Unix(), string(types.StatusRunning),
		strings.Join(rootPaths, ","), numWorkers)
	if err != nil {
		return "", fmt.Errorf("creating scan: %w", err)
	}
	return scanID, nil
}

// ScanUpdate carries the optional progress fields of a scan status
// update; invalid fields are left unchanged.
type ScanUpdate struct {
	TotalFiles sql.NullInt64
	TotalBytes sql.NullInt64
	Errors     sql.NullInt64
}

// UpdateScanStatus partially updates a scan row. The end time is set
// when the status transitions to a terminal state.
func (s *Store) UpdateScanStatus(scanID string, status types.ScanStatus, upd ScanUpdate) error {
	sets := []string{"status = ?"}
	args := []any{string(status)}

	if status.Terminal() {
		sets = append(sets, "end_time = ?")
		args = append(args, time.Now().Unix())
	}
	if upd.TotalFiles.Valid {
		sets = append(sets, "total_files = ?")
		args = append(args, upd.TotalFiles.Int64)
	}
	if upd.TotalBytes.Valid {
		sets = append(sets, "total_size_bytes = ?")
		args = append(args, upd.TotalBytes.Int64)
	}
	if upd.Errors.Valid {
		sets = append(sets, "errors_count = ?")
		args = append(args, upd.Errors.Int64)
	}
	args = append(args, scanID)

	res, err := s.db.Exec("UPDATE scans SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("updating scan status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("updating scan status: unknown scan %s", scanID)
	}
	return nil
}

// UpdateScanProgress updates a scan's status together with all three
// progress counters. It is the convenience form the walker checkpoints
// through.
func (s *Store) UpdateScanProgress(scanID string, status types.ScanStatus, totalFiles, totalBytes, errors int64) error {
	return s.UpdateScanStatus(scanID, status, ScanUpdate{
		TotalFiles: sql.NullInt64{Int64: totalFiles, Valid: true},
		TotalBytes: sql.NullInt64{Int64: totalBytes, Valid: true},
		Errors:     sql.NullInt64{Int64: errors, Valid: true},
	})
}

// ScanInfo returns one scan run, or nil when the id is unknown.
func (s *Store) ScanInfo(scanID string) (*types.ScanRun, error) {
	row := s.db.QueryRow(scanColumns+" WHERE id = ?", scanID)
	run, err := scanScanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading scan: %w", err)
	}
	return run, nil
}

// Scans returns all scan runs, most recent first.
func (s *Store) Scans() ([]types.ScanRun, error) {
	rows, err := s.db.Query(scanColumns + " ORDER BY start_time DESC")
	if err != nil {
		return nil, fmt.Errorf("listing scans: %w", err)
	}
	defer rows.Close()

	var runs []types.ScanRun
	for rows.Next() {
		run, err := scanScanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("listing scans: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// LatestScanID returns the id of the most recently started scan, or ""
// when the database holds none.
func (s *Store) LatestScanID() (string, error) {
	var id string
	err := s.db.QueryRow("SELECT id FROM scans ORDER BY start_time DESC LIMIT 1").Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("finding latest scan: %w", err)
	}
	return id, nil
}

const scanColumns = `SELECT id, start_time, end_time, status, root_paths,
	total_files, total_size_bytes, num_workers, errors_count FROM scans`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScanRun(row rowScanner) (*types.ScanRun, error) {
	var (
		run    types.ScanRun
		status string
		roots  string
	)
	err := row.Scan(&run.ID, &run.StartTime, &run.EndTime, &status, &roots,
		&run.TotalFiles, &run.TotalBytes, &run.NumWorkers, &run.Errors)
	if err != nil {
		return nil, err
	}
	run.Status = types.ScanStatus(status)
	if roots != "" {
		run.RootPaths = strings.Split(roots, ",")
	}
	return &run, nil
}
