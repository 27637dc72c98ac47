// Package types provides shared types used across the scandex codebase.
package types

import (
	"database/sql"
)

// FileRecord holds the metadata captured for one filesystem entry during a
// scan. Exactly one of two shapes is valid: a normal record with all
// metadata fields populated, or an error record where only ScanID, Path,
// Name, ParentDir, ScanTimestamp and ErrorMessage are set and every other
// field is null/zero.
type FileRecord struct {
	ScanID    string
	Path      string
	Name      string
	ParentDir string
	SizeBytes int64
	IsDir     bool

	// Extension is the lowercase extension without the dot, "" when the
	// name has no dot, and invalid (NULL) for directories.
	Extension sql.NullString

	OwnerUID    sql.NullString
	OwnerGID    sql.NullString
	OwnerName   sql.NullString
	GroupName   sql.NullString
	Permissions sql.NullString

	// MTime, CTime and ATime are seconds since the Unix epoch.
	MTime sql.NullInt64
	CTime sql.NullInt64
	ATime sql.NullInt64

	Inode    sql.NullString
	NumLinks sql.NullInt64

	// ScanTimestamp is the wall-clock time the record was captured.
	ScanTimestamp int64

	ErrorMessage sql.NullString
}

// IsError reports whether the record describes a failed extraction.
func (r *FileRecord) IsError() bool { return r.ErrorMessage.Valid }

// ScanStats summarizes one completed walk.
type ScanStats struct {
	FilesScanned       int64
	DirectoriesScanned int64
	BytesScanned       int64
	DurationSeconds    float64
	FilesPerSecond     float64
	Errors             int64
}

// ScanStatus is the lifecycle state of a ScanRun.
type ScanStatus string

const (
	StatusRunning     ScanStatus = "running"
	StatusCompleted   ScanStatus = "completed"
	StatusFailed      ScanStatus = "failed"
	StatusInterrupted ScanStatus = "interrupted"
)

// Terminal reports whether the status ends a run.
func (s ScanStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusInterrupted
}

// ScanRun is one walk invocation as recorded in the scans table.
type ScanRun struct {
	ID         string
	StartTime  int64
	EndTime    sql.NullInt64
	Status     ScanStatus
	RootPaths  []string
	NumWorkers int
	TotalFiles int64
	TotalBytes int64
	Errors     int64
}

// SizeGroup is a set of same-sized file paths, the first narrowing stage of
// duplicate detection.
type SizeGroup struct {
	SizeBytes int64
	Paths     []string
}

// DuplicateGroup is a set of files within one scan sharing identical
// full-content hash. Count always equals len(Paths).
type DuplicateGroup struct {
	Hash      string   `json:"hash"`
	SizeBytes int64    `json:"size_bytes"`
	Count     int      `json:"file_count"`
	Paths     []string `json:"paths"`
}

// WastedBytes returns the bytes occupied by the redundant copies in the
// group, excluding one original.
func (g *DuplicateGroup) WastedBytes() int64 {
	return g.SizeBytes * int64(g.Count-1)
}

// Report is the outcome of a full duplicate detection run.
type Report struct {
	Groups              []DuplicateGroup `json:"groups"`
	TotalGroups         int              `json:"total_groups"`
	TotalDuplicateFiles int              `json:"total_duplicates"`
	WastedBytes         int64            `json:"wasted_space"`
	ElapsedSeconds      float64          `json:"execution_time"`
	ServedFromCache     bool             `json:"from_cache"`
}

// EnrichedGroup is a DuplicateGroup joined with full file metadata.
// Files are ordered by modification time ascending; the oldest member is
// the probable original.
type EnrichedGroup struct {
	Hash       string
	SizeBytes  int64
	Count      int
	Files      []FileRecord
	OldestPath string
}

// Semaphore implements a counting semaphore using a buffered channel.
// It limits concurrent access to a resource by blocking when the limit is
// reached.
type Semaphore chan struct{}

// NewSemaphore creates a semaphore that allows up to n concurrent acquisitions.
func NewSemaphore(n int) Semaphore { return make(chan struct{}, n) }

// Acquire blocks until a slot is available, then claims it.
func (s Semaphore) Acquire() { s <- struct{}{} }

// Release frees a slot, unblocking one waiting Acquire call.
func (s Semaphore) Release() { <-s }
