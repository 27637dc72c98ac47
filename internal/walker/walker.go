// Package walker performs the parallel listing phase of a scan.
//
// # Architecture Overview
//
// A walk runs in two phases. Discovery (serial, internal/discover)
// produces the complete directory list up front; listing (parallel) fans
// those directories out to a fixed worker pool. Each worker lists the
// immediate entries of one directory only, since recursion already
// happened during discovery, and returns a slice of FileRecords.
//
// # Concurrency Model
//
//  1. WORKER GOROUTINES (fixed pool)
//     - N workers consume directories from dirCh
//     - Each worker reads one directory, extracts records and sends the
//       slice to resultCh
//
//  2. ORCHESTRATOR (the Run goroutine)
//     - Single consumer of resultCh
//     - Owns the batch buffer; workers never touch it
//     - Flushes the buffer to the sink whenever it reaches batchSize
//     - Issues periodic progress checkpoints on a wall-clock ticker
//
//  3. FEEDER / CLOSER goroutines
//     - Feeder pushes the directory list into dirCh, then closes it
//     - Closer waits for the worker WaitGroup, then closes resultCh
//
// # Shared State
//
// The visited-inode set used for symlink cycle detection is shared by
// all workers behind a mutex; its check-and-insert is atomic so two
// workers can never both follow the same cyclic link. Per-scan counters
// are atomics on the stats struct.
//
// # Failure Semantics
//
// Per-entry extraction failures become error records and count toward
// the scan's error total. Per-directory listing failures are logged and
// contribute zero records. The only fatal condition is a sink failure
// (batch insert or status update), which cancels the remaining work and
// propagates to the caller.
package walker

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/scandex/scandex/internal/discover"
	"github.com/scandex/scandex/internal/exclude"
	"github.com/scandex/scandex/internal/extract"
	"github.com/scandex/scandex/internal/logging"
	"github.com/scandex/scandex/internal/progress"
	"github.com/scandex/scandex/internal/types"
)

// Sink is the persistence surface the walker writes through.
type Sink interface {
	// InsertFileRecords persists one batch atomically.
	InsertFileRecords(records []types.FileRecord) error
	// UpdateScanProgress updates the scan's status row with running
	// totals; it is also used for the terminal "interrupted" transition.
	UpdateScanProgress(scanID string, status types.ScanStatus, totalFiles, totalBytes, errors int64) error
}

// Walker lists discovered directories in parallel and streams record
// batches into a Sink.
//
// A Walker is single-use: create with New, call Run once.
type Walker struct {
	// Config (immutable, set by New)
	scanID       string
	excl         exclude.Config
	workers      int
	batchSize    int
	checkpoint   time.Duration
	sink         Sink
	logger       logging.Logger
	showProgress bool

	// Runtime (initialized in Run)
	visited *inodeSet
	stats   *stats
	bar     *progress.Spinner
}

// New creates a Walker for one scan.
func New(scanID string, excl exclude.Config, workers, batchSize int, checkpoint time.Duration, sink Sink, logger logging.Logger, showProgress bool) *Walker {
	return &Walker{
		scanID:       scanID,
		excl:         excl,
		workers:      workers,
		batchSize:    batchSize,
		checkpoint:   checkpoint,
		sink:         sink,
		logger:       logger,
		showProgress: showProgress,
	}
}

// stats tracks walk progress with atomic counters so all workers can
// update them without locks.
type stats struct {
	entries   atomic.Int64 // records produced (files + dirs + error records)
	bytes     atomic.Int64 // byte total of successfully extracted entries
	errors    atomic.Int64 // extraction failures
	totalDirs int64
	startTime time.Time
}

func (s *stats) String() string {
	return fmt.Sprintf("Scanned %d entries (%s) in %d directories, %d errors, %.1fs",
		s.entries.Load(), humanize.IBytes(uint64(s.bytes.Load())),
		s.totalDirs, s.errors.Load(), time.Since(s.startTime).Seconds())
}

// inodeSet is the concurrency-safe visited-inode set shared across
// workers for symlink cycle detection.
type inodeSet struct {
	mu   sync.Mutex
	seen map[uint64]struct{}
}

func newInodeSet() *inodeSet {
	return &inodeSet{seen: make(map[uint64]struct{})}
}

// Visit records ino and reports whether this call was the first visit.
// Check and insert are one critical section.
func (s *inodeSet) Visit(ino uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[ino]; ok {
		return false
	}
	s.seen[ino] = struct{}{}
	return true
}

// Run executes the walk and returns the scan statistics.
//
// Coordination sequence:
//  1. Discover the full directory list (serial)
//  2. Start the worker pool, feed it directories
//  3. Consume record batches, flushing to the sink at batchSize
//  4. Checkpoint progress at least every checkpoint interval
//  5. Flush the remainder once workers finish
//
// On context cancellation the scan status is left as "interrupted" and
// ctx's error is returned alongside the partial stats.
func (w *Walker) Run(ctx context.Context, rootPaths []string) (types.ScanStats, error) {
	start := time.Now()

	w.logger.Info("discovering directories", "roots", rootPaths)
	dirs := discover.Discover(rootPaths, w.excl, w.logger)
	if len(dirs) == 0 {
		w.logger.Warn("no directories to scan")
		return types.ScanStats{}, nil
	}
	w.logger.Info("discovery complete", "directories", len(dirs), "workers", w.workers)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w.visited = newInodeSet()
	w.stats = &stats{totalDirs: int64(len(dirs)), startTime: start}
	w.bar = progress.New(w.showProgress)
	w.bar.Describe(w.stats)

	dirCh := make(chan string)
	resultCh := make(chan []types.FileRecord, w.workers)

	var workerWg sync.WaitGroup
	for i := 0; i < w.workers; i++ {
		workerWg.Add(1)
		go func() {
			defer workerWg.Done()
			for dir := range dirCh {
				records := w.listDirectory(dir)
				if len(records) == 0 {
					continue
				}
				select {
				case resultCh <- records:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	// Feeder: push directories, stop early on cancellation.
	go func() {
		defer close(dirCh)
		for _, dir := range dirs {
			select {
			case dirCh <- dir:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Closer: signal the orchestrator once all workers are done.
	go func() {
		workerWg.Wait()
		close(resultCh)
	}()

	ticker := time.NewTicker(w.checkpoint)
	defer ticker.Stop()

	var buffer []types.FileRecord
	flush := func() error {
		if len(buffer) == 0 {
			return nil
		}
		if err := w.sink.InsertFileRecords(buffer); err != nil {
			return fmt.Errorf("persisting batch of %d records: %w", len(buffer), err)
		}
		buffer = buffer[:0]
		return nil
	}

	var fatal error
collect:
	for {
		select {
		case records, ok := <-resultCh:
			if !ok {
				break collect
			}
			buffer = append(buffer, records...)
			w.bar.Describe(w.stats)
			if len(buffer) >= w.batchSize {
				if fatal = flush(); fatal != nil {
					cancel()
					break collect
				}
			}
		case <-ticker.C:
			if fatal = w.saveCheckpoint(); fatal != nil {
				cancel()
				break collect
			}
		}
	}

	if fatal != nil {
		// Drain so workers blocked on resultCh can observe cancellation.
		for range resultCh {
		}
		return w.snapshot(start), fatal
	}

	if err := flush(); err != nil {
		return w.snapshot(start), err
	}

	if ctx.Err() != nil {
		w.logger.Warn("walk interrupted", "scan", w.scanID)
		if err := w.sink.UpdateScanProgress(w.scanID, types.StatusInterrupted,
			w.stats.entries.Load(), w.stats.bytes.Load(), w.stats.errors.Load()); err != nil {
			return w.snapshot(start), err
		}
		return w.snapshot(start), ctx.Err()
	}

	w.bar.Finish(w.stats)
	st := w.snapshot(start)
	w.logger.Info("walk complete",
		"files", st.FilesScanned, "directories", st.DirectoriesScanned,
		"errors", st.Errors, "files_per_second", fmt.Sprintf("%.0f", st.FilesPerSecond))
	return st, nil
}

// saveCheckpoint reports cumulative progress so an observer sees a live
// scan and an interrupted run leaves recoverable partial state.
func (w *Walker) saveCheckpoint() error {
	err := w.sink.UpdateScanProgress(w.scanID, types.StatusRunning,
		w.stats.entries.Load(), w.stats.bytes.Load(), w.stats.errors.Load())
	if err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}
	w.logger.Debug("checkpoint saved", "entries", w.stats.entries.Load())
	return nil
}

func (w *Walker) snapshot(start time.Time) types.ScanStats {
	duration := time.Since(start).Seconds()
	st := types.ScanStats{
		FilesScanned:       w.stats.entries.Load(),
		DirectoriesScanned: w.stats.totalDirs,
		BytesScanned:       w.stats.bytes.Load(),
		DurationSeconds:    duration,
		Errors:             w.stats.errors.Load(),
	}
	if duration > 0 {
		st.FilesPerSecond = float64(st.FilesScanned) / duration
	}
	return st
}

// listDirectory produces records for the immediate entries of one
// directory. Recursion is not needed: discovery already enumerated every
// subdirectory as its own unit of work.
func (w *Walker) listDirectory(dir string) []types.FileRecord {
	entries, err := os.ReadDir(dir)
	if err != nil {
		w.logger.Warn("cannot list directory", "path", dir, "error", err)
		return nil
	}

	records := make([]types.FileRecord, 0, len(entries))
	for _, entry := range entries {
		fullPath := filepath.Join(dir, entry.Name())

		if entry.Type()&fs.ModeSymlink != 0 && !w.firstVisit(entry) {
			w.logger.Debug("symlink cycle detected", "path", fullPath)
			continue
		}

		if w.excl.ShouldExclude(fullPath) {
			w.logger.Debug("path excluded", "path", fullPath)
			continue
		}

		rec := w.extractEntry(entry, fullPath)
		w.stats.entries.Add(1)
		if rec.IsError() {
			w.stats.errors.Add(1)
		} else {
			w.stats.bytes.Add(rec.SizeBytes)
		}
		records = append(records, *rec)
	}
	return records
}

// firstVisit reports whether the symlink entry's inode has not been seen
// before. An unreadable symlink counts as a first visit; extraction will
// record the error.
func (w *Walker) firstVisit(entry os.DirEntry) bool {
	info, err := entry.Info()
	if err != nil {
		return true
	}
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return true
	}
	return w.visited.Visit(st.Ino)
}

// extractEntry builds a record from the directory entry, reusing its
// lstat result when available.
func (w *Walker) extractEntry(entry os.DirEntry, fullPath string) *types.FileRecord {
	info, err := entry.Info()
	if err != nil {
		// Entry disappeared or became unreadable between listing and
		// stat; Extract folds the failure into an error record.
		rec, _ := extract.Extract(w.scanID, fullPath)
		return rec
	}
	return extract.FromFileInfo(w.scanID, fullPath, info)
}
