// Package detector finds duplicate files among a scan's records using
// progressive content hashing.
//
// # Processing Pipeline
//
//	Input: one scan's file records (from the store)
//	    1. Group by size              (SQL, no I/O)
//	    2. Group by partial hash      (first 8KB per file, optional)
//	    3. Group by full-content hash (confirms duplicates)
//	    4. Output: duplicate groups, largest first
//
// Each stage only ever shrinks a group; files without at least one
// same-stage partner are eliminated before the next, more expensive
// stage touches them.
//
// # Concurrency Model
//
// Hash stages batch their files through a semaphore-limited goroutine
// pool, one goroutine per file, capped at the worker count to bound
// open file descriptors. Batches smaller than twice the worker count
// are hashed sequentially instead; the coordination overhead outweighs
// the parallelism at that size.
//
// # Caching
//
// A detection result can be persisted per scan together with the
// minimum-size threshold it was computed under. A later request is
// served from cache only when the cached threshold is at least as
// permissive as the requested one; the cached groups are then filtered
// down to the requested threshold. fromCache is the only code path that
// reads the cache.
package detector

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/scandex/scandex/internal/logging"
	"github.com/scandex/scandex/internal/progress"
	"github.com/scandex/scandex/internal/store"
	"github.com/scandex/scandex/internal/types"
)

// Options configures one detection run.
type Options struct {
	// MinSize excludes files smaller than this many bytes.
	MinSize int64
	// UsePartialHash enables the 8KB pre-screening stage.
	UsePartialHash bool
	// UseCache serves a previously saved result when its threshold
	// permits.
	UseCache bool
	// SaveToCache persists the result for later runs.
	SaveToCache bool
	// Workers caps concurrent file reads.
	Workers int
	// ShowProgress displays a progress spinner.
	ShowProgress bool
}

// Detector finds duplicate files within one scan.
//
// A Detector is single-use: create with New, call Run once.
type Detector struct {
	// Config (immutable, set by New)
	store  *store.Store
	scanID string
	opts   Options
	logger logging.Logger

	// Runtime (initialized in Run)
	sem   types.Semaphore
	stats *stats
	bar   *progress.Spinner
}

// New creates a Detector for one scan.
func New(st *store.Store, scanID string, opts Options, logger logging.Logger) *Detector {
	return &Detector{
		store:  st,
		scanID: scanID,
		opts:   opts,
		logger: logger,
	}
}

// stats tracks detection progress.
type stats struct {
	hashedFiles atomic.Int64
	hashedBytes atomic.Int64
	hashErrors  atomic.Int64
	startTime   time.Time
}

func (s *stats) String() string {
	return fmt.Sprintf("Hashed %d files (%s), %d errors, %.1fs",
		s.hashedFiles.Load(), humanize.IBytes(uint64(s.hashedBytes.Load())),
		s.hashErrors.Load(), time.Since(s.startTime).Seconds())
}

// Run executes the detection pipeline and returns the report.
//
// Processing steps:
//  1. Serve from cache when enabled and the cached threshold permits
//  2. Load size groups from the store (2+ same-sized files each)
//  3. Optionally split each group by partial hash
//  4. Split surviving groups by full-content hash
//  5. Sort groups largest first, build the report, optionally cache it
//
// Files that cannot be read are dropped from their group; they can
// neither confirm nor deny a duplicate.
func (d *Detector) Run() (*types.Report, error) {
	start := time.Now()

	if d.opts.UseCache {
		if report, ok := d.fromCache(); ok {
			report.ElapsedSeconds = time.Since(start).Seconds()
			d.logger.Info("duplicates served from cache",
				"scan", d.scanID, "groups", report.TotalGroups)
			return report, nil
		}
	}

	sizeGroups, err := d.store.FilesBySize(d.scanID, d.opts.MinSize)
	if err != nil {
		return nil, err
	}
	d.logger.Info("size screening complete",
		"scan", d.scanID, "candidate_groups", len(sizeGroups), "workers", d.opts.Workers)

	d.sem = types.NewSemaphore(d.opts.Workers)
	d.stats = &stats{startTime: start}
	d.bar = progress.New(d.opts.ShowProgress)
	d.bar.Describe(d.stats)

	var groups []types.DuplicateGroup
	for _, sg := range sizeGroups {
		candidates := [][]string{sg.Paths}
		if d.opts.UsePartialHash && sg.SizeBytes > partialHashSize {
			candidates = d.splitByHash(candidates, partialHashSize)
		}
		for _, byHash := range d.splitKeyed(candidates, 0) {
			paths := byHash.paths
			sort.Strings(paths)
			groups = append(groups, types.DuplicateGroup{
				Hash:      byHash.hash,
				SizeBytes: sg.SizeBytes,
				Count:     len(paths),
				Paths:     paths,
			})
		}
	}

	sort.Slice(groups, func(i, j int) bool {
		if groups[i].SizeBytes != groups[j].SizeBytes {
			return groups[i].SizeBytes > groups[j].SizeBytes
		}
		return groups[i].Hash < groups[j].Hash
	})

	d.bar.Finish(d.stats)

	report := buildReport(groups, time.Since(start).Seconds(), false)
	d.logger.Info("detection complete",
		"scan", d.scanID, "groups", report.TotalGroups,
		"duplicates", report.TotalDuplicateFiles,
		"wasted", humanize.IBytes(uint64(report.WastedBytes)))

	if d.opts.SaveToCache {
		if err := d.store.SaveDuplicateCache(d.scanID, groups, d.opts.MinSize); err != nil {
			// The result is still valid; only the next run loses the
			// shortcut.
			d.logger.Warn("cannot cache detection result", "scan", d.scanID, "error", err)
		}
	}
	return report, nil
}

// fromCache attempts to serve the run from the persisted cache. The
// threshold guard and the re-filtering both live here so no other path
// can return unguarded cached data.
func (d *Detector) fromCache() (*types.Report, bool) {
	cached, err := d.store.LoadDuplicateCache(d.scanID)
	if err != nil {
		d.logger.Warn("cannot read duplicate cache", "scan", d.scanID, "error", err)
		return nil, false
	}
	if cached == nil {
		return nil, false
	}
	if cached.MinSize > d.opts.MinSize {
		// Cache was built under a stricter threshold and may be missing
		// groups the current request wants.
		d.logger.Debug("duplicate cache threshold too strict",
			"cached_min_size", cached.MinSize, "requested_min_size", d.opts.MinSize)
		return nil, false
	}

	var groups []types.DuplicateGroup
	for _, g := range cached.Groups {
		if g.SizeBytes >= d.opts.MinSize {
			groups = append(groups, g)
		}
	}
	return buildReport(groups, 0, true), true
}

// Details joins duplicate groups with full file metadata. Within each
// group files are ordered oldest modification first; the oldest member
// is the probable original.
func (d *Detector) Details(groups []types.DuplicateGroup) ([]types.EnrichedGroup, error) {
	enriched := make([]types.EnrichedGroup, 0, len(groups))
	for _, g := range groups {
		files, err := d.store.FileMetadata(d.scanID, g.Paths)
		if err != nil {
			return nil, err
		}
		eg := types.EnrichedGroup{
			Hash:      g.Hash,
			SizeBytes: g.SizeBytes,
			Count:     g.Count,
			Files:     files,
		}
		if len(files) > 0 {
			eg.OldestPath = files[0].Path
		}
		enriched = append(enriched, eg)
	}
	return enriched, nil
}

// keyedGroup pairs a surviving group with the hash that formed it.
type keyedGroup struct {
	hash  string
	paths []string
}

// splitByHash refines candidate groups by hashing the first limit bytes
// of each member, keeping only subgroups with 2+ files.
func (d *Detector) splitByHash(candidates [][]string, limit int64) [][]string {
	var out [][]string
	for _, kg := range d.splitKeyed(candidates, limit) {
		out = append(out, kg.paths)
	}
	return out
}

// splitKeyed hashes every file of every candidate group at the given
// limit (0 = full content) and regroups by digest, keeping only
// subgroups with 2+ files. Subgroups are ordered by hash for
// deterministic output.
func (d *Detector) splitKeyed(candidates [][]string, limit int64) []keyedGroup {
	var out []keyedGroup
	for _, paths := range candidates {
		byHash := d.hashBatch(paths, limit)

		hashes := make([]string, 0, len(byHash))
		for h := range byHash {
			hashes = append(hashes, h)
		}
		sort.Strings(hashes)

		for _, h := range hashes {
			if len(byHash[h]) >= 2 {
				out = append(out, keyedGroup{hash: h, paths: byHash[h]})
			}
		}
	}
	return out
}

// hashResult pairs a path with its digest for aggregation.
type hashResult struct {
	path string
	hash string
}

// hashBatch hashes a batch of files and groups the paths by digest.
// Large batches fan out across the semaphore-limited pool; small ones
// are hashed inline.
func (d *Detector) hashBatch(paths []string, limit int64) map[string][]string {
	byHash := make(map[string][]string, len(paths))

	if len(paths) < 2*d.opts.Workers {
		for _, p := range paths {
			if h, ok := d.hashOne(p, limit); ok {
				byHash[h] = append(byHash[h], p)
			}
		}
		return byHash
	}

	results := make(chan hashResult, len(paths))
	var wg sync.WaitGroup
	for _, p := range paths {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			d.sem.Acquire()
			defer d.sem.Release()
			if h, ok := d.hashOne(path, limit); ok {
				results <- hashResult{path: path, hash: h}
			}
		}(p)
	}
	wg.Wait()
	close(results)

	for r := range results {
		byHash[r.hash] = append(byHash[r.hash], r.path)
	}
	return byHash
}

// hashOne hashes a single file, updating stats. Unreadable files are
// logged and reported as not-ok; the caller drops them.
func (d *Detector) hashOne(path string, limit int64) (string, bool) {
	h, n, err := hashFile(path, limit)
	if err != nil {
		d.stats.hashErrors.Add(1)
		d.logger.Warn("cannot hash file", "path", path, "error", err)
		return "", false
	}
	d.stats.hashedFiles.Add(1)
	d.stats.hashedBytes.Add(n)
	d.bar.Describe(d.stats)
	return h, true
}

func buildReport(groups []types.DuplicateGroup, elapsed float64, fromCache bool) *types.Report {
	report := &types.Report{
		Groups:          groups,
		TotalGroups:     len(groups),
		ElapsedSeconds:  elapsed,
		ServedFromCache: fromCache,
	}
	for i := range groups {
		report.TotalDuplicateFiles += groups[i].Count - 1
		report.WastedBytes += groups[i].WastedBytes()
	}
	return report
}
