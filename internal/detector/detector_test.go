//go:build unix

package detector

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/scandex/scandex/internal/extract"
	"github.com/scandex/scandex/internal/logging"
	"github.com/scandex/scandex/internal/store"
	"github.com/scandex/scandex/internal/types"
)

const testScanID = "scan-1"

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// seedFile writes content to path and inserts its record.
func seedFile(t *testing.T, st *store.Store, path string, content []byte) {
	t.Helper()
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	rec, ok := extract.Extract(testScanID, path)
	if !ok {
		t.Fatalf("extracting %s failed: %v", path, rec.ErrorMessage)
	}
	if err := st.InsertFileRecords([]types.FileRecord{*rec}); err != nil {
		t.Fatal(err)
	}
}

func defaultOptions() Options {
	return Options{
		MinSize:        1,
		UsePartialHash: true,
		Workers:        2,
	}
}

// TestDetectorFindsDuplicates tests the full pipeline on a minimal
// fixture: two identical files and one same-sized different file.
func TestDetectorFindsDuplicates(t *testing.T) {
	dir := t.TempDir()
	st := openTestStore(t)

	content := make([]byte, 40)
	for i := range content {
		content[i] = byte(i)
	}
	other := make([]byte, 40) // same size, different content

	seedFile(t, st, filepath.Join(dir, "one.bin"), content)
	seedFile(t, st, filepath.Join(dir, "two.bin"), content)
	seedFile(t, st, filepath.Join(dir, "odd.bin"), other)

	report, err := New(st, testScanID, defaultOptions(), logging.NewNopLogger()).Run()
	if err != nil {
		t.Fatal(err)
	}

	if report.TotalGroups != 1 {
		t.Fatalf("expected 1 duplicate group, got %d", report.TotalGroups)
	}
	g := report.Groups[0]
	if g.Count != 2 || len(g.Paths) != 2 {
		t.Errorf("expected group of 2, got count=%d paths=%d", g.Count, len(g.Paths))
	}
	if g.SizeBytes != 40 {
		t.Errorf("expected size 40, got %d", g.SizeBytes)
	}
	if report.TotalDuplicateFiles != 1 {
		t.Errorf("expected 1 redundant file, got %d", report.TotalDuplicateFiles)
	}
	if report.WastedBytes != 40 {
		t.Errorf("expected 40 wasted bytes, got %d", report.WastedBytes)
	}
	if report.ServedFromCache {
		t.Error("fresh run must not be marked as cached")
	}
}

// TestDetectorNoPartialHash tests that skipping pre-screening yields the
// same groups.
func TestDetectorNoPartialHash(t *testing.T) {
	dir := t.TempDir()
	st := openTestStore(t)

	content := []byte("same content, long enough to matter")
	seedFile(t, st, filepath.Join(dir, "a"), content)
	seedFile(t, st, filepath.Join(dir, "b"), content)

	opts := defaultOptions()
	opts.UsePartialHash = false
	report, err := New(st, testScanID, opts, logging.NewNopLogger()).Run()
	if err != nil {
		t.Fatal(err)
	}
	if report.TotalGroups != 1 || report.Groups[0].Count != 2 {
		t.Errorf("expected one group of 2, got %+v", report.Groups)
	}
}

// TestDetectorDeterministic tests that repeated runs over the same
// records produce identical groups in identical order.
func TestDetectorDeterministic(t *testing.T) {
	dir := t.TempDir()
	st := openTestStore(t)

	contentA := make([]byte, 100)
	contentB := make([]byte, 100)
	for i := range contentA {
		contentA[i] = byte(i)
		contentB[i] = byte(i * 3)
	}

	seedFile(t, st, filepath.Join(dir, "a1"), contentA)
	seedFile(t, st, filepath.Join(dir, "a2"), contentA)
	seedFile(t, st, filepath.Join(dir, "b1"), contentB)
	seedFile(t, st, filepath.Join(dir, "b2"), contentB)
	seedFile(t, st, filepath.Join(dir, "b3"), contentB)

	first, err := New(st, testScanID, defaultOptions(), logging.NewNopLogger()).Run()
	if err != nil {
		t.Fatal(err)
	}
	second, err := New(st, testScanID, defaultOptions(), logging.NewNopLogger()).Run()
	if err != nil {
		t.Fatal(err)
	}

	if first.TotalGroups != 2 {
		t.Fatalf("expected 2 groups, got %d", first.TotalGroups)
	}
	if !reflect.DeepEqual(first.Groups, second.Groups) {
		t.Errorf("runs differ:\n%+v\n%+v", first.Groups, second.Groups)
	}
}

// TestDetectorNarrowingSubset tests that hashing only ever shrinks a
// size group: confirmed groups are subsets of their size group and the
// pre-screening stage changes nothing about the outcome.
func TestDetectorNarrowingSubset(t *testing.T) {
	dir := t.TempDir()
	st := openTestStore(t)

	size := 2 * int(partialHashSize)
	base := make([]byte, size)
	for i := range base {
		base[i] = byte(i)
	}
	twin := make([]byte, size)
	copy(twin, base)
	// Same first 8 KiB as base, different tail: survives pre-screening,
	// eliminated by the full hash.
	tail := make([]byte, size)
	copy(tail, base)
	for i := int(partialHashSize); i < size; i++ {
		tail[i] ^= 0xFF
	}
	other := make([]byte, size)
	for i := range other {
		other[i] = 0xEE
	}

	pathA := filepath.Join(dir, "a")
	pathB := filepath.Join(dir, "b")
	seedFile(t, st, pathA, base)
	seedFile(t, st, pathB, twin)
	seedFile(t, st, filepath.Join(dir, "c"), tail)
	seedFile(t, st, filepath.Join(dir, "d"), other)

	sizeGroups, err := st.FilesBySize(testScanID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(sizeGroups) != 1 || len(sizeGroups[0].Paths) != 4 {
		t.Fatalf("expected one size group of 4, got %+v", sizeGroups)
	}
	members := make(map[string]bool, 4)
	for _, p := range sizeGroups[0].Paths {
		members[p] = true
	}

	withPartial, err := New(st, testScanID, defaultOptions(), logging.NewNopLogger()).Run()
	if err != nil {
		t.Fatal(err)
	}
	opts := defaultOptions()
	opts.UsePartialHash = false
	noPartial, err := New(st, testScanID, opts, logging.NewNopLogger()).Run()
	if err != nil {
		t.Fatal(err)
	}

	for _, report := range []*types.Report{withPartial, noPartial} {
		for _, g := range report.Groups {
			for _, p := range g.Paths {
				if !members[p] {
					t.Errorf("group member %s is not part of the size group", p)
				}
			}
		}
	}
	if !reflect.DeepEqual(withPartial.Groups, noPartial.Groups) {
		t.Errorf("pre-screening changed the outcome:\n%+v\n%+v",
			withPartial.Groups, noPartial.Groups)
	}
	if withPartial.TotalGroups != 1 {
		t.Fatalf("expected 1 confirmed group, got %d", withPartial.TotalGroups)
	}
	got := withPartial.Groups[0].Paths
	if len(got) != 2 || got[0] != pathA || got[1] != pathB {
		t.Errorf("expected group of a and b, got %v", got)
	}
}

// TestDetectorMinSize tests that small files are excluded up front.
func TestDetectorMinSize(t *testing.T) {
	dir := t.TempDir()
	st := openTestStore(t)

	small := []byte("tiny")
	seedFile(t, st, filepath.Join(dir, "a"), small)
	seedFile(t, st, filepath.Join(dir, "b"), small)

	opts := defaultOptions()
	opts.MinSize = 1024
	report, err := New(st, testScanID, opts, logging.NewNopLogger()).Run()
	if err != nil {
		t.Fatal(err)
	}
	if report.TotalGroups != 0 {
		t.Errorf("expected no groups below min size, got %d", report.TotalGroups)
	}
}

// TestDetectorCache tests the save/serve cycle and its threshold guard.
func TestDetectorCache(t *testing.T) {
	dir := t.TempDir()
	st := openTestStore(t)

	content := make([]byte, 2048)
	seedFile(t, st, filepath.Join(dir, "a"), content)
	seedFile(t, st, filepath.Join(dir, "b"), content)

	opts := defaultOptions()
	opts.SaveToCache = true
	first, err := New(st, testScanID, opts, logging.NewNopLogger()).Run()
	if err != nil {
		t.Fatal(err)
	}
	if first.ServedFromCache {
		t.Fatal("first run must compute")
	}

	// Same threshold: served from cache with identical groups.
	opts.UseCache = true
	second, err := New(st, testScanID, opts, logging.NewNopLogger()).Run()
	if err != nil {
		t.Fatal(err)
	}
	if !second.ServedFromCache {
		t.Fatal("second run should be served from cache")
	}
	if second.TotalGroups != first.TotalGroups || second.WastedBytes != first.WastedBytes {
		t.Errorf("cached report differs: %+v vs %+v", second, first)
	}

	// Stricter threshold than cached: still served, filtered down.
	strict := opts
	strict.MinSize = 1024
	third, err := New(st, testScanID, strict, logging.NewNopLogger()).Run()
	if err != nil {
		t.Fatal(err)
	}
	if !third.ServedFromCache {
		t.Error("cache built with a looser threshold must serve stricter requests")
	}
	if third.TotalGroups != 1 {
		t.Errorf("expected the 2048-byte group to survive filtering, got %d groups", third.TotalGroups)
	}

	// Looser threshold than cached: must recompute.
	if err := st.SaveDuplicateCache(testScanID, first.Groups, 1024); err != nil {
		t.Fatal(err)
	}
	loose := opts
	loose.MinSize = 1
	fourth, err := New(st, testScanID, loose, logging.NewNopLogger()).Run()
	if err != nil {
		t.Fatal(err)
	}
	if fourth.ServedFromCache {
		t.Error("cache built with a stricter threshold must not serve looser requests")
	}
}

// TestDetectorUnreadableFileDropped tests that a file recorded in the
// database but unreadable on disk neither aborts detection nor appears
// in a group.
func TestDetectorUnreadableFileDropped(t *testing.T) {
	dir := t.TempDir()
	st := openTestStore(t)

	content := []byte("duplicated content for this test")
	seedFile(t, st, filepath.Join(dir, "a"), content)
	seedFile(t, st, filepath.Join(dir, "b"), content)

	// Same size on record, but the file is gone by detection time.
	ghost := filepath.Join(dir, "ghost")
	seedFile(t, st, ghost, content)
	if err := os.Remove(ghost); err != nil {
		t.Fatal(err)
	}

	report, err := New(st, testScanID, defaultOptions(), logging.NewNopLogger()).Run()
	if err != nil {
		t.Fatal(err)
	}
	if report.TotalGroups != 1 {
		t.Fatalf("expected 1 group, got %d", report.TotalGroups)
	}
	if report.Groups[0].Count != 2 {
		t.Errorf("expected the ghost to be dropped, got group of %d", report.Groups[0].Count)
	}
	for _, p := range report.Groups[0].Paths {
		if p == ghost {
			t.Error("unreadable file must not appear in a group")
		}
	}
}

// TestDetectorDetails tests metadata enrichment and oldest-first order.
func TestDetectorDetails(t *testing.T) {
	dir := t.TempDir()
	st := openTestStore(t)

	content := []byte("content shared by old and new")
	oldPath := filepath.Join(dir, "old")
	newPath := filepath.Join(dir, "new")

	if err := os.WriteFile(oldPath, content, 0o644); err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(oldPath, past, past); err != nil {
		t.Fatal(err)
	}
	seedExisting(t, st, oldPath)
	seedFile(t, st, newPath, content)

	det := New(st, testScanID, defaultOptions(), logging.NewNopLogger())
	report, err := det.Run()
	if err != nil {
		t.Fatal(err)
	}
	if report.TotalGroups != 1 {
		t.Fatalf("expected 1 group, got %d", report.TotalGroups)
	}

	enriched, err := det.Details(report.Groups)
	if err != nil {
		t.Fatal(err)
	}
	if len(enriched) != 1 {
		t.Fatalf("expected 1 enriched group, got %d", len(enriched))
	}
	eg := enriched[0]
	if eg.OldestPath != oldPath {
		t.Errorf("expected oldest path %s, got %s", oldPath, eg.OldestPath)
	}
	if len(eg.Files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(eg.Files))
	}
	if eg.Files[0].Path != oldPath {
		t.Errorf("expected oldest file first, got %s", eg.Files[0].Path)
	}
}

// seedExisting inserts a record for an already-written file.
func seedExisting(t *testing.T, st *store.Store, path string) {
	t.Helper()
	rec, ok := extract.Extract(testScanID, path)
	if !ok {
		t.Fatalf("extracting %s failed", path)
	}
	if err := st.InsertFileRecords([]types.FileRecord{*rec}); err != nil {
		t.Fatal(err)
	}
}
