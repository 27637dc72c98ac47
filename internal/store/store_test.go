package store

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/scandex/scandex/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func nullStr(s string) sql.NullString { return sql.NullString{String: s, Valid: true} }
func nullI64(n int64) sql.NullInt64   { return sql.NullInt64{Int64: n, Valid: true} }

// testRecord builds a plausible file record for inserts.
func testRecord(scanID, path string, size int64, mtime int64) types.FileRecord {
	return types.FileRecord{
		ScanID:        scanID,
		Path:          path,
		Name:          filepath.Base(path),
		ParentDir:     filepath.Dir(path),
		SizeBytes:     size,
		Extension:     nullStr(""),
		OwnerName:     nullStr("alice"),
		GroupName:     nullStr("users"),
		Permissions:   nullStr("-rw-r--r--"),
		MTime:         nullI64(mtime),
		ScanTimestamp: 1700000000,
	}
}

// TestOpenOnDisk tests that Open creates the database file and its
// parent directory.
func TestOpenOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "scan.db")
	st, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	if _, err := st.CreateScan([]string{"/data"}, 4); err != nil {
		t.Fatal(err)
	}
}

// TestScanLifecycle tests create, update and terminal transitions.
func TestScanLifecycle(t *testing.T) {
	st := openTestStore(t)

	id, err := st.CreateScan([]string{"/data", "/home"}, 4)
	if err != nil {
		t.Fatal(err)
	}

	info, err := st.ScanInfo(id)
	if err != nil {
		t.Fatal(err)
	}
	if info == nil {
		t.Fatal("expected scan to exist")
	}
	if info.Status != types.StatusRunning {
		t.Errorf("expected status running, got %s", info.Status)
	}
	if len(info.RootPaths) != 2 || info.RootPaths[0] != "/data" {
		t.Errorf("unexpected root paths: %v", info.RootPaths)
	}
	if info.EndTime.Valid {
		t.Error("running scan must not have an end time")
	}

	if err := st.UpdateScanProgress(id, types.StatusRunning, 100, 5000, 2); err != nil {
		t.Fatal(err)
	}
	info, _ = st.ScanInfo(id)
	if info.TotalFiles != 100 || info.TotalBytes != 5000 || info.Errors != 2 {
		t.Errorf("checkpoint not applied: %+v", info)
	}
	if info.EndTime.Valid {
		t.Error("checkpoint must not set an end time")
	}

	if err := st.UpdateScanProgress(id, types.StatusCompleted, 150, 6000, 2); err != nil {
		t.Fatal(err)
	}
	info, _ = st.ScanInfo(id)
	if info.Status != types.StatusCompleted {
		t.Errorf("expected completed, got %s", info.Status)
	}
	if !info.EndTime.Valid {
		t.Error("terminal status must set the end time")
	}
}

// TestUpdateUnknownScan tests the unknown-id error.
func TestUpdateUnknownScan(t *testing.T) {
	st := openTestStore(t)
	err := st.UpdateScanStatus("no-such-scan", types.StatusCompleted, ScanUpdate{})
	if err == nil {
		t.Fatal("expected error for unknown scan")
	}
}

// TestScanInfoMissing tests the nil-not-error contract.
func TestScanInfoMissing(t *testing.T) {
	st := openTestStore(t)
	info, err := st.ScanInfo("missing")
	if err != nil {
		t.Fatal(err)
	}
	if info != nil {
		t.Error("expected nil for unknown scan")
	}
}

// TestLatestScanID tests empty and populated databases.
func TestLatestScanID(t *testing.T) {
	st := openTestStore(t)

	id, err := st.LatestScanID()
	if err != nil {
		t.Fatal(err)
	}
	if id != "" {
		t.Errorf("expected empty id for empty database, got %q", id)
	}

	first, _ := st.CreateScan([]string{"/a"}, 1)
	_ = first
	second, _ := st.CreateScan([]string{"/b"}, 1)

	latest, err := st.LatestScanID()
	if err != nil {
		t.Fatal(err)
	}
	// Same start_time second is possible; either way a real id comes back.
	if latest == "" {
		t.Error("expected a scan id")
	}
	_ = second
}

// TestInsertAndQueryFiles tests batch insert plus filtered queries.
func TestInsertAndQueryFiles(t *testing.T) {
	st := openTestStore(t)

	records := []types.FileRecord{
		testRecord("s1", "/data/a.txt", 100, 1000),
		testRecord("s1", "/data/b.log", 5000, 2000),
		testRecord("s1", "/data/sub", 0, 3000),
	}
	records[0].Extension = nullStr("txt")
	records[1].Extension = nullStr("log")
	records[2].IsDir = true
	records[2].Extension = sql.NullString{}

	if err := st.InsertFileRecords(records); err != nil {
		t.Fatal(err)
	}

	all, err := st.QueryFiles("s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}
	// Ordered by path
	if all[0].Path != "/data/a.txt" || all[2].Path != "/data/sub" {
		t.Errorf("unexpected order: %s, %s", all[0].Path, all[2].Path)
	}

	big, err := st.QueryFiles("s1", SizeRange{Min: 1000}, OnlyFiles{})
	if err != nil {
		t.Fatal(err)
	}
	if len(big) != 1 || big[0].Path != "/data/b.log" {
		t.Errorf("size filter failed: %+v", big)
	}

	byExt, err := st.QueryFiles("s1", ExtensionSet{"TXT"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byExt) != 1 || byExt[0].Path != "/data/a.txt" {
		t.Errorf("extension filter failed: %+v", byExt)
	}

	byName, err := st.QueryFiles("s1", NamePattern("*.log"))
	if err != nil {
		t.Fatal(err)
	}
	if len(byName) != 1 || byName[0].Path != "/data/b.log" {
		t.Errorf("name filter failed: %+v", byName)
	}

	modified, err := st.QueryFiles("s1", ModifiedRange{From: 1500, To: 2500})
	if err != nil {
		t.Fatal(err)
	}
	if len(modified) != 1 || modified[0].Path != "/data/b.log" {
		t.Errorf("mtime filter failed: %+v", modified)
	}
}

// TestEmptySetFilters tests that set filters with no members match
// nothing instead of producing malformed SQL.
func TestEmptySetFilters(t *testing.T) {
	st := openTestStore(t)

	if err := st.InsertFileRecords([]types.FileRecord{
		testRecord("s1", "/data/a.txt", 100, 1000),
	}); err != nil {
		t.Fatal(err)
	}

	byExt, err := st.QueryFiles("s1", ExtensionSet{})
	if err != nil {
		t.Fatal(err)
	}
	if len(byExt) != 0 {
		t.Errorf("empty extension set must match nothing, got %d rows", len(byExt))
	}

	byOwner, err := st.QueryFiles("s1", OwnerSet(nil))
	if err != nil {
		t.Fatal(err)
	}
	if len(byOwner) != 0 {
		t.Errorf("empty owner set must match nothing, got %d rows", len(byOwner))
	}
}

// TestInsertErrorRecord tests that the minimal error shape round-trips.
func TestInsertErrorRecord(t *testing.T) {
	st := openTestStore(t)

	rec := types.FileRecord{
		ScanID:        "s1",
		Path:          "/data/secret",
		Name:          "secret",
		ParentDir:     "/data",
		ScanTimestamp: 1700000000,
		ErrorMessage:  nullStr("permission denied"),
	}
	if err := st.InsertFileRecords([]types.FileRecord{rec}); err != nil {
		t.Fatal(err)
	}

	errs, err := st.QueryFiles("s1", OnlyErrors{})
	if err != nil {
		t.Fatal(err)
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 error record, got %d", len(errs))
	}
	got := errs[0]
	if got.ErrorMessage.String != "permission denied" {
		t.Errorf("unexpected message %q", got.ErrorMessage.String)
	}
	if got.MTime.Valid || got.Extension.Valid || got.Permissions.Valid {
		t.Error("error record must keep metadata fields null")
	}
}

// TestFilesBySize tests size grouping semantics.
func TestFilesBySize(t *testing.T) {
	st := openTestStore(t)

	records := []types.FileRecord{
		testRecord("s1", "/d/a", 100, 0),
		testRecord("s1", "/d/b", 100, 0),
		testRecord("s1", "/d/c", 100, 0),
		testRecord("s1", "/d/lonely", 999, 0),
		testRecord("s1", "/d/small1", 10, 0),
		testRecord("s1", "/d/small2", 10, 0),
	}
	// Error records never join groups.
	broken := testRecord("s1", "/d/broken", 100, 0)
	broken.ErrorMessage = nullStr("io error")
	records = append(records, broken)

	if err := st.InsertFileRecords(records); err != nil {
		t.Fatal(err)
	}

	groups, err := st.FilesBySize("s1", 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	g := groups[0]
	if g.SizeBytes != 100 || len(g.Paths) != 3 {
		t.Errorf("expected 3 files of size 100, got %d of %d", len(g.Paths), g.SizeBytes)
	}

	all, err := st.FilesBySize("s1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 groups without threshold, got %d", len(all))
	}
	// Largest first
	if all[0].SizeBytes != 100 || all[1].SizeBytes != 10 {
		t.Errorf("expected descending size order, got %d then %d", all[0].SizeBytes, all[1].SizeBytes)
	}
}

// TestDuplicateCacheRoundTrip tests save, load and clear.
func TestDuplicateCacheRoundTrip(t *testing.T) {
	st := openTestStore(t)

	groups := []types.DuplicateGroup{
		{Hash: "aaa", SizeBytes: 2048, Count: 2, Paths: []string{"/d/a", "/d/b"}},
		{Hash: "bbb", SizeBytes: 512, Count: 3, Paths: []string{"/d/x", "/d/y", "/d/z"}},
	}
	if err := st.SaveDuplicateCache("s1", groups, 100); err != nil {
		t.Fatal(err)
	}

	cached, err := st.LoadDuplicateCache("s1")
	if err != nil {
		t.Fatal(err)
	}
	if cached == nil {
		t.Fatal("expected cached groups")
	}
	if cached.MinSize != 100 {
		t.Errorf("expected min size 100, got %d", cached.MinSize)
	}
	if len(cached.Groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(cached.Groups))
	}
	// Largest first
	if cached.Groups[0].Hash != "aaa" {
		t.Errorf("expected aaa first, got %s", cached.Groups[0].Hash)
	}
	if len(cached.Groups[1].Paths) != 3 || cached.Groups[1].Paths[2] != "/d/z" {
		t.Errorf("paths not preserved: %v", cached.Groups[1].Paths)
	}

	// Re-saving replaces, not appends.
	if err := st.SaveDuplicateCache("s1", groups[:1], 200); err != nil {
		t.Fatal(err)
	}
	cached, _ = st.LoadDuplicateCache("s1")
	if len(cached.Groups) != 1 || cached.MinSize != 200 {
		t.Errorf("expected replaced cache, got %+v", cached)
	}

	if err := st.ClearDuplicateCache("s1"); err != nil {
		t.Fatal(err)
	}
	cached, err = st.LoadDuplicateCache("s1")
	if err != nil {
		t.Fatal(err)
	}
	if cached != nil {
		t.Error("expected nil after clearing")
	}
}

// TestLoadDuplicateCacheMissing tests the nil-not-error contract.
func TestLoadDuplicateCacheMissing(t *testing.T) {
	st := openTestStore(t)
	cached, err := st.LoadDuplicateCache("nope")
	if err != nil {
		t.Fatal(err)
	}
	if cached != nil {
		t.Error("expected nil for missing cache")
	}
}

// TestFileMetadataOrder tests oldest-mtime-first ordering.
func TestFileMetadataOrder(t *testing.T) {
	st := openTestStore(t)

	records := []types.FileRecord{
		testRecord("s1", "/d/newer", 100, 2000),
		testRecord("s1", "/d/older", 100, 1000),
	}
	if err := st.InsertFileRecords(records); err != nil {
		t.Fatal(err)
	}

	files, err := st.FileMetadata("s1", []string{"/d/newer", "/d/older"})
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	if files[0].Path != "/d/older" {
		t.Errorf("expected oldest first, got %s", files[0].Path)
	}
}

// TestDirectoryStats tests rollup upsert and aggregate queries.
func TestDirectoryStats(t *testing.T) {
	st := openTestStore(t)

	records := []types.FileRecord{
		testRecord("s1", "/d/a.txt", 100, 1000),
		testRecord("s1", "/d/b.txt", 300, 2000),
		testRecord("s1", "/d/sub", 0, 1500),
	}
	records[0].Extension = nullStr("txt")
	records[1].Extension = nullStr("txt")
	records[2].IsDir = true
	records[2].Extension = sql.NullString{}
	if err := st.InsertFileRecords(records); err != nil {
		t.Fatal(err)
	}

	dirs, err := st.DistinctParentDirs("s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(dirs) != 1 || dirs[0] != "/d" {
		t.Fatalf("expected [/d], got %v", dirs)
	}

	files, subdirs, bytes, oldest, newest, err := st.DirectorySummary("s1", "/d")
	if err != nil {
		t.Fatal(err)
	}
	if files != 2 || subdirs != 1 || bytes != 400 {
		t.Errorf("summary wrong: files=%d dirs=%d bytes=%d", files, subdirs, bytes)
	}
	if oldest.Int64 != 1000 || newest.Int64 != 2000 {
		t.Errorf("mtime range wrong: %v..%v", oldest, newest)
	}

	row := DirectoryStatsRow{
		ScanID: "s1", DirPath: "/d",
		TotalFiles: files, TotalDirectories: subdirs, TotalBytes: bytes,
		ExtensionStats: `{"txt":{"count":2,"bytes":400}}`,
		OwnerStats:     `{"alice":2}`,
		OldestMTime:    oldest, NewestMTime: newest,
		UpdatedAt: 1700000000,
	}
	if err := st.UpsertDirectoryStats(row); err != nil {
		t.Fatal(err)
	}
	// Upsert twice: still one row.
	row.TotalBytes = 500
	if err := st.UpsertDirectoryStats(row); err != nil {
		t.Fatal(err)
	}

	top, err := st.TopDirectories("s1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 1 || top[0].TotalBytes != 500 {
		t.Errorf("expected one updated rollup, got %+v", top)
	}

	exts, err := st.ExtensionStats("s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(exts) != 1 || exts[0].Extension != "txt" || exts[0].Count != 2 {
		t.Errorf("extension stats wrong: %+v", exts)
	}

	owners, err := st.OwnerStats("s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(owners) != 1 || owners[0].Owner != "alice" || owners[0].TotalBytes != 400 {
		t.Errorf("owner stats wrong: %+v", owners)
	}
}
