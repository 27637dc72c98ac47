// Package extract produces FileRecords from filesystem metadata.
//
// Extraction never fails: any error is folded into an error record
// carrying only the path identity and the error message, so a single
// unreadable entry can never abort a walk.
package extract

import (
	"database/sql"
	"errors"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/scandex/scandex/internal/exclude"
	"github.com/scandex/scandex/internal/types"
)

// Localized error messages stored on error records.
const (
	msgPermissionDenied = "permission denied"
	msgNotFound         = "not found"
)

// Extract captures metadata for one path. It uses lstat semantics so
// symlinks are recorded as their own entry, never resolved. The returned
// record is an error record when the stat call fails; ok reports whether
// extraction succeeded.
func Extract(scanID, path string) (rec *types.FileRecord, ok bool) {
	info, err := os.Lstat(path)
	if err != nil {
		return errorRecord(scanID, path, err), false
	}
	return fromFileInfo(scanID, path, info), true
}

// FromFileInfo builds a record from an already-obtained lstat result,
// avoiding a second stat call when the caller holds one.
func FromFileInfo(scanID, path string, info fs.FileInfo) *types.FileRecord {
	return fromFileInfo(scanID, path, info)
}

func fromFileInfo(scanID, path string, info fs.FileInfo) *types.FileRecord {
	st := statData(info)
	isDir := info.IsDir()

	rec := &types.FileRecord{
		ScanID:        scanID,
		Path:          path,
		Name:          filepath.Base(path),
		ParentDir:     filepath.Dir(path),
		SizeBytes:     info.Size(),
		IsDir:         isDir,
		OwnerUID:      nullString(strconv.FormatUint(uint64(st.UID), 10)),
		OwnerGID:      nullString(strconv.FormatUint(uint64(st.GID), 10)),
		OwnerName:     nullString(lookupUser(st.UID)),
		GroupName:     nullString(lookupGroup(st.GID)),
		Permissions:   nullString(info.Mode().String()),
		MTime:         nullInt64(info.ModTime().Unix()),
		CTime:         nullInt64(st.CTime),
		ATime:         nullInt64(st.ATime),
		Inode:         nullString(strconv.FormatUint(st.Inode, 10)),
		NumLinks:      nullInt64(int64(st.NumLinks)),
		ScanTimestamp: time.Now().Unix(),
	}
	if !isDir {
		rec.Extension = nullString(exclude.Extension(rec.Name))
	}
	return rec
}

// errorRecord builds the minimal record shape for a failed extraction:
// path identity plus a message, everything else null/zero.
func errorRecord(scanID, path string, err error) *types.FileRecord {
	msg := err.Error()
	switch {
	case errors.Is(err, fs.ErrPermission):
		msg = msgPermissionDenied
	case errors.Is(err, fs.ErrNotExist):
		msg = msgNotFound
	}
	return &types.FileRecord{
		ScanID:        scanID,
		Path:          path,
		Name:          filepath.Base(path),
		ParentDir:     filepath.Dir(path),
		ScanTimestamp: time.Now().Unix(),
		ErrorMessage:  nullString(msg),
	}
}

// Owner and group names rarely change during a scan; cache resolutions so
// millions of files do not mean millions of passwd lookups.
var (
	userNames  sync.Map // uint32 -> string
	groupNames sync.Map // uint32 -> string
)

// lookupUser resolves a uid to a user name, falling back to the numeric
// id as a string when the uid is unknown.
func lookupUser(uid uint32) string {
	if name, ok := userNames.Load(uid); ok {
		return name.(string)
	}
	name := strconv.FormatUint(uint64(uid), 10)
	if u, err := user.LookupId(name); err == nil {
		name = u.Username
	}
	userNames.Store(uid, name)
	return name
}

func lookupGroup(gid uint32) string {
	if name, ok := groupNames.Load(gid); ok {
		return name.(string)
	}
	name := strconv.FormatUint(uint64(gid), 10)
	if g, err := user.LookupGroupId(name); err == nil {
		name = g.Name
	}
	groupNames.Store(gid, name)
	return name
}

func nullString(s string) sql.NullString { return sql.NullString{String: s, Valid: true} }
func nullInt64(n int64) sql.NullInt64    { return sql.NullInt64{Int64: n, Valid: true} }
