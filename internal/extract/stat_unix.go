//go:build unix

package extract

import (
	"io/fs"
	"syscall"
)

// unixStat carries the stat fields that io/fs.FileInfo does not expose.
type unixStat struct {
	UID      uint32
	GID      uint32
	CTime    int64
	ATime    int64
	Inode    uint64
	NumLinks uint64
}

// statData extracts Unix-specific stat data from a FileInfo.
func statData(info fs.FileInfo) unixStat {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return unixStat{}
	}
	return unixStat{
		UID:      st.Uid,
		GID:      st.Gid,
		CTime:    st.Ctim.Sec,
		ATime:    st.Atim.Sec,
		Inode:    st.Ino,
		NumLinks: uint64(st.Nlink),
	}
}
