//go:build linux

package filex

import (
	"io/fs"
	"syscall"
	"time"
)

// AccessTime returns the last access time recorded for info, or its
// modification time when the platform data is unavailable.
func AccessTime(info fs.FileInfo) time.Time {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return time.Unix(int64(st.Atim.Sec), int64(st.Atim.Nsec))
	}
	return info.ModTime()
}
