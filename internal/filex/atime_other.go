//go:build !linux

package filex

import (
	"io/fs"
	"time"
)

// AccessTime falls back to the modification time outside Linux.
func AccessTime(info fs.FileInfo) time.Time {
	return info.ModTime()
}
