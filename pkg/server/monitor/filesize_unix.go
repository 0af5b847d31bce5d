//go:build !windows

package monitor

import (
	"os"
	"syscall"
)

// getActualFileSize returns allocated disk usage from stat blocks, so
// sparse badger value logs are not over-counted.
func getActualFileSize(path string, info os.FileInfo) (int64, error) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return info.Size(), nil
	}

	// Blocks are 512 bytes regardless of filesystem block size
	return stat.Blocks * 512, nil
}
