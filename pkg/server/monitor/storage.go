package monitor

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StorageMonitor tracks on-disk usage of the dataset directory, cached to
// avoid walking the tree on every request.
type StorageMonitor struct {
	dataDir       string
	maxBytes      int64
	cachedUsage   int64
	lastCheck     time.Time
	cacheDuration time.Duration
	mu            sync.Mutex
}

// NewStorageMonitor creates a new storage monitor.
func NewStorageMonitor(dataDir string, maxBytes int64) *StorageMonitor {
	return &StorageMonitor{
		dataDir:       dataDir,
		maxBytes:      maxBytes,
		cacheDuration: 10 * time.Second,
	}
}

// GetUsage returns current storage usage in bytes (cached for 10s).
func (sm *StorageMonitor) GetUsage() (int64, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if time.Since(sm.lastCheck) < sm.cacheDuration {
		return sm.cachedUsage, nil
	}

	usage, err := calculateDirSize(sm.dataDir)
	if err != nil {
		return 0, err
	}

	sm.cachedUsage = usage
	sm.lastCheck = time.Now()
	return usage, nil
}

// GetLimit returns the configured storage limit in bytes.
func (sm *StorageMonitor) GetLimit() int64 {
	return sm.maxBytes
}

// CheckLimit returns an error when usage is at or above the limit.
// A limit of zero means unlimited.
func (sm *StorageMonitor) CheckLimit() error {
	if sm.maxBytes <= 0 {
		return nil
	}
	usage, err := sm.GetUsage()
	if err != nil {
		return fmt.Errorf("failed to measure storage: %w", err)
	}
	if usage >= sm.maxBytes {
		return fmt.Errorf("storage limit reached: %d of %d bytes used", usage, sm.maxBytes)
	}
	return nil
}

// calculateDirSize sums actual disk usage of every file under path.
func calculateDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(filePath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		actualSize, err := getActualFileSize(filePath, info)
		if err != nil {
			size += info.Size()
		} else {
			size += actualSize
		}
		return nil
	})
	return size, err
}
