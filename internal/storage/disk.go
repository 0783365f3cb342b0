package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// DiskUsage is the on-disk footprint of named data locations.
type DiskUsage struct {
	Paths map[string]int64 `json:"paths"`
	Total int64            `json:"total"`
}

// MeasureDiskUsage sums the size of each named path. A path may be a file or a
// directory (summed recursively). Empty or missing paths count as zero.
func MeasureDiskUsage(paths map[string]string) (*DiskUsage, error) {
	u := &DiskUsage{Paths: make(map[string]int64, len(paths))}
	for name, p := range paths {
		n, err := DiskUsageBytes(p)
		if err != nil {
			return nil, err
		}
		u.Paths[name] = n
		u.Total += n
	}
	return u, nil
}

// DiskUsageBytes returns the total size in bytes of the given paths.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		err := filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
			return nil
		})
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}
