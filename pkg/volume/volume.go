package volume

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"diskfiller/pkg/types"
)

var ErrNoVolume = errors.New("no volume selected")

// Usage is the space accounting of one volume, in bytes.
type Usage struct {
	Total uint64
	Used  uint64
	Free  uint64
}

// FreeMiB is the free space rounded down to whole MiB.
func (u Usage) FreeMiB() int64 {
	return int64(u.Free / uint64(types.MiB))
}

// BelowFloor reports whether free space has dropped under the low-space floor.
func (u Usage) BelowFloor() bool {
	return u.Free < uint64(types.LowSpaceFloor)
}

// Prober answers free-space queries for a volume identifier.
type Prober interface {
	Usage(volume string) (Usage, error)
}

// ProberFunc adapts a plain function to the Prober interface.
type ProberFunc func(volume string) (Usage, error)

func (f ProberFunc) Usage(volume string) (Usage, error) {
	return f(volume)
}

// OSProber queries the operating system for the volume holding a path.
type OSProber struct{}

func (OSProber) Usage(volume string) (Usage, error) {
	if volume == "" {
		return Usage{}, ErrNoVolume
	}
	path, err := probePath(volume)
	if err != nil {
		return Usage{}, err
	}
	u, err := diskUsage(path)
	if err != nil {
		return Usage{}, fmt.Errorf("failed to query free space of %s: %w", volume, err)
	}
	return u, nil
}

// probePath resolves the closest existing directory of path, so that a
// volume can be queried before the job directory exists.
func probePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	for {
		info, err := os.Stat(abs)
		if err == nil {
			if info.IsDir() {
				return abs, nil
			}
			return filepath.Dir(abs), nil
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", fmt.Errorf("no existing directory for %s: %w", path, err)
		}
		abs = parent
	}
}
