//go:build !linux && !darwin && !freebsd && !windows

package volume

import (
	"errors"
	"fmt"
	"runtime"
)

func diskUsage(path string) (Usage, error) {
	return Usage{}, fmt.Errorf("free space query on %s: %w", runtime.GOOS, errors.ErrUnsupported)
}
