//go:build linux || darwin || freebsd

package volume

import "golang.org/x/sys/unix"

func diskUsage(path string) (Usage, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Usage{}, err
	}

	bsize := uint64(stat.Bsize)
	total := uint64(stat.Blocks) * bsize
	free := uint64(stat.Bavail) * bsize
	used := total - uint64(stat.Bfree)*bsize

	return Usage{Total: total, Used: used, Free: free}, nil
}
