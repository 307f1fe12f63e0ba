//go:build unix

package transport

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// removeStaleSocket unlinks path when it is a unix socket left behind by a
// previous process, so binding the ipc endpoint does not fail with EADDRINUSE.
// Regular files are never touched.
func removeStaleSocket(path string) (bool, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		if errors.Is(err, unix.ENOENT) {
			return false, nil
		}
		return false, fmt.Errorf("stat ipc path %s: %w", path, err)
	}
	if st.Mode&unix.S_IFMT != unix.S_IFSOCK {
		return false, fmt.Errorf("%w: ipc path %s exists and is not a socket", ErrInvalidEndpoint, path)
	}
	if err := unix.Unlink(path); err != nil && !errors.Is(err, unix.ENOENT) {
		return false, fmt.Errorf("unlink stale ipc socket %s: %w", path, err)
	}
	return true, nil
}
