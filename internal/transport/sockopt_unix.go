//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package transport

import (
	"errors"

	"golang.org/x/sys/unix"
)

func setReuse(fd uintptr) error {
	if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return &NetworkError{Operation: "set SO_REUSEADDR", Err: err}
	}
	// Some kernels define SO_REUSEPORT but reject it.
	if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil && !optionUnsupported(err) {
		return &NetworkError{Operation: "set SO_REUSEPORT", Err: err}
	}
	return nil
}

func optionUnsupported(err error) bool {
	return errors.Is(err, unix.ENOPROTOOPT) || errors.Is(err, unix.EOPNOTSUPP)
}
