//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package transport

// Address reuse is left at the platform default.
func setReuse(fd uintptr) error {
	return nil
}

func optionUnsupported(err error) bool {
	return false
}
