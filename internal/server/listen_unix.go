//go:build unix

package server

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// setReuseAddrAndDualStack sets SO_REUSEADDR (so a restarted server can
// rebind immediately) and, for an IPv6 socket, clears IPV6_V6ONLY so v4-
// mapped addresses are accepted on the same socket.
func setReuseAddrAndDualStack(network, address string, c syscall.RawConn) error {
	var ctrlErr error
	err := c.Control(func(fd uintptr) {
		if sockErr := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); sockErr != nil {
			ctrlErr = sockErr
			return
		}
		if network == "tcp" || network == "tcp6" {
			// Best-effort: a tcp4 fallback listener has no IPV6_V6ONLY
			// option and setting it would fail, so ignore that error.
			_ = unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0)
		}
	})
	if err != nil {
		return err
	}
	return ctrlErr
}
