//go:build !unix

package server

import "syscall"

// setReuseAddrAndDualStack is a no-op on non-unix platforms; Go's net
// package already sets SO_REUSEADDR-equivalent behavior on Windows by
// default, and dual-stack binding there doesn't need IPV6_V6ONLY cleared
// via raw socket options the way BSD-derived stacks do.
func setReuseAddrAndDualStack(network, address string, c syscall.RawConn) error {
	return nil
}
