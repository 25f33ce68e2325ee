//go:build linux

package ice

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// reusableListenConfig returns a net.ListenConfig whose Control callback
// sets SO_REUSEADDR and SO_REUSEPORT before bind, so multiple bases can
// share a listening port across process restarts (and, on Linux, across
// goroutines) the way the teacher's media sockets do. Non-Linux builds
// fall back to the zero-value ListenConfig (see sockopts_other.go).
func reusableListenConfig() net.ListenConfig {
	return net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
				if sockErr == nil {
					sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
				}
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}
}
