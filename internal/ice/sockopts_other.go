//go:build !linux

package ice

import "net"

// reusableListenConfig is the non-Linux fallback: SO_REUSEPORT plumbing is
// Linux-specific (see sockopts_linux.go), so other platforms just get a
// plain ListenConfig.
func reusableListenConfig() net.ListenConfig {
	return net.ListenConfig{}
}
