//go:build !linux && !windows

package network

import "net"

// ReuseAddrListenConfig returns a default ListenConfig on platforms where
// the relay does not tune socket options.
func ReuseAddrListenConfig() net.ListenConfig {
	return net.ListenConfig{}
}
