//go:build !linux && !darwin && !freebsd && !openbsd && !netbsd && !dragonfly && !windows

package igd

import "net/netip"

// readDefaultGateway has no routing table source on this platform, so the
// .1 heuristic is used.
func readDefaultGateway() (netip.Addr, error) {
	return netip.Addr{}, nil
}
