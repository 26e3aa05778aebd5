package igd

import "net/netip"

// MappedAddr is the address of a socket reachable through a gateway port
// mapping. String reports the external side.
type MappedAddr struct {
	network  string
	internal netip.AddrPort
	external netip.AddrPort
}

func newMappedAddr(network string, internal, external netip.AddrPort) *MappedAddr {
	return &MappedAddr{network: network, internal: internal, external: external}
}

// Network returns "tcp" or "udp".
func (a *MappedAddr) Network() string {
	return a.network
}

func (a *MappedAddr) String() string {
	return a.external.String()
}

// Internal returns the local socket address.
func (a *MappedAddr) Internal() netip.AddrPort {
	return a.internal
}

// External returns the address peers outside the NAT should use.
func (a *MappedAddr) External() netip.AddrPort {
	return a.external
}

// withExternalPort returns a copy of a with the external port replaced.
func (a *MappedAddr) withExternalPort(port uint16) *MappedAddr {
	return newMappedAddr(a.network, a.internal, netip.AddrPortFrom(a.external.Addr(), port))
}
