package igd

import (
	"fmt"
	"net"
	"net/netip"
)

// discoverGateway finds the default gateway for NAT-PMP. It reads the
// system routing table where the platform allows and otherwise assumes
// the gateway is .1 in the local subnet.
func discoverGateway() (netip.Addr, error) {
	gateway, err := readDefaultGateway()
	if err == nil && gateway.IsValid() {
		return gateway, nil
	}
	return discoverGatewayFallback()
}

// discoverGatewayFallback picks the local address used to reach the
// internet (a UDP "dial" sends nothing) and replaces its last octet with 1.
func discoverGatewayFallback() (netip.Addr, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return netip.Addr{}, fmt.Errorf("failed to determine local IP: %w", err)
	}
	defer conn.Close()

	localAddr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return netip.Addr{}, fmt.Errorf("unexpected local address type: %T", conn.LocalAddr())
	}
	return gatewayGuess(localAddr.AddrPort().Addr())
}

func gatewayGuess(local netip.Addr) (netip.Addr, error) {
	local = local.Unmap()
	if !local.Is4() {
		return netip.Addr{}, fmt.Errorf("not IPv4 address: %s", local)
	}
	b := local.As4()
	b[3] = 1
	return netip.AddrFrom4(b), nil
}
