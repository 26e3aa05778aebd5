package igd

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"time"
)

// Protocol is the transport protocol of a port mapping, in the exact case
// the gateway expects.
type Protocol string

const (
	TCP Protocol = "TCP"
	UDP Protocol = "UDP"
)

// ParseProtocol accepts "tcp" or "udp" in any case.
func ParseProtocol(s string) (Protocol, error) {
	switch Protocol(strings.ToUpper(s)) {
	case TCP:
		return TCP, nil
	case UDP:
		return UDP, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedProtocol, s)
}

func (p Protocol) valid() bool {
	return p == TCP || p == UDP
}

// PortMappingRequest describes an inbound mapping. The external port is
// always left to the gateway.
type PortMappingRequest struct {
	Protocol Protocol
	// InternalClient receives the forwarded traffic. When invalid, the local
	// address of the connection to the gateway is used.
	InternalClient netip.Addr
	InternalPort   uint16
	Lease          time.Duration
	Description    string
}

// PortMapper defines the interface for NAT traversal protocols.
type PortMapper interface {
	MapPort(ctx context.Context, proto Protocol, internalPort uint16, lease time.Duration) (externalPort uint16, err error)
	UnmapPort(ctx context.Context, proto Protocol, externalPort uint16) error
	ExternalIP(ctx context.Context) (netip.Addr, error)
}
