// Package igd is a client for UPnP Internet Gateway Devices. It discovers
// the local gateway over SSDP, resolves the control endpoint of its
// WANIPConnection:2 service and invokes actions on it, with NAT-PMP as a
// fallback port mapper.
package igd

import (
	"context"
	"fmt"
	"net/netip"
	"time"
)

// Connect binds, discovers and resolves in one step. The caller owns the
// returned session and must Close it.
func Connect(ctx context.Context, bind []netip.AddrPort, opts ...Option) (*Controlled, error) {
	s, err := Bind(bind, opts...)
	if err != nil {
		return nil, err
	}
	d, err := s.Discover(ctx)
	if err != nil {
		s.Close()
		return nil, err
	}
	ctl, err := d.Resolve(ctx)
	if err != nil {
		d.Close()
		return nil, err
	}
	return ctl, nil
}

// GetExternalIP discovers the gateway and asks it for its external address.
// A zero Addr with a nil error means the gateway reported none.
func GetExternalIP(ctx context.Context, bind []netip.AddrPort, opts ...Option) (netip.Addr, error) {
	ctl, err := Connect(ctx, bind, opts...)
	if err != nil {
		return netip.Addr{}, err
	}
	defer ctl.Close()
	return ctl.ExternalIP(ctx)
}

// RequestPortMapping discovers the gateway and maps internalPort on the
// bound address to an external port of the gateway's choosing. A zero port
// with a nil error means the gateway did not report which port it reserved.
func RequestPortMapping(ctx context.Context, bind []netip.AddrPort, proto Protocol, internalPort uint16,
	lease time.Duration, description string, opts ...Option) (uint16, error) {
	if !proto.valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedProtocol, proto)
	}
	ctl, err := Connect(ctx, bind, opts...)
	if err != nil {
		return 0, err
	}
	defer ctl.Close()
	return ctl.AddAnyPortMapping(ctx, PortMappingRequest{
		Protocol:     proto,
		InternalPort: internalPort,
		Lease:        lease,
		Description:  description,
	})
}
