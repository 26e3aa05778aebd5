package igd

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"
)

var errNoReservedPort = errors.New("gateway did not report the reserved port")

// UPnPMapper implements PortMapper over a resolved WANIPConnection:2 session.
type UPnPMapper struct {
	ctl         *Controlled
	description string
}

// NewUPnPMapper discovers and creates a UPnP mapper.
// This is a convenience wrapper around NewUPnPMapperContext using context.Background().
func NewUPnPMapper(bind []netip.AddrPort, opts ...Option) (*UPnPMapper, error) {
	return NewUPnPMapperContext(context.Background(), bind, opts...)
}

// NewUPnPMapperContext discovers the gateway and resolves its control URL.
// Discovery waits up to three seconds for a reply; ctx can cut it short.
func NewUPnPMapperContext(ctx context.Context, bind []netip.AddrPort, opts ...Option) (*UPnPMapper, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}
	ctl, err := Connect(ctx, bind, opts...)
	if err != nil {
		return nil, fmt.Errorf("UPnP gateway discovery failed: %w", err)
	}
	return &UPnPMapper{ctl: ctl, description: defaultControlPoint}, nil
}

// SetDescription sets the description attached to new mappings.
func (u *UPnPMapper) SetDescription(description string) {
	u.description = description
}

// MapPort creates a port mapping via UPnP. The gateway picks the external port.
func (u *UPnPMapper) MapPort(ctx context.Context, proto Protocol, internalPort uint16, lease time.Duration) (uint16, error) {
	port, err := u.ctl.AddAnyPortMapping(ctx, PortMappingRequest{
		Protocol:     proto,
		InternalPort: internalPort,
		Lease:        lease,
		Description:  u.description,
	})
	if err != nil {
		return 0, fmt.Errorf("UPnP port mapping failed: %w", err)
	}
	if port == 0 {
		return 0, fmt.Errorf("UPnP port mapping failed: %w", errNoReservedPort)
	}
	return port, nil
}

// UnmapPort removes a port mapping via UPnP.
func (u *UPnPMapper) UnmapPort(ctx context.Context, proto Protocol, externalPort uint16) error {
	if err := u.ctl.DeletePortMapping(ctx, proto, externalPort); err != nil {
		return fmt.Errorf("UPnP port unmapping failed: %w", err)
	}
	return nil
}

// ExternalIP returns the external IP address via UPnP.
func (u *UPnPMapper) ExternalIP(ctx context.Context) (netip.Addr, error) {
	ip, err := u.ctl.ExternalIP(ctx)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("UPnP external IP lookup failed: %w", err)
	}
	if !ip.IsValid() {
		return netip.Addr{}, fmt.Errorf("UPnP external IP lookup failed: gateway reported no address")
	}
	return ip, nil
}

// Close releases the discovery socket.
func (u *UPnPMapper) Close() error {
	return u.ctl.Close()
}
