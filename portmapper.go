package igd

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/rs/zerolog/log"
)

// NewPortMapper creates a port mapper, trying UPnP first, then NAT-PMP.
// This is a convenience wrapper around NewPortMapperContext using context.Background().
func NewPortMapper(bind []netip.AddrPort, opts ...Option) (PortMapper, error) {
	return NewPortMapperContext(context.Background(), bind, opts...)
}

// NewPortMapperContext creates a port mapper with context support, trying
// UPnP IGD discovery from bind first and falling back to NAT-PMP on the
// default gateway.
func NewPortMapperContext(ctx context.Context, bind []netip.AddrPort, opts ...Option) (PortMapper, error) {
	return newPortMapper(ctx,
		func(ctx context.Context) (PortMapper, error) { return NewUPnPMapperContext(ctx, bind, opts...) },
		func(ctx context.Context) (PortMapper, error) { return NewNATPMPMapper(ctx) },
	)
}

type mapperFactory func(ctx context.Context) (PortMapper, error)

func newPortMapper(ctx context.Context, upnp, natpmp mapperFactory) (PortMapper, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	m, upnpErr := upnp(ctx)
	if upnpErr == nil {
		return m, nil
	}
	log.Debug().Err(upnpErr).Msg("igd: upnp unavailable, trying NAT-PMP")

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled after UPnP attempt: %w", err)
	}

	m, err := natpmp(ctx)
	if err != nil {
		return nil, fmt.Errorf("no NAT traversal available: UPnP failed (%v), NAT-PMP failed: %w", upnpErr, err)
	}
	return m, nil
}
