package igd

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"github.com/rs/zerolog/log"
)

// Listen opens a TCP listener on port (0 picks one), maps it through mapper
// and keeps the mapping renewed until the listener is closed.
// The context bounds only the setup; use Close to stop the listener.
func Listen(ctx context.Context, mapper PortMapper, port uint16) (*MappedListener, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled before starting: %w", err)
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("failed to create listener: %w", err)
	}
	internal := ln.Addr().(*net.TCPAddr).AddrPort()

	addr, err := mapLocal(ctx, mapper, TCP, internal)
	if err != nil {
		ln.Close()
		return nil, err
	}

	l := &MappedListener{
		listener: ln,
		renewal:  NewRenewalManager(mapper, TCP, internal.Port(), addr.External().Port()),
		addr:     addr,
	}
	l.renewal.SetPortChangeCallback(l.updateExternalPort)
	l.renewal.Start()
	return l, nil
}

// ListenPacket is the UDP counterpart of Listen.
func ListenPacket(ctx context.Context, mapper PortMapper, port uint16) (*MappedPacketConn, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled before starting: %w", err)
	}

	conn, err := net.ListenPacket("udp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("failed to create packet conn: %w", err)
	}
	internal := conn.LocalAddr().(*net.UDPAddr).AddrPort()

	addr, err := mapLocal(ctx, mapper, UDP, internal)
	if err != nil {
		conn.Close()
		return nil, err
	}

	c := &MappedPacketConn{
		PacketConn: conn,
		renewal:    NewRenewalManager(mapper, UDP, internal.Port(), addr.External().Port()),
		addr:       addr,
	}
	c.renewal.SetPortChangeCallback(c.updateExternalPort)
	c.renewal.Start()
	return c, nil
}

// mapLocal maps the port of internal and looks up the external address. The
// mapping is released again if the lookup fails.
func mapLocal(ctx context.Context, mapper PortMapper, proto Protocol, internal netip.AddrPort) (*MappedAddr, error) {
	externalPort, err := mapper.MapPort(ctx, proto, internal.Port(), mappingDuration)
	if err != nil {
		return nil, fmt.Errorf("failed to create port mapping: %w", err)
	}

	externalIP, err := mapper.ExternalIP(ctx)
	if err == nil && ctx.Err() != nil {
		err = fmt.Errorf("context cancelled after mapping: %w", ctx.Err())
	}
	if err != nil {
		unmap(mapper, proto, externalPort)
		return nil, fmt.Errorf("failed to get external IP: %w", err)
	}

	network := "tcp"
	if proto == UDP {
		network = "udp"
	}
	return newMappedAddr(network, internal, netip.AddrPortFrom(externalIP, externalPort)), nil
}

// unmap releases a mapping on a fresh context so that cleanup still happens
// after the caller's context has ended.
func unmap(mapper PortMapper, proto Protocol, port uint16) {
	ctx, cancel := context.WithTimeout(context.Background(), unmapTimeout)
	defer cancel()
	if err := mapper.UnmapPort(ctx, proto, port); err != nil {
		log.Warn().Err(err).Str("protocol", string(proto)).Uint16("port", port).
			Msg("igd: failed to release port mapping")
	}
}

func stopRenewal(r *RenewalManager) {
	ctx, cancel := context.WithTimeout(context.Background(), unmapTimeout)
	defer cancel()
	r.Stop(ctx)
}
