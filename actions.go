package igd

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/huin/goupnp/soap"
	"github.com/rs/zerolog/log"
)

const (
	actionGetExternalIP     = "GetExternalIPAddress"
	actionAddAnyPortMapping = "AddAnyPortMapping"
	actionDeletePortMapping = "DeletePortMapping"
	maxLeaseSeconds         = 1<<32 - 1
)

// invoke posts action to the control URL and returns a cursor at the
// <action>Response element, which may be empty. args may depend on the
// local address of the connection.
func (c *Controlled) invoke(ctx context.Context, action string, args func(local netip.Addr) []soapArg) (Cursor, error) {
	c.c.mu.Lock()
	defer c.c.mu.Unlock()

	target := c.control.RequestURI()
	resp, err := c.c.exchange(ctx, c.addr, func(local netip.Addr) []byte {
		return soapRequest(target, c.addr, action, soapEnvelope(action, args(local)))
	})
	if err == nil && !resp.ok() {
		se := resp.statusError()
		se.Fault = decodeFault(resp.Body)
		err = se
	}
	var doc Cursor
	if err == nil {
		doc, err = parseDocument(resp.Body)
	}
	c.c.cfg.Metrics.action(action, err)
	if err != nil {
		log.Debug().Err(err).Str("action", action).Msg("igd: action failed")
		return Cursor{}, err
	}
	return doc.Path("Envelope", "Body", action+"Response"), nil
}

// ExternalIP asks the gateway for its external address. A zero Addr with a
// nil error means the gateway did not report a usable address.
func (c *Controlled) ExternalIP(ctx context.Context) (netip.Addr, error) {
	result, err := c.invoke(ctx, actionGetExternalIP, func(netip.Addr) []soapArg { return nil })
	if err != nil {
		return netip.Addr{}, err
	}
	text, ok := result.Descend("NewExternalIPAddress").Text()
	if !ok {
		return netip.Addr{}, nil
	}
	ip, err := netip.ParseAddr(text)
	if err != nil {
		return netip.Addr{}, nil
	}
	return ip, nil
}

// AddAnyPortMapping requests a mapping to req.InternalPort and lets the
// gateway choose the external port. It returns 0 with a nil error when the
// gateway did not report the reserved port.
func (c *Controlled) AddAnyPortMapping(ctx context.Context, req PortMappingRequest) (uint16, error) {
	if !req.Protocol.valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedProtocol, req.Protocol)
	}
	if req.InternalPort == 0 {
		return 0, fmt.Errorf("%w: 0 (must be 1-65535)", ErrInvalidPort)
	}
	lease, err := leaseSeconds(req.Lease)
	if err != nil {
		return 0, err
	}

	result, err := c.invoke(ctx, actionAddAnyPortMapping, func(local netip.Addr) []soapArg {
		client := req.InternalClient
		if !client.IsValid() {
			client = c.internalClient(local)
		}
		return addAnyPortMappingArgs(req, client, lease)
	})
	if err != nil {
		return 0, err
	}
	text, ok := result.Descend("NewReservedPort").Text()
	if !ok {
		return 0, nil
	}
	port, err := soap.UnmarshalUi2(text)
	if err != nil {
		return 0, nil
	}
	log.Info().Str("protocol", string(req.Protocol)).
		Uint16("internal_port", req.InternalPort).
		Uint16("external_port", port).
		Msg("igd: port mapping added")
	return port, nil
}

// DeletePortMapping removes the mapping for externalPort.
func (c *Controlled) DeletePortMapping(ctx context.Context, proto Protocol, externalPort uint16) error {
	if !proto.valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedProtocol, proto)
	}
	if externalPort == 0 {
		return fmt.Errorf("%w: 0 (must be 1-65535)", ErrInvalidPort)
	}
	port, _ := soap.MarshalUi2(externalPort)
	_, err := c.invoke(ctx, actionDeletePortMapping, func(netip.Addr) []soapArg {
		return []soapArg{
			{"NewRemoteHost", ""},
			{"NewExternalPort", port},
			{"NewProtocol", string(proto)},
		}
	})
	return err
}

// internalClient prefers the bound address and falls back to the local end
// of the connection when the session is bound to a wildcard.
func (c *Controlled) internalClient(connLocal netip.Addr) netip.Addr {
	if bound := c.c.local.Addr().Unmap(); !bound.IsUnspecified() {
		return bound
	}
	return connLocal
}

func leaseSeconds(d time.Duration) (uint32, error) {
	if d < 0 || d/time.Second > maxLeaseSeconds {
		return 0, fmt.Errorf("%w: %s", ErrInvalidLease, d)
	}
	return uint32(d / time.Second), nil
}

func addAnyPortMappingArgs(req PortMappingRequest, client netip.Addr, lease uint32) []soapArg {
	internalPort, _ := soap.MarshalUi2(req.InternalPort)
	enabled, _ := soap.MarshalBoolean(true)
	duration, _ := soap.MarshalUi4(lease)
	return []soapArg{
		{"NewRemoteHost", ""},
		{"NewExternalPort", "0"},
		{"NewProtocol", string(req.Protocol)},
		{"NewInternalPort", internalPort},
		{"NewInternalClient", client.String()},
		{"NewEnabled", enabled},
		{"NewPortMappingDescription", req.Description},
		{"NewLeaseDuration", duration},
	}
}
