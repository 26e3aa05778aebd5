package igd

import (
	"context"
	"net/netip"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

// Resolve fetches the device description and extracts the control URL of
// the WANIPConnection:2 service.
func (d *Discovered) Resolve(ctx context.Context) (*Controlled, error) {
	if !d.spent.CompareAndSwap(false, true) {
		return nil, ErrSessionConsumed
	}
	c := d.c
	c.mu.Lock()
	defer c.mu.Unlock()

	target := d.location.RequestURI()
	resp, err := c.exchange(ctx, d.addr, func(netip.Addr) []byte {
		return httpRequest("GET", target, d.addr, nil, nil)
	})
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, resp.statusError()
	}
	doc, err := parseDocument(resp.Body)
	if err != nil {
		return nil, err
	}
	control, err := controlURL(d.location, doc)
	if err != nil {
		return nil, err
	}
	log.Info().Str("control_url", control.String()).Msg("igd: control url resolved")
	return &Controlled{c: c, control: control, addr: d.addr}, nil
}

// controlURL picks the first service of type ServiceType, in document order,
// that carries a usable controlURL and rebases it onto the description URL.
func controlURL(base *url.URL, doc Cursor) (*url.URL, error) {
	for _, service := range doc.Descendants("service") {
		st, _ := service.Descend("serviceType").Text()
		if !strings.EqualFold(st, ServiceType) {
			continue
		}
		raw, ok := service.Descend("controlURL").Text()
		if !ok {
			continue
		}
		ref, err := url.Parse(raw)
		if err != nil || ref.Path == "" {
			continue
		}
		return base.ResolveReference(&url.URL{Path: ref.Path, RawQuery: ref.RawQuery}), nil
	}
	return nil, ErrMissingControlURL
}
