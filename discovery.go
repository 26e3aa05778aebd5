package igd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"runtime"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

// errSilence marks an attempt that ended without a reply.
var errSilence = errors.New("no reply")

type datagram struct {
	n    int
	from net.Addr
	err  error
}

func (c *core) searchRequest() []byte {
	var b strings.Builder
	b.WriteString("M-SEARCH * HTTP/1.1\r\n")
	fmt.Fprintf(&b, "HOST: %s\r\n", c.cfg.MulticastAddr)
	b.WriteString("MAN: \"ssdp:discover\"\r\n")
	b.WriteString("MX: 1\r\n")
	fmt.Fprintf(&b, "ST: %s\r\n", ServiceType)
	fmt.Fprintf(&b, "USER-AGENT: %s/%s UPnP/2.0 %s\r\n", runtime.GOOS, runtime.GOARCH, c.cfg.ControlPoint)
	fmt.Fprintf(&b, "CPFN.UPNP.ORG: %s\r\n", c.cfg.ControlPoint)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// Discover searches for a WANIPConnection:2 service. Attempts that see no
// reply are retried; the first datagram received ends the search, and a
// malformed reply is an error.
func (s *Session) Discover(ctx context.Context) (*Discovered, error) {
	if !s.spent.CompareAndSwap(false, true) {
		return nil, ErrSessionConsumed
	}
	c := s.c
	c.mu.Lock()
	defer c.mu.Unlock()

	req := c.searchRequest()
	dst := net.UDPAddrFromAddrPort(c.cfg.MulticastAddr)
	for attempt := 1; attempt <= c.cfg.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, transportErr("discovery cancelled", err)
		}
		d, err := c.search(ctx, req, dst)
		if errors.Is(err, errSilence) {
			c.cfg.Metrics.timeout()
			log.Debug().Int("attempt", attempt).Msg("igd: no m-search reply")
			continue
		}
		if err != nil {
			return nil, err
		}
		log.Debug().Str("from", d.from.String()).Int("attempt", attempt).Msg("igd: m-search reply received")
		return c.discovered(c.buf[:d.n])
	}
	return nil, fmt.Errorf("%w after %d attempts", ErrTimeout, c.cfg.Attempts)
}

// search runs one attempt. The timer is armed before the request is sent.
func (c *core) search(ctx context.Context, req []byte, dst *net.UDPAddr) (datagram, error) {
	if c.cfg.AttemptTimeout <= 0 {
		return datagram{}, fmt.Errorf("%w: invalid attempt timeout %s", ErrTimer, c.cfg.AttemptTimeout)
	}
	timer := c.cfg.Clock.Timer(c.cfg.AttemptTimeout)
	defer timer.Stop()

	c.cfg.Metrics.attempt()
	if _, err := c.conn.WriteTo(req, dst); err != nil {
		return datagram{}, transportErr("send m-search", err)
	}
	log.Debug().Str("to", dst.String()).Msg("igd: m-search sent")

	recv := make(chan datagram, 1)
	go func() {
		n, from, err := c.conn.ReadFrom(c.buf)
		recv <- datagram{n: n, from: from, err: err}
	}()

	select {
	case d := <-recv:
		if d.err != nil {
			return d, transportErr("receive m-search reply", d.err)
		}
		return d, nil
	case <-timer.C:
		if err := c.abandon(recv); err != nil {
			return datagram{}, err
		}
		return datagram{}, errSilence
	case <-ctx.Done():
		if err := c.abandon(recv); err != nil {
			return datagram{}, err
		}
		return datagram{}, transportErr("discovery cancelled", ctx.Err())
	}
}

// abandon unblocks the pending receive and waits for it so the buffer can be
// reused by the next attempt.
func (c *core) abandon(recv <-chan datagram) error {
	if err := c.conn.SetReadDeadline(time.Unix(1, 0)); err != nil {
		return fmt.Errorf("%w: %w", ErrTimer, err)
	}
	<-recv
	if err := c.conn.SetReadDeadline(time.Time{}); err != nil {
		return fmt.Errorf("%w: %w", ErrTimer, err)
	}
	return nil
}

func (c *core) discovered(msg []byte) (*Discovered, error) {
	resp, err := parseResponse(msg)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		log.Debug().Int("code", resp.Code).Bool("has_code", resp.HasCode).Msg("igd: m-search reply rejected")
		return nil, resp.statusError()
	}
	loc := resp.Header.Get("Location")
	if loc == "" || !utf8.ValidString(loc) {
		return nil, ErrMissingLocation
	}
	u, err := url.Parse(strings.TrimSpace(loc))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, ErrMissingLocation
	}
	addr, err := hostPort(u)
	if err != nil {
		return nil, err
	}
	log.Info().Str("location", u.String()).Msg("igd: gateway discovered")
	return &Discovered{c: c, location: u, addr: addr}, nil
}

// hostPort resolves u to a socket address without DNS: the host must be a
// literal IP. A missing port falls back to the scheme default.
func hostPort(u *url.URL) (netip.AddrPort, error) {
	ip, err := netip.ParseAddr(u.Hostname())
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w: host %q", ErrMissingHostPort, u.Hostname())
	}
	port := u.Port()
	if port == "" {
		switch strings.ToLower(u.Scheme) {
		case "http":
			port = "80"
		case "https":
			port = "443"
		default:
			return netip.AddrPort{}, fmt.Errorf("%w: no port in %q", ErrMissingHostPort, u.String())
		}
	}
	p, err := strconv.ParseUint(port, 10, 16)
	if err != nil || p == 0 {
		return netip.AddrPort{}, fmt.Errorf("%w: port %q", ErrMissingHostPort, port)
	}
	return netip.AddrPortFrom(ip.Unmap(), uint16(p)), nil
}
