package igd

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"github.com/rs/zerolog/log"
)

// exchange performs one HTTP request on a fresh TCP connection to addr and
// reads the complete response into the session buffer. build receives the
// local address of the connection. Cancelling ctx resets the connection.
func (c *core) exchange(ctx context.Context, addr netip.AddrPort, build func(local netip.Addr) []byte) (*response, error) {
	dialer := net.Dialer{Timeout: c.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr.String())
	if err != nil {
		return nil, abortErr(ctx, transportErr("connect", err))
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() {
		if tc, ok := conn.(*net.TCPConn); ok {
			_ = tc.SetLinger(0)
		}
		_ = conn.Close()
	})
	defer stop()

	var local netip.Addr
	if la, ok := conn.LocalAddr().(*net.TCPAddr); ok {
		local = la.AddrPort().Addr().Unmap()
	}
	log.Debug().Str("gateway", addr.String()).Msg("igd: sending request")
	if _, err := conn.Write(build(local)); err != nil {
		return nil, abortErr(ctx, transportErr("write request", err))
	}
	resp, err := readResponse(conn, c.buf)
	if err != nil {
		return nil, abortErr(ctx, err)
	}
	return resp, nil
}

// abortErr reports a failure caused by cancellation as a transport error
// that also matches the context error.
func abortErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return transportErr("aborted", ctxErr)
	}
	return err
}

// httpRequest formats a request with the headers every gateway exchange
// carries. extra holds additional header lines.
func httpRequest(method, target string, host netip.AddrPort, extra []string, body []byte) []byte {
	b := make([]byte, 0, 256+len(body))
	b = fmt.Appendf(b, "%s %s HTTP/1.1\r\n", method, target)
	b = fmt.Appendf(b, "Host: %s\r\n", host)
	for _, h := range extra {
		b = append(b, h...)
		b = append(b, "\r\n"...)
	}
	if body != nil {
		b = fmt.Appendf(b, "Content-Length: %d\r\n", len(body))
	}
	b = append(b, "Connection: close\r\n\r\n"...)
	return append(b, body...)
}
