package igd

import (
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"go.uber.org/multierr"
)

// core is the state shared by every phase of one session: the bound UDP
// socket and the receive buffer. mu allows one network operation at a time.
type core struct {
	mu    sync.Mutex
	conn  *net.UDPConn
	local netip.AddrPort
	buf   []byte
	cfg   *Config
}

func (c *core) close() error {
	return c.conn.Close()
}

// Session is a bound but undiscovered IGD session. Each phase value can be
// advanced exactly once; Close releases the socket from any phase.
type Session struct {
	c     *core
	spent atomic.Bool
}

// Discovered is a session that has located a gateway's device description.
type Discovered struct {
	c        *core
	location *url.URL
	addr     netip.AddrPort
	spent    atomic.Bool
}

// Controlled is a session with a resolved control endpoint. Actions may be
// invoked on it any number of times.
type Controlled struct {
	c       *core
	control *url.URL
	addr    netip.AddrPort
}

// Bind opens a UDP socket on the first of addrs that can be bound.
func Bind(addrs []netip.AddrPort, opts ...Option) (*Session, error) {
	cfg := newConfig(opts)
	var errs error
	for _, a := range addrs {
		conn, err := net.ListenUDP("udp", net.UDPAddrFromAddrPort(a))
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		local := conn.LocalAddr().(*net.UDPAddr).AddrPort()
		log.Debug().Str("local", local.String()).Msg("igd: session bound")
		return &Session{c: &core{
			conn:  conn,
			local: local,
			buf:   make([]byte, maxMessageSize),
			cfg:   cfg,
		}}, nil
	}
	if errs == nil {
		return nil, fmt.Errorf("%w: no local addresses given", ErrBind)
	}
	return nil, fmt.Errorf("%w: %w", ErrBind, errs)
}

// LocalAddr returns the address the session socket is bound to.
func (s *Session) LocalAddr() netip.AddrPort { return s.c.local }

// Close releases the session socket.
func (s *Session) Close() error { return s.c.close() }

// Location returns the device description URL.
func (d *Discovered) Location() *url.URL {
	u := *d.location
	return &u
}

// Addr returns the gateway address the description is fetched from.
func (d *Discovered) Addr() netip.AddrPort { return d.addr }

// Close releases the session socket.
func (d *Discovered) Close() error { return d.c.close() }

// ControlURL returns the resolved WANIPConnection control URL.
func (c *Controlled) ControlURL() *url.URL {
	u := *c.control
	return &u
}

// Addr returns the gateway address actions are sent to.
func (c *Controlled) Addr() netip.AddrPort { return c.addr }

// LocalAddr returns the address the session socket is bound to.
func (c *Controlled) LocalAddr() netip.AddrPort { return c.c.local }

// Close releases the session socket.
func (c *Controlled) Close() error { return c.c.close() }
