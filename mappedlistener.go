package igd

import (
	"errors"
	"net"
	"sync"
)

var errListenerClosed = errors.New("listener closed")

// MappedListener implements net.Listener for a port mapped on the gateway.
type MappedListener struct {
	listener net.Listener
	renewal  *RenewalManager

	mu     sync.Mutex
	addr   *MappedAddr
	closed bool
}

// Accept waits for and returns the next connection to the listener.
func (l *MappedListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return nil, errListenerClosed
	}

	conn, err := l.listener.Accept()
	if err != nil {
		return nil, err
	}
	return &MappedConn{Conn: conn, localAddr: l.mappedAddr()}, nil
}

// Close stops renewal, releases the mapping and closes the listener.
func (l *MappedListener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	stopRenewal(l.renewal)
	return l.listener.Close()
}

// Addr returns the listener's external address as a *MappedAddr.
func (l *MappedListener) Addr() net.Addr {
	return l.mappedAddr()
}

func (l *MappedListener) mappedAddr() *MappedAddr {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addr
}

func (l *MappedListener) updateExternalPort(port uint16) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.addr = l.addr.withExternalPort(port)
}

// MappedConn is an accepted connection whose LocalAddr is the mapped
// external address.
type MappedConn struct {
	net.Conn
	localAddr *MappedAddr
}

func (c *MappedConn) LocalAddr() net.Addr {
	return c.localAddr
}

// MappedPacketConn is a UDP socket whose port is mapped on the gateway.
// Closing it releases the mapping.
type MappedPacketConn struct {
	net.PacketConn
	renewal *RenewalManager

	mu        sync.Mutex
	addr      *MappedAddr
	closeOnce sync.Once
	closeErr  error
}

// LocalAddr returns the external address as a *MappedAddr.
func (c *MappedPacketConn) LocalAddr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addr
}

// Close is idempotent and returns the error of the first call.
func (c *MappedPacketConn) Close() error {
	c.closeOnce.Do(func() {
		stopRenewal(c.renewal)
		c.closeErr = c.PacketConn.Close()
	})
	return c.closeErr
}

func (c *MappedPacketConn) updateExternalPort(port uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addr = c.addr.withExternalPort(port)
}
