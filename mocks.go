package igd

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"time"
)

// errMockFailure is returned by MockPortMapper while failing is set.
var errMockFailure = errors.New("mock: simulated failure")

// MockPortMapper implements PortMapper in memory for testing code that
// consumes port mappings.
type MockPortMapper struct {
	mu         sync.Mutex
	mappings   map[string]*PortMapping
	externalIP netip.Addr
	nextPort   uint16 // 0 maps to the internal port
	failing    bool
	mapCalls   int
	unmapCalls int
}

// PortMapping represents a mock port mapping
type PortMapping struct {
	Protocol     Protocol
	InternalPort uint16
	ExternalPort uint16
	Lease        time.Duration
}

// NewMockPortMapper creates a new mock port mapper
func NewMockPortMapper() *MockPortMapper {
	return &MockPortMapper{
		mappings:   make(map[string]*PortMapping),
		externalIP: netip.MustParseAddr("203.0.113.100"), // RFC5737 test IP
	}
}

// SetExternalIP sets the mock external IP
func (m *MockPortMapper) SetExternalIP(ip netip.Addr) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.externalIP = ip
}

// SetNextPort makes subsequent mappings use port instead of the internal port.
func (m *MockPortMapper) SetNextPort(port uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextPort = port
}

// SetFailing makes every operation fail until cleared.
func (m *MockPortMapper) SetFailing(failing bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing = failing
}

// MapPort implements the PortMapper interface
func (m *MockPortMapper) MapPort(ctx context.Context, proto Protocol, internalPort uint16, lease time.Duration) (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mapCalls++

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if m.failing {
		return 0, errMockFailure
	}
	if !proto.valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedProtocol, proto)
	}

	external := internalPort
	if m.nextPort != 0 {
		external = m.nextPort
	}
	m.mappings[mappingKey(proto, external)] = &PortMapping{
		Protocol:     proto,
		InternalPort: internalPort,
		ExternalPort: external,
		Lease:        lease,
	}
	return external, nil
}

// UnmapPort implements the PortMapper interface
func (m *MockPortMapper) UnmapPort(ctx context.Context, proto Protocol, externalPort uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unmapCalls++

	if err := ctx.Err(); err != nil {
		return err
	}
	if m.failing {
		return errMockFailure
	}
	delete(m.mappings, mappingKey(proto, externalPort))
	return nil
}

// ExternalIP implements the PortMapper interface
func (m *MockPortMapper) ExternalIP(ctx context.Context) (netip.Addr, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return netip.Addr{}, errMockFailure
	}
	return m.externalIP, ctx.Err()
}

// ActiveMappings returns a copy of all current mappings.
func (m *MockPortMapper) ActiveMappings() map[string]PortMapping {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]PortMapping, len(m.mappings))
	for k, v := range m.mappings {
		out[k] = *v
	}
	return out
}

// Calls reports how many MapPort and UnmapPort calls were made.
func (m *MockPortMapper) Calls() (mapCalls, unmapCalls int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mapCalls, m.unmapCalls
}

func mappingKey(proto Protocol, port uint16) string {
	return fmt.Sprintf("%s:%d", proto, port)
}
