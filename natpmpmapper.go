package igd

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"sync"
	"time"

	natpmp "github.com/jackpal/go-nat-pmp"
	"github.com/rs/zerolog/log"
)

// natpmpClient is the subset of *natpmp.Client the mapper uses.
type natpmpClient interface {
	GetExternalAddress() (*natpmp.GetExternalAddressResult, error)
	AddPortMapping(protocol string, internalPort, requestedExternalPort int, lifetime int) (*natpmp.AddPortMappingResult, error)
}

// NATPMPMapper implements PortMapper using NAT-PMP protocol.
type NATPMPMapper struct {
	client natpmpClient

	mu         sync.Mutex
	internal   map[string]uint16 // external mapping key -> internal port
	superseded map[string]bool   // keys the gateway moved to another external port
}

// NewNATPMPMapper finds the default gateway and checks that it answers
// NAT-PMP requests.
func NewNATPMPMapper(ctx context.Context) (*NATPMPMapper, error) {
	gateway, err := discoverGateway()
	if err != nil {
		return nil, fmt.Errorf("NAT-PMP gateway discovery failed: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	m := newNATPMPMapper(natpmp.NewClient(net.IP(gateway.AsSlice())))
	if _, err := m.client.GetExternalAddress(); err != nil {
		return nil, fmt.Errorf("NAT-PMP connectivity test failed: %w", err)
	}
	log.Info().Str("gateway", gateway.String()).Msg("igd: using NAT-PMP gateway")
	return m, nil
}

func newNATPMPMapper(client natpmpClient) *NATPMPMapper {
	return &NATPMPMapper{
		client:     client,
		internal:   make(map[string]uint16),
		superseded: make(map[string]bool),
	}
}

// MapPort creates a port mapping via NAT-PMP, requesting the internal port
// as the external one.
func (n *NATPMPMapper) MapPort(ctx context.Context, proto Protocol, internalPort uint16, lease time.Duration) (uint16, error) {
	if err := validateMapping(proto, internalPort); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	result, err := n.client.AddPortMapping(
		strings.ToLower(string(proto)),
		int(internalPort),
		int(internalPort),
		int(lease/time.Second),
	)
	if err != nil {
		return 0, fmt.Errorf("NAT-PMP port mapping failed: %w", err)
	}

	key := mappingKey(proto, result.MappedExternalPort)
	n.mu.Lock()
	for k, p := range n.internal {
		if p == internalPort && k != key && strings.HasPrefix(k, string(proto)+":") {
			delete(n.internal, k)
			n.superseded[k] = true
		}
	}
	delete(n.superseded, key)
	n.internal[key] = internalPort
	n.mu.Unlock()
	return result.MappedExternalPort, nil
}

// UnmapPort removes a port mapping via NAT-PMP. Deletion is keyed by the
// internal port, so mappings this mapper did not create are assumed to use
// the same port on both sides. A mapping the gateway has already moved to
// another external port is not sent, since that would delete its successor.
func (n *NATPMPMapper) UnmapPort(ctx context.Context, proto Protocol, externalPort uint16) error {
	if err := validateMapping(proto, externalPort); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	key := mappingKey(proto, externalPort)
	n.mu.Lock()
	if n.superseded[key] {
		delete(n.superseded, key)
		n.mu.Unlock()
		return nil
	}
	internalPort, ok := n.internal[key]
	n.mu.Unlock()
	if !ok {
		internalPort = externalPort
	}

	if _, err := n.client.AddPortMapping(strings.ToLower(string(proto)), int(internalPort), 0, 0); err != nil {
		return fmt.Errorf("NAT-PMP port unmapping failed: %w", err)
	}
	n.mu.Lock()
	delete(n.internal, key)
	n.mu.Unlock()
	return nil
}

// ExternalIP returns the external IP address via NAT-PMP.
func (n *NATPMPMapper) ExternalIP(ctx context.Context) (netip.Addr, error) {
	if err := ctx.Err(); err != nil {
		return netip.Addr{}, err
	}
	result, err := n.client.GetExternalAddress()
	if err != nil {
		return netip.Addr{}, fmt.Errorf("NAT-PMP external IP lookup failed: %w", err)
	}
	return netip.AddrFrom4(result.ExternalIPAddress), nil
}

func validateMapping(proto Protocol, port uint16) error {
	if !proto.valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedProtocol, proto)
	}
	if port == 0 {
		return fmt.Errorf("%w: 0 (must be 1-65535)", ErrInvalidPort)
	}
	return nil
}
