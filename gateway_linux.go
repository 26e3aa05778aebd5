//go:build linux

package igd

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"net/netip"
	"os"
	"strings"
)

// readDefaultGateway reads the default gateway from /proc/net/route.
// It returns an invalid Addr and no error when there is no such file or no
// default route.
func readDefaultGateway() (netip.Addr, error) {
	file, err := os.Open("/proc/net/route")
	if err != nil {
		if os.IsNotExist(err) {
			return netip.Addr{}, nil
		}
		return netip.Addr{}, fmt.Errorf("failed to open routing table: %w", err)
	}
	defer file.Close()
	return parseRouteTable(file)
}

func parseRouteTable(r io.Reader) (netip.Addr, error) {
	scanner := bufio.NewScanner(r)

	// Skip header line
	if !scanner.Scan() {
		return netip.Addr{}, fmt.Errorf("empty routing table")
	}

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 || fields[1] != "00000000" {
			continue
		}
		gateway, err := parseHexIP(fields[2])
		if err != nil {
			return netip.Addr{}, fmt.Errorf("failed to parse gateway: %w", err)
		}
		// 0.0.0.0 is an on-link route
		if !gateway.IsUnspecified() {
			return gateway, nil
		}
	}

	if err := scanner.Err(); err != nil {
		return netip.Addr{}, fmt.Errorf("error reading routing table: %w", err)
	}
	return netip.Addr{}, nil
}

// parseHexIP converts the little-endian hex address used by /proc/net/route
// ("0101A8C0" is 192.168.1.1).
func parseHexIP(hexIP string) (netip.Addr, error) {
	if len(hexIP) != 8 {
		return netip.Addr{}, fmt.Errorf("invalid hex IP length: %d", len(hexIP))
	}
	b, err := hex.DecodeString(hexIP)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("invalid hex IP: %w", err)
	}
	return netip.AddrFrom4([4]byte{b[3], b[2], b[1], b[0]}), nil
}
