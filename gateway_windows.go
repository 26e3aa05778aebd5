//go:build windows

package igd

import (
	"bufio"
	"net/netip"
	"os/exec"
	"strings"
)

// readDefaultGateway asks `route print 0.0.0.0` for the default route.
func readDefaultGateway() (netip.Addr, error) {
	output, err := exec.Command("route", "print", "0.0.0.0").Output()
	if err != nil {
		return netip.Addr{}, nil
	}
	return parseWindowsRouteOutput(string(output)), nil
}

// parseWindowsRouteOutput reads the "Active Routes:" table:
//
//	Network Destination        Netmask          Gateway       Interface  Metric
//	          0.0.0.0          0.0.0.0      192.168.1.1    192.168.1.100     25
func parseWindowsRouteOutput(output string) netip.Addr {
	scanner := bufio.NewScanner(strings.NewReader(output))
	active := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "Active Routes:") {
			active = true
			continue
		}
		if !active {
			continue
		}
		if strings.HasPrefix(line, "====") {
			break
		}
		fields := strings.Fields(line)
		if len(fields) < 4 || fields[0] != "0.0.0.0" || fields[1] != "0.0.0.0" {
			continue
		}
		gateway, err := netip.ParseAddr(fields[2])
		if err == nil && gateway.Is4() {
			return gateway
		}
	}
	return netip.Addr{}
}
