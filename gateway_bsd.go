//go:build darwin || freebsd || openbsd || netbsd || dragonfly

package igd

import (
	"bufio"
	"net/netip"
	"os/exec"
	"strings"
)

// readDefaultGateway asks `netstat -rn` for the default route. Failure to
// run netstat yields an invalid Addr so the caller falls back.
func readDefaultGateway() (netip.Addr, error) {
	output, err := exec.Command("netstat", "-rn").Output()
	if err != nil {
		return netip.Addr{}, nil
	}
	return parseNetstatOutput(string(output)), nil
}

// parseNetstatOutput finds the IPv4 default route in `netstat -rn` output:
//
//	Destination        Gateway            Flags    ...
//	default            192.168.1.1        UGS      ...
func parseNetstatOutput(output string) netip.Addr {
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "default", "0.0.0.0", "0.0.0.0/0":
		default:
			continue
		}
		// "192.168.1.1%en0" carries an interface scope
		host, _, _ := strings.Cut(fields[1], "%")
		gateway, err := netip.ParseAddr(host)
		if err == nil && gateway.Is4() {
			return gateway
		}
	}
	return netip.Addr{}
}
