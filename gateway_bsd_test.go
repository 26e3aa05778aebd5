//go:build darwin || freebsd || openbsd || netbsd || dragonfly

package igd

import (
	"net/netip"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// netstat builds `netstat -rn` output from route lines.
func netstat(routes ...string) string {
	return "Routing tables\n\nInternet:\nDestination        Gateway            Flags        Netif Expire\n" +
		strings.Join(routes, "\n") + "\n"
}

func TestParseNetstatOutput(t *testing.T) {
	testCases := map[string]struct {
		output string
		want   string // empty for no gateway
	}{
		"darwin default": {
			netstat("default            10.1.0.1           UGScg          en0",
				"10.1/16            link#6             UCS            en0"),
			"10.1.0.1",
		},
		"freebsd zero destination": {
			netstat("0.0.0.0            172.20.0.254       UGS            vtnet0"),
			"172.20.0.254",
		},
		"scoped gateway": {
			netstat("default            192.168.50.1%en1   UGScIg         en1"),
			"192.168.50.1",
		},
		"link gateway is skipped": {
			netstat("default            link#17            UCSIg          utun3",
				"default            192.168.50.1       UGScg          en1"),
			"192.168.50.1",
		},
		"ipv6 default is ignored": {
			netstat("default            fe80::1%en0        UGcg           en0"),
			"",
		},
		"no default route": {
			netstat("127.0.0.1          127.0.0.1          UH             lo0"),
			"",
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			var want netip.Addr
			if tc.want != "" {
				want = netip.MustParseAddr(tc.want)
			}
			assert.Equal(t, want, parseNetstatOutput(tc.output))
		})
	}
}

func TestReadDefaultGatewayBSD(t *testing.T) {
	gateway, err := readDefaultGateway()
	assert.NoError(t, err)
	if gateway.IsValid() {
		assert.True(t, gateway.Is4())
	}
}
