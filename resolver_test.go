package igd

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-i2p/go-igd/internal/testigd"
)

func discovered(t *testing.T, g *testigd.Gateway) *Discovered {
	t.Helper()
	d, err := bindTo(t, g).Discover(context.Background())
	require.NoError(t, err)
	return d
}

func TestResolve(t *testing.T) {
	t.Run("control url is rebased onto the location", func(t *testing.T) {
		g := testigd.New(t)
		ctl, err := discovered(t, g).Resolve(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "http://"+g.HTTPAddr().String()+testigd.ControlPath, ctl.ControlURL().String())
		assert.Equal(t, g.HTTPAddr(), ctl.Addr())
		assert.Equal(t, 1, g.Counters.Snapshot().DescFetch)
	})

	t.Run("service type matches case-insensitively", func(t *testing.T) {
		g := testigd.New(t)
		doc := strings.Replace(testigd.DefaultDescription("/upper"),
			"urn:schemas-upnp-org:service:WANIPConnection:2", "URN:SCHEMAS-UPNP-ORG:SERVICE:WANIPCONNECTION:2", 1)
		g.SetDescription(http.StatusOK, doc)

		ctl, err := discovered(t, g).Resolve(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "/upper", ctl.ControlURL().Path)
	})

	t.Run("no matching service", func(t *testing.T) {
		g := testigd.New(t)
		doc := strings.Replace(testigd.DefaultDescription("/ctl"),
			"WANIPConnection:2", "WANIPConnection:1", 1)
		g.SetDescription(http.StatusOK, doc)

		_, err := discovered(t, g).Resolve(context.Background())
		assert.True(t, errors.Is(err, ErrMissingControlURL))
	})

	t.Run("matching service without control url", func(t *testing.T) {
		g := testigd.New(t)
		doc := strings.Replace(testigd.DefaultDescription("/ctl"), "<controlURL>/ctl</controlURL>", "", 1)
		g.SetDescription(http.StatusOK, doc)

		_, err := discovered(t, g).Resolve(context.Background())
		assert.True(t, errors.Is(err, ErrMissingControlURL))
	})

	t.Run("error status", func(t *testing.T) {
		g := testigd.New(t)
		g.SetDescription(http.StatusInternalServerError, "oops")

		_, err := discovered(t, g).Resolve(context.Background())
		code, ok := StatusCode(err)
		assert.True(t, ok)
		assert.Equal(t, 500, code)
	})

	t.Run("malformed description", func(t *testing.T) {
		g := testigd.New(t)
		g.SetDescription(http.StatusOK, "<root><device>")

		_, err := discovered(t, g).Resolve(context.Background())
		assert.True(t, errors.Is(err, ErrDecode))
	})

	t.Run("resolve only once", func(t *testing.T) {
		g := testigd.New(t)
		d := discovered(t, g)
		_, err := d.Resolve(context.Background())
		require.NoError(t, err)
		_, err = d.Resolve(context.Background())
		assert.True(t, errors.Is(err, ErrSessionConsumed))
	})

	t.Run("unreachable gateway is a transport failure", func(t *testing.T) {
		g := testigd.New(t)
		d := discovered(t, g)
		g.Close()

		_, err := d.Resolve(context.Background())
		assert.True(t, errors.Is(err, ErrTransport), "got %v", err)
	})
}

func TestControlURL(t *testing.T) {
	base, err := url.Parse("http://192.168.1.1:5000/desc/rootDesc.xml")
	require.NoError(t, err)

	testCases := []struct {
		control string
		want    string
	}{
		{"/ctl/IPConn", "http://192.168.1.1:5000/ctl/IPConn"},
		{"ctl/IPConn", "http://192.168.1.1:5000/desc/ctl/IPConn"},
		{"/upnp/control?service=WANIPConn1", "http://192.168.1.1:5000/upnp/control?service=WANIPConn1"},
		// the declared host is ignored in favour of the one the description came from
		{"http://10.9.9.9:1234/ctl", "http://192.168.1.1:5000/ctl"},
	}
	for _, tc := range testCases {
		doc, err := parseDocument([]byte(`<root><service><serviceType>` + ServiceType +
			`</serviceType><controlURL>` + tc.control + `</controlURL></service></root>`))
		require.NoError(t, err)
		got, err := controlURL(base, doc)
		require.NoError(t, err, tc.control)
		assert.Equal(t, tc.want, got.String(), tc.control)
	}
}

func TestControlURLFirstUsableServiceWins(t *testing.T) {
	base, _ := url.Parse("http://192.168.1.1:5000/rootDesc.xml")
	doc, err := parseDocument([]byte(`<root>
<service><serviceType>urn:schemas-upnp-org:service:WANPPPConnection:1</serviceType><controlURL>/ppp</controlURL></service>
<service><serviceType>` + ServiceType + `</serviceType></service>
<service><serviceType>` + ServiceType + `</serviceType><controlURL>/first</controlURL></service>
<service><serviceType>` + ServiceType + `</serviceType><controlURL>/second</controlURL></service>
</root>`))
	require.NoError(t, err)

	got, err := controlURL(base, doc)
	require.NoError(t, err)
	assert.Equal(t, "/first", got.Path)
}
