package igd

import (
	"net/netip"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAnyPortMappingEnvelope(t *testing.T) {
	lease, err := leaseSeconds(600 * time.Second)
	require.NoError(t, err)
	req := PortMappingRequest{
		Protocol:     TCP,
		InternalPort: 33445,
		Lease:        600 * time.Second,
		Description:  "test",
	}
	env := string(soapEnvelope(actionAddAnyPortMapping,
		addAnyPortMappingArgs(req, netip.MustParseAddr("192.168.1.20"), lease)))

	assert.Contains(t, env, "<u:NewProtocol>TCP</u:NewProtocol>")
	assert.Contains(t, env, "<u:NewInternalPort>33445</u:NewInternalPort>")
	assert.Contains(t, env, "<u:NewLeaseDuration>600</u:NewLeaseDuration>")
	assert.Contains(t, env, "<u:NewExternalPort>0</u:NewExternalPort>")
	assert.Contains(t, env, "<u:NewInternalClient>192.168.1.20</u:NewInternalClient>")
	assert.Contains(t, env, `<u:AddAnyPortMapping xmlns:u="urn:schemas-upnp-org:service:WANIPConnection:2">`)
	assert.Contains(t, env, `xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"`)

	// argument order is fixed by the service description
	order := []string{"NewRemoteHost", "NewExternalPort", "NewProtocol", "NewInternalPort",
		"NewInternalClient", "NewEnabled", "NewPortMappingDescription", "NewLeaseDuration"}
	last := -1
	for _, name := range order {
		i := strings.Index(env, "<u:"+name+">")
		require.Greater(t, i, last, name)
		last = i
	}

	doc, err := parseDocument([]byte(env))
	require.NoError(t, err)
	text, ok := doc.Path("Envelope", "Body", "AddAnyPortMapping", "NewPortMappingDescription").Text()
	assert.True(t, ok)
	assert.Equal(t, "test", text)
}

func TestSOAPEnvelopeEscapesArguments(t *testing.T) {
	env := soapEnvelope("AddAnyPortMapping", []soapArg{{"NewPortMappingDescription", `a<b & "c"`}})
	doc, err := parseDocument(env)
	require.NoError(t, err)
	text, _ := doc.Path("Envelope", "Body", "AddAnyPortMapping", "NewPortMappingDescription").Text()
	assert.Equal(t, `a<b & "c"`, text)
}

func TestSOAPRequest(t *testing.T) {
	host := netip.MustParseAddrPort("192.168.1.1:5000")
	body := soapEnvelope(actionGetExternalIP, nil)
	req := string(soapRequest("/ctl/IPConn", host, actionGetExternalIP, body))

	head, payload, ok := strings.Cut(req, "\r\n\r\n")
	require.True(t, ok)
	assert.Equal(t, string(body), payload)

	lines := strings.Split(head, "\r\n")
	assert.Equal(t, "POST /ctl/IPConn HTTP/1.1", lines[0])
	assert.Contains(t, lines, "Host: 192.168.1.1:5000")
	assert.Contains(t, lines, "Content-Type: text/xml")
	assert.Contains(t, lines, `SOAPAction: "urn:schemas-upnp-org:service:WANIPConnection:2#GetExternalIPAddress"`)
	assert.Contains(t, lines, "Connection: close")
	assert.Contains(t, lines, "Content-Length: "+strconv.Itoa(len(body)))
}

func TestHTTPRequestIPv6Host(t *testing.T) {
	req := string(httpRequest("GET", "/desc.xml", netip.MustParseAddrPort("[fe80::1]:49152"), nil, nil))
	assert.Equal(t, "GET /desc.xml HTTP/1.1\r\nHost: [fe80::1]:49152\r\nConnection: close\r\n\r\n", req)
}

func TestDecodeFault(t *testing.T) {
	body := []byte(`<?xml version="1.0"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/">
<s:Body><s:Fault><faultcode>s:Client</faultcode><faultstring>UPnPError</faultstring>
<detail><UPnPError xmlns="urn:schemas-upnp-org:control-1-0"><errorCode>718</errorCode><errorDescription>ConflictInMappingEntry</errorDescription></UPnPError></detail>
</s:Fault></s:Body></s:Envelope>`)
	fault := decodeFault(body)
	require.NotNil(t, fault)
	assert.Equal(t, "UPnPError", fault.FaultString)
	assert.Equal(t, 718, fault.Detail.UPnPError.Errorcode)
	assert.Equal(t, "ConflictInMappingEntry", fault.Detail.UPnPError.ErrorDescription)

	assert.Nil(t, decodeFault([]byte("<html>nope</html>")))
	assert.Nil(t, decodeFault([]byte("not xml")))
}

func TestLeaseSeconds(t *testing.T) {
	s, err := leaseSeconds(90 * time.Minute)
	require.NoError(t, err)
	assert.Equal(t, uint32(5400), s)

	s, err = leaseSeconds(0)
	require.NoError(t, err)
	assert.Zero(t, s)

	s, err = leaseSeconds(1500 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), s)

	_, err = leaseSeconds(-time.Second)
	assert.ErrorIs(t, err, ErrInvalidLease)
	_, err = leaseSeconds(time.Duration(maxLeaseSeconds+1) * time.Second)
	assert.ErrorIs(t, err, ErrInvalidLease)
}
