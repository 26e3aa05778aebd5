// Package testigd provides a fake UPnP Internet Gateway Device for tests: a
// UDP SSDP responder plus an HTTP server for the device description and the
// WANIPConnection:2 control endpoint.
package testigd

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"sync"
	"testing"

	"github.com/huin/goupnp/httpu"
	"github.com/stretchr/testify/require"
)

const (
	ServiceType = "urn:schemas-upnp-org:service:WANIPConnection:2"
	ControlPath = "/ctl/IPConn"
	DescPath    = "/rootDesc.xml"
)

// Gateway is a fake IGD bound to the loopback interface.
type Gateway struct {
	mu sync.RWMutex

	ssdp    net.PacketConn
	httpSrv *httptest.Server

	// Configurable responses (protected by mu)
	replyFrom    int    // first M-SEARCH answered; 0 never answers
	searchReply  string // raw reply; empty uses the default 200 reply
	description  string
	descStatus   int
	externalIP   string // empty omits NewExternalIPAddress
	reservedPort string // empty omits NewReservedPort
	faultStatus  int
	faultCode    int
	faultDesc    string
	rawResponse  string // replaces the action response body when set

	searches []http.Header
	actions  []Action
	mappings map[string]string

	Counters Counters
}

// Action is a SOAP request received on the control endpoint.
type Action struct {
	Name       string
	SOAPAction string
	Header     http.Header
	Body       string
	Args       map[string]string
}

// Counters tracks protocol events.
type Counters struct {
	mu sync.Mutex

	Searches   int
	DescFetch  int
	ActionRecv int
}

func (c *Counters) inc(p *int) {
	c.mu.Lock()
	*p++
	c.mu.Unlock()
}

// Snapshot returns a copy of the counters.
func (c *Counters) Snapshot() Counters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Counters{Searches: c.Searches, DescFetch: c.DescFetch, ActionRecv: c.ActionRecv}
}

// New starts a gateway that answers the first M-SEARCH. It is closed when
// the test finishes.
func New(t testing.TB) *Gateway {
	t.Helper()
	g := &Gateway{
		replyFrom:    1,
		description:  DefaultDescription(ControlPath),
		descStatus:   http.StatusOK,
		externalIP:   "203.0.113.7",
		reservedPort: "40000",
		mappings:     make(map[string]string),
	}

	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	g.ssdp = conn
	go func() { _ = httpu.Serve(conn, httpu.HandlerFunc(g.serveSearch)) }()

	mux := http.NewServeMux()
	mux.HandleFunc(DescPath, g.serveDescription)
	mux.HandleFunc(ControlPath, g.serveControl)
	g.httpSrv = httptest.NewServer(mux)

	t.Cleanup(g.Close)
	return g
}

// Close stops both listeners.
func (g *Gateway) Close() {
	_ = g.ssdp.Close()
	g.httpSrv.Close()
}

// SSDPAddr is where M-SEARCH requests should be sent.
func (g *Gateway) SSDPAddr() netip.AddrPort {
	return g.ssdp.LocalAddr().(*net.UDPAddr).AddrPort()
}

// HTTPAddr is the address of the description and control server.
func (g *Gateway) HTTPAddr() netip.AddrPort {
	return netip.MustParseAddrPort(g.httpSrv.Listener.Addr().String())
}

// Location is the description URL announced in M-SEARCH replies.
func (g *Gateway) Location() string {
	return g.httpSrv.URL + DescPath
}

// SetReplyFrom answers M-SEARCH number n and later ones; 0 never answers.
func (g *Gateway) SetReplyFrom(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.replyFrom = n
}

// SetSearchReply replaces the M-SEARCH reply datagram.
func (g *Gateway) SetSearchReply(raw string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.searchReply = raw
}

// SetDescription replaces the device description document and its status.
func (g *Gateway) SetDescription(status int, doc string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.descStatus = status
	g.description = doc
}

// SetExternalIP sets the reported external address; empty omits it.
func (g *Gateway) SetExternalIP(ip string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.externalIP = ip
}

// SetReservedPort sets the port returned by AddAnyPortMapping; empty omits it.
func (g *Gateway) SetReservedPort(port string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reservedPort = port
}

// SetFault makes every action fail with status and a UPnP error.
func (g *Gateway) SetFault(status, code int, description string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.faultStatus = status
	g.faultCode = code
	g.faultDesc = description
}

// SetRawResponse makes every action return raw as a 200 response body.
func (g *Gateway) SetRawResponse(raw string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rawResponse = raw
}

// Searches returns the headers of every M-SEARCH received.
func (g *Gateway) Searches() []http.Header {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]http.Header(nil), g.searches...)
}

// Actions returns every SOAP request received.
func (g *Gateway) Actions() []Action {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Action(nil), g.actions...)
}

// Mappings returns the active mappings keyed by "PROTO:port".
func (g *Gateway) Mappings() map[string]string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]string, len(g.mappings))
	for k, v := range g.mappings {
		out[k] = v
	}
	return out
}

func (g *Gateway) serveSearch(r *http.Request) {
	if r.Method != "M-SEARCH" {
		return
	}
	g.Counters.inc(&g.Counters.Searches)

	g.mu.Lock()
	g.searches = append(g.searches, r.Header.Clone())
	n := len(g.searches)
	replyFrom, reply := g.replyFrom, g.searchReply
	g.mu.Unlock()

	if replyFrom == 0 || n < replyFrom {
		return
	}
	if reply == "" {
		reply = "HTTP/1.1 200 OK\r\n" +
			"CACHE-CONTROL: max-age=120\r\n" +
			"ST: " + ServiceType + "\r\n" +
			"USN: uuid:fc4ec57e-b051-11db-88f8-0060085db3f6::" + ServiceType + "\r\n" +
			"EXT:\r\n" +
			"SERVER: testigd/1.0 UPnP/2.0\r\n" +
			"LOCATION: " + g.Location() + "\r\n\r\n"
	}
	peer, err := net.ResolveUDPAddr("udp", r.RemoteAddr)
	if err != nil {
		return
	}
	_, _ = g.ssdp.WriteTo([]byte(reply), peer)
}

func (g *Gateway) serveDescription(w http.ResponseWriter, r *http.Request) {
	g.Counters.inc(&g.Counters.DescFetch)
	g.mu.RLock()
	status, doc := g.descStatus, g.description
	g.mu.RUnlock()

	w.Header().Set("Content-Type", `text/xml; charset="utf-8"`)
	w.WriteHeader(status)
	_, _ = io.WriteString(w, doc)
}

func (g *Gateway) serveControl(w http.ResponseWriter, r *http.Request) {
	g.Counters.inc(&g.Counters.ActionRecv)
	body, _ := io.ReadAll(r.Body)
	soapAction := r.Header.Get("SOAPAction")
	_, name, _ := strings.Cut(strings.Trim(soapAction, `"`), "#")
	args := parseArgs(body)

	g.mu.Lock()
	g.actions = append(g.actions, Action{
		Name:       name,
		SOAPAction: soapAction,
		Header:     r.Header.Clone(),
		Body:       string(body),
		Args:       args,
	})
	faultStatus, faultCode, faultDesc := g.faultStatus, g.faultCode, g.faultDesc
	raw := g.rawResponse
	var result string
	switch name {
	case "GetExternalIPAddress":
		if g.externalIP != "" {
			result = "<NewExternalIPAddress>" + g.externalIP + "</NewExternalIPAddress>"
		}
	case "AddAnyPortMapping":
		if faultStatus == 0 {
			g.mappings[args["NewProtocol"]+":"+g.reservedPort] = args["NewInternalClient"] + ":" + args["NewInternalPort"]
		}
		if g.reservedPort != "" {
			result = "<NewReservedPort>" + g.reservedPort + "</NewReservedPort>"
		}
	case "DeletePortMapping":
		delete(g.mappings, args["NewProtocol"]+":"+args["NewExternalPort"])
	}
	g.mu.Unlock()

	w.Header().Set("Content-Type", `text/xml; charset="utf-8"`)
	switch {
	case faultStatus != 0:
		w.WriteHeader(faultStatus)
		fmt.Fprintf(w, faultTemplate, faultCode, faultDesc)
	case raw != "":
		_, _ = io.WriteString(w, raw)
	default:
		fmt.Fprintf(w, responseTemplate, name, ServiceType, result, name)
	}
}

// parseArgs collects the children of the action element in a SOAP body.
func parseArgs(body []byte) map[string]string {
	args := make(map[string]string)
	dec := xml.NewDecoder(bytes.NewReader(body))
	depth := 0
	var name string
	var text strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return args
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 4 {
				name = t.Name.Local
				text.Reset()
			}
		case xml.CharData:
			if depth == 4 {
				text.Write(t)
			}
		case xml.EndElement:
			if depth == 4 {
				args[name] = text.String()
			}
			depth--
		}
	}
}

const responseTemplate = `<?xml version="1.0"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">
<s:Body><u:%sResponse xmlns:u="%s">%s</u:%sResponse></s:Body>
</s:Envelope>`

const faultTemplate = `<?xml version="1.0"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">
<s:Body><s:Fault><faultcode>s:Client</faultcode><faultstring>UPnPError</faultstring>
<detail><UPnPError xmlns="urn:schemas-upnp-org:control-1-0"><errorCode>%d</errorCode><errorDescription>%s</errorDescription></UPnPError></detail>
</s:Fault></s:Body>
</s:Envelope>`

// DefaultDescription is an InternetGatewayDevice:2 description whose
// WANIPConnection:2 service is controlled at controlURL.
func DefaultDescription(controlURL string) string {
	return `<?xml version="1.0"?>
<root xmlns="urn:schemas-upnp-org:device-1-0">
<specVersion><major>1</major><minor>0</minor></specVersion>
<device>
<deviceType>urn:schemas-upnp-org:device:InternetGatewayDevice:2</deviceType>
<friendlyName>testigd</friendlyName>
<serviceList>
<service>
<serviceType>urn:schemas-upnp-org:service:Layer3Forwarding:1</serviceType>
<serviceId>urn:upnp-org:serviceId:L3Forwarding1</serviceId>
<controlURL>/ctl/L3F</controlURL>
</service>
</serviceList>
<deviceList>
<device>
<deviceType>urn:schemas-upnp-org:device:WANDevice:2</deviceType>
<deviceList>
<device>
<deviceType>urn:schemas-upnp-org:device:WANConnectionDevice:2</deviceType>
<serviceList>
<service>
<serviceType>urn:schemas-upnp-org:service:WANIPConnection:2</serviceType>
<serviceId>urn:upnp-org:serviceId:WANIPConn1</serviceId>
<controlURL>` + controlURL + `</controlURL>
<eventSubURL>/evt/IPConn</eventSubURL>
<SCPDURL>/WANIPCn.xml</SCPDURL>
</service>
</serviceList>
</device>
</deviceList>
</device>
</deviceList>
</device>
</root>`
}
