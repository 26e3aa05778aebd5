package igd

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"net/netip"

	"github.com/huin/goupnp/soap"
)

type soapArg struct {
	name  string
	value string
}

// soapEnvelope renders a SOAP 1.1 request for action with its arguments in
// order, each under the service namespace prefix "u".
func soapEnvelope(action string, args []soapArg) []byte {
	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>` + "\r\n")
	fmt.Fprintf(&b, `<s:Envelope xmlns:s="%s" s:encodingStyle="%s"><s:Body>`, soapEnvelopeNS, soapEncodingNS)
	fmt.Fprintf(&b, `<u:%s xmlns:u="%s">`, action, ServiceType)
	for _, arg := range args {
		fmt.Fprintf(&b, "<u:%s>", arg.name)
		_ = xml.EscapeText(&b, []byte(arg.value))
		fmt.Fprintf(&b, "</u:%s>", arg.name)
	}
	fmt.Fprintf(&b, `</u:%s></s:Body></s:Envelope>`, action)
	return b.Bytes()
}

// soapRequest wraps the envelope in a POST to the control path.
func soapRequest(target string, host netip.AddrPort, action string, envelope []byte) []byte {
	return httpRequest("POST", target, host, []string{
		"Content-Type: text/xml",
		fmt.Sprintf(`SOAPAction: "%s#%s"`, ServiceType, action),
	}, envelope)
}

type faultEnvelope struct {
	Body struct {
		Fault *soap.SOAPFaultError `xml:"Fault"`
	} `xml:"Body"`
}

// decodeFault extracts a SOAP fault from an error response body. It returns
// nil when the body carries none.
func decodeFault(body []byte) *soap.SOAPFaultError {
	var env faultEnvelope
	if err := xml.Unmarshal(body, &env); err != nil {
		return nil
	}
	return env.Body.Fault
}
