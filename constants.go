package igd

import (
	"time"

	"github.com/huin/goupnp/dcps/internetgateway2"
)

// Wire-level constants for SSDP discovery and the WANIPConnection:2 service.
const (
	// ServiceType is the only service this client resolves and controls.
	ServiceType = internetgateway2.URN_WANIPConnection_2

	soapEnvelopeNS = "http://schemas.xmlsoap.org/soap/envelope/"
	soapEncodingNS = "http://schemas.xmlsoap.org/soap/encoding/"

	defaultMulticastAddr = "239.255.255.250:1900"
	defaultAttempts      = 3
	defaultAttemptWait   = time.Second
	defaultDialTimeout   = 5 * time.Second
	defaultControlPoint  = "go-igd"

	// maxMessageSize is the largest UDP payload, and the size of the
	// per-session receive buffer.
	maxMessageSize = 65527
)

// Constants for port mapping renewal management
const (
	renewalInterval = 45 * time.Minute
	mappingDuration = 90 * time.Minute // double the interval
	unmapTimeout    = 10 * time.Second
)
