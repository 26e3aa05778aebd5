package igd

import (
	"errors"
	"fmt"

	"github.com/huin/goupnp/soap"
)

// Failure classes. Every error returned by a session phase or action matches
// one of these, or one of the misuse errors below, with errors.Is.
var (
	ErrBind              = errors.New("failed to bind udp socket")
	ErrTimeout           = errors.New("discovery timed out")
	ErrMissingLocation   = errors.New("missing or invalid location header")
	ErrMissingControlURL = errors.New("missing control url")
	ErrMissingHostPort   = errors.New("missing host/port information in url")
	ErrUnexpectedStatus  = errors.New("unexpected http status")
	ErrTransport         = errors.New("transport failure")
	ErrDecode            = errors.New("decode failure")
	ErrTimer             = errors.New("timer failure")
)

// Misuse of the session API or invalid arguments.
var (
	ErrSessionConsumed     = errors.New("session phase already consumed")
	ErrInvalidPort         = errors.New("invalid port number")
	ErrUnsupportedProtocol = errors.New("unsupported protocol")
	ErrInvalidLease        = errors.New("invalid lease duration")
	ErrMessageTooLarge     = fmt.Errorf("%w: message exceeds %d bytes", ErrDecode, maxMessageSize)
)

// StatusError reports a non-200 HTTP response. HasCode is false when the
// status line could not be parsed at all.
type StatusError struct {
	Code    int
	HasCode bool
	// Fault is the decoded SOAP fault of a failed action, if the gateway sent one.
	Fault *soap.SOAPFaultError
}

func (e *StatusError) Error() string {
	if !e.HasCode {
		return "missing http status code"
	}
	if e.Fault != nil && e.Fault.Detail.UPnPError.Errorcode != 0 {
		return fmt.Sprintf("unexpected status code: %d (upnp error %d: %s)",
			e.Code, e.Fault.Detail.UPnPError.Errorcode, e.Fault.Detail.UPnPError.ErrorDescription)
	}
	return fmt.Sprintf("unexpected status code: %d", e.Code)
}

// Is makes every StatusError match ErrUnexpectedStatus.
func (e *StatusError) Is(target error) bool {
	return target == ErrUnexpectedStatus
}

// Unwrap exposes the SOAP fault so callers can errors.As into it.
func (e *StatusError) Unwrap() error {
	if e.Fault == nil {
		return nil
	}
	return e.Fault
}

// StatusCode extracts the HTTP status carried by err, if any.
func StatusCode(err error) (code int, ok bool) {
	var se *StatusError
	if errors.As(err, &se) && se.HasCode {
		return se.Code, true
	}
	return 0, false
}

func transportErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}

func decodeErr(what string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrDecode, what)
	}
	return fmt.Errorf("%w: %s: %w", ErrDecode, what, err)
}
