package igd

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net/http/httputil"
	"net/textproto"
	"strconv"
	"strings"
)

// headerEnds terminate a header block, searched from the newline of the
// status line. Bare LF line endings are accepted.
var headerEnds = [][]byte{[]byte("\n\r\n"), []byte("\n\n")}

// response is a parsed HTTP response. Body aliases the buffer it was read
// into unless the message was chunked.
type response struct {
	Code    int
	HasCode bool
	Header  textproto.MIMEHeader
	Body    []byte
}

func (r *response) ok() bool {
	return r.HasCode && r.Code == 200
}

func (r *response) statusError() *StatusError {
	return &StatusError{Code: r.Code, HasCode: r.HasCode}
}

// parseStatusLine accepts "HTTP/x.y NNN [reason]".
func parseStatusLine(line string) (int, bool) {
	proto, rest, ok := strings.Cut(line, " ")
	if !ok || !strings.HasPrefix(proto, "HTTP/") {
		return 0, false
	}
	code, _, _ := strings.Cut(strings.TrimLeft(rest, " "), " ")
	if len(code) != 3 {
		return 0, false
	}
	n, err := strconv.Atoi(code)
	if err != nil || n < 100 {
		return 0, false
	}
	return n, true
}

// parseHead parses the status line and header block of msg. It returns the
// offset of the body, or -1 if the header block is not yet complete. A
// response whose status line is unusable is returned with HasCode unset and
// no headers.
func parseHead(msg []byte) (*response, int, error) {
	lineEnd := bytes.IndexByte(msg, '\n')
	if lineEnd < 0 {
		if len(msg) > 0 && !bytes.HasPrefix([]byte("HTTP/"), msg[:min(len(msg), 5)]) {
			return &response{}, len(msg), nil
		}
		return nil, -1, nil
	}
	code, ok := parseStatusLine(strings.TrimRight(string(msg[:lineEnd]), "\r"))
	if !ok {
		return &response{}, len(msg), nil
	}

	body := -1
	for _, end := range headerEnds {
		if i := bytes.Index(msg[lineEnd:], end); i >= 0 && (body < 0 || lineEnd+i+len(end) < body) {
			body = lineEnd + i + len(end)
		}
	}
	if body < 0 {
		return nil, -1, nil
	}

	block := bytes.ReplaceAll(msg[lineEnd+1:body], []byte("\r\n"), []byte("\n"))
	tp := textproto.NewReader(bufio.NewReader(bytes.NewReader(block)))
	header, err := tp.ReadMIMEHeader()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, 0, decodeErr("malformed http header", err)
	}
	return &response{Code: code, HasCode: true, Header: header}, body, nil
}

// parseResponse parses a message that is known to be complete, such as a
// single datagram.
func parseResponse(msg []byte) (*response, error) {
	resp, body, err := parseHead(msg)
	if err != nil {
		return nil, err
	}
	if body < 0 {
		return nil, decodeErr("incomplete http response", nil)
	}
	resp.Body = msg[body:]
	return resp, nil
}

// readResponse reads from r into buf until a complete response has been
// assembled: the header block, then Content-Length bytes of body, or
// everything up to EOF when no length is declared. Chunked bodies are
// decoded. Responses that do not fit in buf fail with ErrMessageTooLarge.
func readResponse(r io.Reader, buf []byte) (*response, error) {
	var (
		n    int
		resp *response
		body = -1
		eof  bool
	)
	for {
		if resp == nil {
			var err error
			resp, body, err = parseHead(buf[:n])
			if err != nil {
				return nil, err
			}
			if resp != nil && !resp.HasCode {
				return resp, nil
			}
		}
		if resp != nil {
			done, err := bodyComplete(resp, buf[body:n], eof)
			if err != nil {
				return nil, err
			}
			if done {
				return finishBody(resp, buf[body:n])
			}
		}
		if eof {
			if resp == nil && n == 0 {
				return nil, decodeErr("empty http response", io.ErrUnexpectedEOF)
			}
			return nil, decodeErr("truncated http response", io.ErrUnexpectedEOF)
		}
		if n == len(buf) {
			return nil, ErrMessageTooLarge
		}

		m, err := r.Read(buf[n:])
		n += m
		if errors.Is(err, io.EOF) {
			eof = true
		} else if err != nil {
			return nil, transportErr("read response", err)
		}
	}
}

func bodyComplete(resp *response, body []byte, eof bool) (bool, error) {
	if cl := resp.Header.Get("Content-Length"); cl != "" && !isChunked(resp) {
		want, err := strconv.Atoi(strings.TrimSpace(cl))
		if err != nil || want < 0 {
			return false, decodeErr("invalid content-length", err)
		}
		if len(body) > want {
			return true, nil
		}
		return len(body) == want, nil
	}
	if resp.Code == 204 || resp.Code == 304 || resp.Code < 200 {
		return true, nil
	}
	return eof, nil
}

func finishBody(resp *response, body []byte) (*response, error) {
	if cl := resp.Header.Get("Content-Length"); cl != "" && !isChunked(resp) {
		want, _ := strconv.Atoi(strings.TrimSpace(cl))
		body = body[:want]
	}
	if isChunked(resp) {
		decoded, err := io.ReadAll(httputil.NewChunkedReader(bytes.NewReader(body)))
		if err != nil {
			return nil, decodeErr("malformed chunked body", err)
		}
		body = decoded
	}
	resp.Body = body
	return resp, nil
}

func isChunked(resp *response) bool {
	return strings.EqualFold(strings.TrimSpace(resp.Header.Get("Transfer-Encoding")), "chunked")
}
