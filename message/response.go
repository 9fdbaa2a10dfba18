package message

import (
	"strconv"
	"strings"
	"time"
)

// ServerTag is the Server header value stamped on every response.
const ServerTag = "webserv/1.1"

const dateLayout = "Mon, 02 Jan 2006 15:04:05 MST"

type headerEntry struct {
	name  string
	value string
}

// Response carries the status, ordered headers and body of an HTTP/1.1
// response, and once finalized, the serialized payload with a send
// cursor so partial writes resume where they left off.
type Response struct {
	Status StatusCode

	headers []headerEntry
	Body    []byte

	payload []byte
	sent    int
}

func NewResponse(status StatusCode) *Response {
	return &Response{Status: status}
}

// SetHeader records a header, replacing an existing entry whose name
// matches case-insensitively and preserving insertion order otherwise.
func (r *Response) SetHeader(name, value string) {
	for i := range r.headers {
		if strings.EqualFold(r.headers[i].name, name) {
			r.headers[i].value = value
			return
		}
	}
	r.headers = append(r.headers, headerEntry{name: name, value: value})
}

// Header returns the value recorded for the name, matched
// case-insensitively.
func (r *Response) Header(name string) string {
	for i := range r.headers {
		if strings.EqualFold(r.headers[i].name, name) {
			return r.headers[i].value
		}
	}
	return ""
}

// Finalize stamps the always-set headers and serializes the status
// line, headers, body and trailing CRLF into the send payload.
func (r *Response) Finalize(now time.Time, closeConn bool) {
	if r.Header("Content-Type") == "" {
		r.SetHeader("Content-Type", "text/html; charset=utf-8")
	}
	r.SetHeader("Content-Length", strconv.Itoa(len(r.Body)))
	if closeConn {
		r.SetHeader("Connection", "close")
	} else {
		r.SetHeader("Connection", "keep-alive")
	}
	r.SetHeader("Date", now.Format(dateLayout))
	r.SetHeader("Server", ServerTag)

	var b strings.Builder
	b.Grow(128 + len(r.Body))
	b.WriteString("HTTP/1.1 ")
	b.WriteString(strconv.Itoa(int(r.Status)))
	b.WriteByte(' ')
	b.WriteString(r.Status.Reason())
	b.WriteString("\r\n")
	for _, h := range r.headers {
		b.WriteString(h.name)
		b.WriteString(": ")
		b.WriteString(h.value)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	b.Write(r.Body)
	b.WriteString("\r\n")

	r.payload = []byte(b.String())
	r.sent = 0
}

// Payload returns the full serialized response.
func (r *Response) Payload() []byte {
	return r.payload
}

// Remaining returns the unsent tail of the payload.
func (r *Response) Remaining() []byte {
	return r.payload[r.sent:]
}

// Advance moves the send cursor after a successful write.
func (r *Response) Advance(n int) {
	r.sent += n
	if r.sent > len(r.payload) {
		r.sent = len(r.payload)
	}
}

// Done reports whether the whole payload has been sent.
func (r *Response) Done() bool {
	return r.sent == len(r.payload)
}
