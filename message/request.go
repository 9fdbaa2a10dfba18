package message

import "time"

// FormKind records the content type family of a POST body.
type FormKind int

const (
	FormNone FormKind = iota
	FormURLEncoded
	FormMultipart
)

// Request is an HTTP/1.1 request assembled incrementally by
// RequestParser. Header names are lowercased; values are trimmed of
// surrounding spaces and tabs and, except for cookie, lowercased so
// lookups are case-insensitive.
type Request struct {
	StartedAt time.Time

	Method  Method
	URI     string
	Query   string
	Version string
	Host    string

	Headers map[string]string

	Body     []byte
	BodySize int
	Form     FormKind

	Chunked      bool
	HeadersReady bool
	BodyReady    bool
	Close        bool

	Code StatusCode
}

func NewRequest(now time.Time) *Request {
	return &Request{
		StartedAt: now,
		Method:    MethodUnknown,
		Headers:   make(map[string]string),
		Code:      StatusOK,
	}
}

// Header returns the value recorded for the lowercased header name, or
// the empty string.
func (r *Request) Header(name string) string {
	return r.Headers[name]
}
