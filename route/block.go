package route

import (
	"strings"

	"github.com/c3b5aw/webserv/message"
)

// Block is the configuration scope a request resolves to: either a
// Server or one of its Locations. Handlers only ever see this
// interface; the two variants share blockData so there is no
// downcasting between them.
type Block interface {
	Root() string
	UploadPass() string
	MethodAllowed(m message.Method) bool
	IndexNames() []string
	Autoindex() bool
	Redirection() string
	RedirectionCode() message.StatusCode
	ErrorPage(status message.StatusCode) string
	BodyLimit() int64
	CGI(extension string) string
}

type blockData struct {
	root            string
	uploadPass      string
	methods         map[message.Method]bool
	indexNames      []string
	autoindex       bool
	redirection     string
	redirectionCode message.StatusCode
	errorPages      map[message.StatusCode]string
	bodyLimit       int64
	cgi             map[string]string
}

func newBlockData() blockData {
	return blockData{
		redirectionCode: message.StatusFound,
		errorPages:      make(map[message.StatusCode]string),
		cgi:             make(map[string]string),
	}
}

func (b *blockData) Root() string       { return b.root }
func (b *blockData) UploadPass() string { return b.uploadPass }

// MethodAllowed defaults to true when no method list was configured.
func (b *blockData) MethodAllowed(m message.Method) bool {
	if b.methods == nil {
		return true
	}
	return b.methods[m]
}

func (b *blockData) IndexNames() []string { return b.indexNames }
func (b *blockData) Autoindex() bool      { return b.autoindex }
func (b *blockData) Redirection() string  { return b.redirection }

func (b *blockData) RedirectionCode() message.StatusCode {
	return b.redirectionCode
}

func (b *blockData) ErrorPage(status message.StatusCode) string {
	return b.errorPages[status]
}

func (b *blockData) BodyLimit() int64 { return b.bodyLimit }

func (b *blockData) CGI(extension string) string {
	return b.cgi[strings.TrimPrefix(extension, ".")]
}

func (b *blockData) SetRoot(root string)          { b.root = root }
func (b *blockData) SetUploadPass(path string)    { b.uploadPass = path }
func (b *blockData) SetIndexNames(names []string) { b.indexNames = names }
func (b *blockData) SetAutoindex(on bool)         { b.autoindex = on }
func (b *blockData) SetBodyLimit(limit int64)     { b.bodyLimit = limit }

func (b *blockData) SetCGI(ext, interpreter string) {
	b.cgi[strings.TrimPrefix(ext, ".")] = interpreter
}

func (b *blockData) SetRedirection(target string, code message.StatusCode) {
	b.redirection = target
	if code != 0 {
		b.redirectionCode = code
	}
}

func (b *blockData) SetErrorPage(status message.StatusCode, path string) {
	b.errorPages[status] = path
}

// AllowMethods replaces the allowed-method set. An empty call keeps
// the current set, so a block never given a list allows every method.
func (b *blockData) AllowMethods(methods ...message.Method) {
	if len(methods) == 0 {
		return
	}
	b.methods = make(map[message.Method]bool, len(methods))
	for _, m := range methods {
		b.methods[m] = true
	}
}

// Server is a server block: a listener endpoint plus its locations and
// sibling virtual hosts. Host, port and name are set once at build
// time.
type Server struct {
	blockData

	host string
	port int
	name string

	locations map[Uri]*Location
	vhosts    map[string]*Server
}

func NewServer(name, host string, port int) *Server {
	return &Server{
		blockData: newBlockData(),
		host:      host,
		port:      port,
		name:      name,
		locations: make(map[Uri]*Location),
		vhosts:    make(map[string]*Server),
	}
}

func (s *Server) Host() string { return s.host }
func (s *Server) Port() int    { return s.port }
func (s *Server) Name() string { return s.name }

// AddLocation creates a location under the server, inheriting the
// server's root, body limit and error pages.
func (s *Server) AddLocation(path Uri) *Location {
	if _, ok := s.locations[path]; ok {
		return nil
	}
	l := &Location{blockData: newBlockData(), path: path}
	l.root = s.root
	l.bodyLimit = s.bodyLimit
	for status, page := range s.errorPages {
		l.errorPages[status] = page
	}
	s.locations[path] = l
	return l
}

// AddVirtualHost registers a sibling server selected by Host header.
// Names are matched lowercased.
func (s *Server) AddVirtualHost(v *Server) {
	s.vhosts[strings.ToLower(v.name)] = v
}

// VHost resolves the Host header to a virtual host, falling back to
// the server itself. A :port suffix must match the vhost's port.
func (s *Server) VHost(host string) *Server {
	if len(s.vhosts) == 0 {
		return s
	}
	name := StripPort(host)
	port := HostPort(host)
	if v, ok := s.vhosts[name]; ok && (port == -1 || port == v.port) {
		return v
	}
	return s
}

// BlockFor resolves a request path to the matching location, falling
// back to the server block.
func (s *Server) BlockFor(uri Uri) Block {
	if l, ok := s.locations[uri.FirstSegment()]; ok {
		return l
	}
	return s
}

// Location returns the matching location block or nil.
func (s *Server) Location(uri Uri) *Location {
	return s.locations[uri.FirstSegment()]
}

// Location is a location block inside a server.
type Location struct {
	blockData

	path Uri
}

func (l *Location) Path() Uri { return l.path }
