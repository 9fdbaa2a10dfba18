package registry

import (
	"log/slog"

	"github.com/c3b5aw/webserv/config"
	"github.com/c3b5aw/webserv/message"
	"github.com/c3b5aw/webserv/route"
)

// RouteRegistry owns the immutable routing tree built from the
// configuration: one route.Server per configured listener, each with
// its locations and virtual hosts. After construction nothing writes
// to the tree.
type RouteRegistry struct {
	logger  *slog.Logger
	servers []*route.Server
}

func NewRouteRegistry(logger *slog.Logger, c *config.Config) *RouteRegistry {
	r := &RouteRegistry{logger: logger}
	for i := range c.Servers {
		r.servers = append(r.servers, buildServer(&c.Servers[i]))
	}
	return r
}

// Servers returns the server blocks, one per listener endpoint.
func (r *RouteRegistry) Servers() []*route.Server {
	return r.servers
}

// Lookup resolves the effective block for a request: virtual host by
// Host header, then location by first path segment, each falling back
// to the owning server.
func (r *RouteRegistry) Lookup(s *route.Server, host string, uri route.Uri) route.Block {
	return s.VHost(host).BlockFor(uri)
}

// blockSettings is satisfied by both block variants through their
// promoted setters.
type blockSettings interface {
	SetRoot(string)
	SetUploadPass(string)
	SetIndexNames([]string)
	SetAutoindex(bool)
	SetBodyLimit(int64)
	SetCGI(string, string)
	SetRedirection(string, message.StatusCode)
	SetErrorPage(message.StatusCode, string)
	AllowMethods(...message.Method)
}

func buildServer(sc *config.ServerConfig) *route.Server {
	s := route.NewServer(sc.ServerName, sc.Host, int(sc.Port))
	applyBlock(s, &sc.BlockConfig)

	for path, bc := range sc.Locations {
		l := s.AddLocation(route.Uri(path))
		if l == nil {
			continue
		}
		bc := bc
		applyBlock(l, &bc)
	}

	for name, vc := range sc.VirtualHosts {
		vc := vc
		if vc.ServerName == "" {
			vc.ServerName = name
		}
		s.AddVirtualHost(buildServer(&vc))
	}

	return s
}

func applyBlock(b blockSettings, bc *config.BlockConfig) {
	if bc.Root != "" {
		b.SetRoot(bc.Root)
	}
	if bc.UploadPass != "" {
		b.SetUploadPass(bc.UploadPass)
	}
	if len(bc.Index) > 0 {
		b.SetIndexNames(bc.Index)
	}
	if bc.Autoindex {
		b.SetAutoindex(true)
	}
	if bc.BodyLimit > 0 {
		b.SetBodyLimit(bc.BodyLimit)
	}
	if bc.Redirect != "" {
		b.SetRedirection(bc.Redirect, message.StatusCode(bc.RedirectCode))
	}
	for status, page := range bc.ErrorPages {
		b.SetErrorPage(message.StatusCode(status), page)
	}
	for ext, interpreter := range bc.CGI {
		b.SetCGI(ext, interpreter)
	}
	b.AllowMethods(methodsFromNames(bc.Methods)...)
}

func methodsFromNames(names []string) []message.Method {
	methods := make([]message.Method, 0, len(names))
	for _, name := range names {
		if m := message.LookupMethod(name); m != message.MethodUnknown {
			methods = append(methods, m)
		}
	}
	return methods
}
