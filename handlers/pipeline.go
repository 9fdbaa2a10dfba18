package handlers

import (
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/c3b5aw/webserv/errorwriter"
	"github.com/c3b5aw/webserv/message"
	"github.com/c3b5aw/webserv/registry"
	"github.com/c3b5aw/webserv/route"
)

// Pipeline turns a completed request into a response: method gating,
// redirection, then the per-method handler, then error body synthesis
// for any status >= 400.
type Pipeline struct {
	logger      *slog.Logger
	registry    *registry.RouteRegistry
	errorWriter errorwriter.ErrorWriter
}

func NewPipeline(logger *slog.Logger, reg *registry.RouteRegistry, ew errorwriter.ErrorWriter) *Pipeline {
	return &Pipeline{
		logger:      logger,
		registry:    reg,
		errorWriter: ew,
	}
}

// Handle produces the response for a request received on one of the
// server's connections. Requests that already failed parsing skip the
// handlers and only get their error body.
func (p *Pipeline) Handle(req *message.Request, srv *route.Server) *message.Response {
	resp := message.NewResponse(req.Code)
	block := p.registry.Lookup(srv, req.Host, route.Uri(req.URI))

	if req.Code < 400 {
		p.invoke(req, block, resp)
	}
	if resp.Status >= 400 {
		p.errorWriter.WriteError(resp, block, p.logger)
	}
	return resp
}

func (p *Pipeline) invoke(req *message.Request, block route.Block, resp *message.Response) {
	if !block.MethodAllowed(req.Method) {
		resp.Status = message.StatusMethodNotAllowed
		return
	}
	if block.Redirection() != "" {
		resp.Status = block.RedirectionCode()
		resp.SetHeader("Location", block.Redirection())
		return
	}
	if limit := block.BodyLimit(); limit > 0 && int64(req.BodySize) > limit {
		resp.Status = message.StatusPayloadTooLarge
		return
	}

	switch req.Method {
	case message.MethodGet:
		p.handleGet(req, block, resp)
	case message.MethodDelete:
		p.handleDelete(req, block, resp)
	case message.MethodPost:
		p.handlePost(req, block, resp)
	default:
		resp.Status = message.StatusNotImplemented
	}
}

// handlePost parses bodies but does not serve them: execution belongs
// to the CGI runner, which is outside the core.
func (p *Pipeline) handlePost(req *message.Request, block route.Block, resp *message.Response) {
	if interpreter := block.CGI(filepath.Ext(req.URI)); interpreter != "" {
		p.logger.Debug("cgi-pass-skipped",
			slog.String("uri", req.URI),
			slog.String("interpreter", interpreter))
	}
	resp.Status = message.StatusNotImplemented
}

// joinPath joins a block root and a request path without doubling the
// separator.
func joinPath(root, uri string) string {
	return strings.TrimSuffix(root, "/") + uri
}

// statusFromError maps a filesystem error's errno class to the status
// sent to the client.
func statusFromError(err error) message.StatusCode {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ENOENT, syscall.ENOTDIR:
			return message.StatusNotFound
		case syscall.EACCES, syscall.EPERM:
			return message.StatusForbidden
		}
	}
	return message.StatusInternalServerError
}
