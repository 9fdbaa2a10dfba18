package handlers

import (
	"os"
	"strings"

	"github.com/c3b5aw/webserv/message"
	"github.com/c3b5aw/webserv/route"
)

func (p *Pipeline) handleGet(req *message.Request, block route.Block, resp *message.Response) {
	path := joinPath(block.Root(), req.URI)
	if strings.HasSuffix(path, "/") {
		p.serveDir(req, block, resp, path)
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		resp.Status = statusFromError(err)
		return
	}
	if info.IsDir() {
		p.serveDir(req, block, resp, path+"/")
		return
	}
	p.serveFile(resp, path)
}

func (p *Pipeline) serveFile(resp *message.Response, path string) {
	body, err := os.ReadFile(path)
	if err != nil {
		resp.Status = statusFromError(err)
		return
	}
	resp.Status = message.StatusOK
	resp.Body = body
}

// serveDir resolves the configured index names in order, then falls
// back to the autoindex listing when the block enables it.
func (p *Pipeline) serveDir(req *message.Request, block route.Block, resp *message.Response, path string) {
	entries, err := os.ReadDir(path)
	if err != nil {
		resp.Status = statusFromError(err)
		return
	}

	for _, index := range block.IndexNames() {
		for _, entry := range entries {
			if entry.Name() == index {
				p.serveFile(resp, path+entry.Name())
				return
			}
		}
	}

	if block.Autoindex() {
		body, err := renderAutoindex(req.URI, entries)
		if err != nil {
			resp.Status = message.StatusInternalServerError
			return
		}
		resp.Status = message.StatusOK
		resp.Body = body
		return
	}

	resp.Status = message.StatusNotFound
}

func (p *Pipeline) handleDelete(req *message.Request, block route.Block, resp *message.Response) {
	base := block.UploadPass()
	if base == "" {
		base = block.Root()
	}
	path := joinPath(base, req.URI)

	if err := os.Remove(path); err != nil {
		resp.Status = statusFromError(err)
		return
	}
	resp.Status = message.StatusNoContent
}
