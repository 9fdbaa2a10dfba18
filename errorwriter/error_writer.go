package errorwriter

import (
	"bytes"
	"html/template"
	"log/slog"
	"os"

	log "github.com/c3b5aw/webserv/logger"
	"github.com/c3b5aw/webserv/message"
	"github.com/c3b5aw/webserv/route"
)

//go:generate counterfeiter -o fakes/fake_error_writer.go . ErrorWriter
type ErrorWriter interface {
	WriteError(resp *message.Response, block route.Block, logger *slog.Logger)
}

// builtinPage is the minimal body emitted when the block configures no
// error page for the status, or the configured file cannot be read.
var builtinPage = template.Must(template.New("error-page").Parse(
	"<html><body><h1>{{.Code}} {{.Reason}}</h1></body></html>"))

type pageErrorWriter struct{}

func NewErrorWriter() ErrorWriter {
	return &pageErrorWriter{}
}

// WriteError fills the response body for a status >= 400, preferring
// the block's configured error page.
func (ew *pageErrorWriter) WriteError(resp *message.Response, block route.Block, logger *slog.Logger) {
	if block != nil {
		if path := block.ErrorPage(resp.Status); path != "" {
			body, err := os.ReadFile(path)
			if err == nil {
				resp.Body = body
				return
			}
			logger.Error("error-page-read-failed",
				slog.String("path", path),
				slog.Int("status", int(resp.Status)),
				log.ErrAttr(err))
		}
	}

	var rendered bytes.Buffer
	data := struct {
		Code   int
		Reason string
	}{Code: int(resp.Status), Reason: resp.Status.Reason()}
	if err := builtinPage.Execute(&rendered, data); err != nil {
		logger.Error("render-error-failed", log.ErrAttr(err))
		resp.Body = []byte(resp.Status.String())
		return
	}
	resp.Body = rendered.Bytes()
}
