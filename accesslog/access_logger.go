package accesslog

import (
	"io"
	"log/slog"
	"os"

	"github.com/c3b5aw/webserv/accesslog/schema"
	"github.com/c3b5aw/webserv/config"
	log "github.com/c3b5aw/webserv/logger"
)

//go:generate counterfeiter -o fakes/fake_access_logger.go . AccessLogger
type AccessLogger interface {
	Run()
	Stop()
	Log(record schema.AccessLogRecord)
}

type NullAccessLogger struct {
}

func (x *NullAccessLogger) Run()                       {}
func (x *NullAccessLogger) Stop()                      {}
func (x *NullAccessLogger) Log(schema.AccessLogRecord) {}

// FileAccessLogger drains records from a buffered channel onto its
// writers, one line per record.
type FileAccessLogger struct {
	channel chan schema.AccessLogRecord
	stopCh  chan struct{}
	writers []CustomWriter
	logger  *slog.Logger
}

type CustomWriter interface {
	Name() string
	io.Writer
}

// FileWriter sends log lines to an os.File, separating records with a
// newline.
type FileWriter struct {
	name string
	*os.File
}

func (w *FileWriter) Name() string {
	return w.name
}

func (w *FileWriter) Write(b []byte) (int, error) {
	n, err := w.File.Write(b)
	if err != nil {
		return n, err
	}

	// Do not count the extra byte, we can not return more than len(b).
	_, err = w.File.Write([]byte{'\n'})
	return n, err
}

func CreateRunningAccessLogger(logger *slog.Logger, c *config.Config) (AccessLogger, error) {
	if c.AccessLog.File == "" {
		return &NullAccessLogger{}, nil
	}

	accessLogger := &FileAccessLogger{
		channel: make(chan schema.AccessLogRecord, 1024),
		stopCh:  make(chan struct{}),
		logger:  logger,
	}

	file, err := os.OpenFile(c.AccessLog.File, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		logger.Error("error-creating-accesslog-file", slog.String("filename", c.AccessLog.File), log.ErrAttr(err))
		return nil, err
	}
	accessLogger.addWriter(&FileWriter{name: "accesslog", File: file})

	go accessLogger.Run()
	return accessLogger, nil
}

func (x *FileAccessLogger) Run() {
	for {
		select {
		case record := <-x.channel:
			for _, w := range x.writers {
				_, err := record.WriteTo(w)
				if err != nil {
					x.logger.Error("error-emitting-access-log-to-writer", slog.String("writer", w.Name()), log.ErrAttr(err))
				}
			}
		case <-x.stopCh:
			return
		}
	}
}

func (x *FileAccessLogger) Stop() {
	close(x.stopCh)
}

func (x *FileAccessLogger) Log(r schema.AccessLogRecord) {
	select {
	case x.channel <- r:
	default:
		x.logger.Warn("access-log-channel-full")
	}
}

func (x *FileAccessLogger) addWriter(writer CustomWriter) {
	x.writers = append(x.writers, writer)
}
