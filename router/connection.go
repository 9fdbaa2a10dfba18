package router

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/c3b5aw/webserv/accesslog/schema"
	"github.com/c3b5aw/webserv/handlers"
	"github.com/c3b5aw/webserv/message"
	"github.com/c3b5aw/webserv/route"
)

type connState int

const (
	stateReading connState = iota
	stateWriting
	stateClosing
)

// ReadOutcome is the connection's verdict after one read wake.
type ReadOutcome int

const (
	ReadWait ReadOutcome = iota
	ReadReady
	ReadEOF
	ReadError
)

// WriteOutcome is the connection's verdict after one write wake.
type WriteOutcome int

const (
	WriteMore WriteOutcome = iota
	WriteDone
	WriteError
)

// connection is the per-client state machine. It owns the client
// descriptor exclusively; the engine holds the only reference and
// clears it after close.
type connection struct {
	fd       int
	clientIP string
	serverIP string
	srv      *route.Server

	parser *message.RequestParser
	resp   *message.Response

	state        connState
	startedAt    time.Time
	lastActivity time.Time
	built        bool
}

func newConnection(fd int, clientIP, serverIP string, srv *route.Server, now time.Time) *connection {
	return &connection{
		fd:           fd,
		clientIP:     clientIP,
		serverIP:     serverIP,
		srv:          srv,
		state:        stateReading,
		lastActivity: now,
	}
}

// onReadReady issues a single non-blocking receive and feeds the bytes
// to the parser. ReadReady covers both a complete request and a parse
// failure: either way the next step is building a response.
func (c *connection) onReadReady(scratch []byte, now time.Time) ReadOutcome {
	n, err := unix.Read(c.fd, scratch)
	if err == unix.EAGAIN {
		return ReadWait
	}
	if err != nil {
		return ReadError
	}
	if n == 0 {
		return ReadEOF
	}

	c.lastActivity = now
	if c.parser == nil {
		c.parser = message.NewRequestParser(now)
		c.startedAt = now
	}

	switch c.parser.Append(scratch[:n]) {
	case message.OutcomeComplete, message.OutcomeFailed:
		return ReadReady
	default:
		return ReadWait
	}
}

// buildResponse runs the handler pipeline exactly once per request.
// The Reading to Writing edge is one-shot; a second call is a
// programming error.
func (c *connection) buildResponse(pipeline *handlers.Pipeline, now time.Time) {
	if c.built {
		panic("connection: response already built for in-flight request")
	}
	c.built = true

	req := c.parser.Request()
	c.resp = pipeline.Handle(req, c.srv)
	c.resp.Finalize(now, req.Close)
	c.state = stateWriting
}

// onWriteReady sends as much of the remaining payload as the socket
// accepts.
func (c *connection) onWriteReady(now time.Time) WriteOutcome {
	n, err := unix.Write(c.fd, c.resp.Remaining())
	if err == unix.EAGAIN {
		return WriteMore
	}
	if err != nil {
		return WriteError
	}

	c.lastActivity = now
	c.resp.Advance(n)
	if !c.resp.Done() {
		return WriteMore
	}
	return WriteDone
}

func (c *connection) keepAlive() bool {
	return !c.parser.Request().Close
}

// reset prepares the connection for the next request on the same
// socket.
func (c *connection) reset() {
	c.parser = nil
	c.resp = nil
	c.built = false
	c.state = stateReading
}

func (c *connection) isExpired(now time.Time, timeout time.Duration) bool {
	return now.Sub(c.lastActivity) > timeout
}

func (c *connection) accessRecord(finished time.Time) schema.AccessLogRecord {
	req := c.parser.Request()
	return schema.AccessLogRecord{
		StartedAt:  c.startedAt,
		FinishedAt: finished,
		Method:     req.Method,
		Target:     req.URI,
		StatusCode: c.resp.Status,
		ClientIP:   c.clientIP,
		ServerIP:   c.serverIP,
	}
}

func (c *connection) close() {
	c.state = stateClosing
	unix.Close(c.fd)
}
