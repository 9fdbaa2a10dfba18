package router

import (
	"bytes"
	"log/slog"
	"os"
	"strings"
	"time"

	"code.cloudfoundry.org/clock"
	"golang.org/x/sys/unix"

	"github.com/c3b5aw/webserv/accesslog"
	"github.com/c3b5aw/webserv/config"
	"github.com/c3b5aw/webserv/handlers"
	log "github.com/c3b5aw/webserv/logger"
	"github.com/c3b5aw/webserv/poller"
	"github.com/c3b5aw/webserv/registry"
)

const (
	// Single non-blocking receive per read wake lands here.
	readBufferSize = 8192

	// Upper bound on one poller wait so the idle sweep and control
	// signals stay responsive.
	waitTimeout = time.Second
)

// Router is the single-threaded engine: it owns the readiness mux, all
// listeners, all connections and the control stream, and drives the
// whole request/response cycle from one loop. It implements
// ifrit.Runner.
type Router struct {
	cfg          *config.Config
	logger       *slog.Logger
	registry     *registry.RouteRegistry
	pipeline     *handlers.Pipeline
	accessLogger accesslog.AccessLogger
	clk          clock.Clock

	mux        *poller.Poller
	listeners  map[int]*Listener
	conns      map[int]*connection
	scratch    []byte
	controlFD  int
	controlBuf []byte
	alive      bool
}

// NewRouter wires the engine. controlFD is the line-oriented control
// stream (usually stdin); pass a negative value to run without one.
func NewRouter(
	logger *slog.Logger,
	cfg *config.Config,
	reg *registry.RouteRegistry,
	pipeline *handlers.Pipeline,
	accessLogger accesslog.AccessLogger,
	clk clock.Clock,
	controlFD int,
) *Router {
	return &Router{
		cfg:          cfg,
		logger:       logger,
		registry:     reg,
		pipeline:     pipeline,
		accessLogger: accessLogger,
		clk:          clk,
		listeners:    make(map[int]*Listener),
		conns:        make(map[int]*connection),
		scratch:      make([]byte, readBufferSize),
		controlFD:    controlFD,
	}
}

// Ports returns the bound port per listener, keyed by configured
// server name. Only meaningful once Run has signalled ready.
func (r *Router) Ports() map[string]int {
	ports := make(map[string]int, len(r.listeners))
	for _, l := range r.listeners {
		ports[l.Server().Name()] = l.Port()
	}
	return ports
}

func (r *Router) Run(signals <-chan os.Signal, ready chan<- struct{}) error {
	mux, err := poller.New()
	if err != nil {
		return err
	}
	r.mux = mux
	defer r.shutdownRemaining()

	for _, srv := range r.registry.Servers() {
		l, err := NewListener(srv, r.logger)
		if err != nil {
			return err
		}
		r.listeners[l.FD()] = l
		if err := r.mux.Add(l.FD(), poller.Read); err != nil {
			return err
		}
		r.logger.Info("listening",
			slog.String("host", srv.Host()),
			slog.Int("port", l.Port()))
	}

	if r.controlFD >= 0 {
		unix.SetNonblock(r.controlFD, true)
		if err := r.mux.Add(r.controlFD, poller.Read); err != nil {
			return err
		}
	}

	close(ready)
	r.alive = true

	for r.alive || len(r.conns) > 0 {
		select {
		case <-signals:
			r.beginDrain()
		default:
		}

		batch, err := r.mux.Wait(waitTimeout)
		if err != nil {
			// Mux failure is the one fatal error class.
			r.logger.Error("mux-wait-failed", log.ErrAttr(err))
			return err
		}

		for _, ev := range batch {
			r.dispatch(ev)
		}
		r.sweepIdle(r.clk.Now())
	}
	return nil
}

func (r *Router) dispatch(ev poller.Event) {
	if ev.FD == r.controlFD {
		r.handleControl()
		return
	}
	if l, ok := r.listeners[ev.FD]; ok {
		if ev.HangUp || ev.Err {
			r.logger.Error("listener-hangup", slog.Int("fd", ev.FD))
			return
		}
		r.acceptOne(l)
		return
	}
	c, ok := r.conns[ev.FD]
	if !ok {
		return
	}
	switch {
	case ev.HangUp || ev.Err:
		r.closeConn(c)
	case ev.Readable:
		r.onReadReady(c)
	case ev.Writable:
		r.onWriteReady(c)
	}
}

// acceptOne accepts a single connection per wake, mirroring the
// level-triggered registration of the listener.
func (r *Router) acceptOne(l *Listener) {
	fd, peer, err := l.Accept()
	if err != nil {
		if !ignorableAcceptError(err) {
			r.logger.Error("accept-failed", log.ErrAttr(err))
		}
		return
	}

	serverIP := l.Server().Host()
	if serverIP == config.DefaultHost {
		serverIP = r.cfg.Ip
	}

	c := newConnection(fd, peer, serverIP, l.Server(), r.clk.Now())
	if err := r.mux.Add(fd, poller.Read); err != nil {
		r.logger.Error("register-connection-failed", log.ErrAttr(err))
		c.close()
		return
	}
	r.conns[fd] = c
}

func (r *Router) onReadReady(c *connection) {
	switch c.onReadReady(r.scratch, r.clk.Now()) {
	case ReadEOF, ReadError:
		r.closeConn(c)
	case ReadReady:
		c.buildResponse(r.pipeline, r.clk.Now())
		if err := r.mux.Modify(c.fd, poller.Write); err != nil {
			r.logger.Error("flip-to-write-failed", log.ErrAttr(err))
			r.closeConn(c)
		}
	}
}

func (r *Router) onWriteReady(c *connection) {
	switch c.onWriteReady(r.clk.Now()) {
	case WriteError:
		r.closeConn(c)
	case WriteDone:
		finished := r.clk.Now()
		r.accessLogger.Log(c.accessRecord(finished))
		if r.alive && c.keepAlive() {
			c.reset()
			if err := r.mux.Modify(c.fd, poller.Read); err != nil {
				r.logger.Error("flip-to-read-failed", log.ErrAttr(err))
				r.closeConn(c)
			}
			return
		}
		r.closeConn(c)
	}
}

// handleControl consumes available bytes from the control stream and
// acts on complete lines. quit and exit begin a graceful drain;
// anything else is ignored.
func (r *Router) handleControl() {
	buf := make([]byte, 256)
	n, err := unix.Read(r.controlFD, buf)
	if err == unix.EAGAIN {
		return
	}
	if err != nil || n == 0 {
		r.mux.Remove(r.controlFD)
		r.controlFD = -1
		return
	}

	r.controlBuf = append(r.controlBuf, buf[:n]...)
	for {
		nl := bytes.IndexByte(r.controlBuf, '\n')
		if nl == -1 {
			return
		}
		line := strings.TrimSpace(string(r.controlBuf[:nl]))
		r.controlBuf = r.controlBuf[nl+1:]
		if line == "quit" || line == "exit" {
			r.logger.Info("shutting-down-gracefully")
			r.beginDrain()
		}
	}
}

// beginDrain stops accepting and discards connections that are still
// reading; in-flight writes run to completion before Run returns.
func (r *Router) beginDrain() {
	if !r.alive {
		return
	}
	r.alive = false

	for fd, l := range r.listeners {
		r.mux.Remove(fd)
		l.Close()
		delete(r.listeners, fd)
	}
	for _, c := range r.conns {
		if c.state != stateWriting {
			r.closeConn(c)
		}
	}
}

// sweepIdle closes connections whose last activity exceeded the idle
// timeout, bounding memory under slow or silent clients.
func (r *Router) sweepIdle(now time.Time) {
	timeout := r.cfg.IdleTimeout()
	for _, c := range r.conns {
		if c.isExpired(now, timeout) {
			r.closeConn(c)
		}
	}
}

func (r *Router) closeConn(c *connection) {
	r.mux.Remove(c.fd)
	delete(r.conns, c.fd)
	c.close()
}

func (r *Router) shutdownRemaining() {
	for _, c := range r.conns {
		r.closeConn(c)
	}
	for fd, l := range r.listeners {
		r.mux.Remove(fd)
		l.Close()
		delete(r.listeners, fd)
	}
	r.mux.Close()
}
