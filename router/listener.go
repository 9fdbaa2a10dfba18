package router

import (
	"fmt"
	"log/slog"
	"net"

	"golang.org/x/sys/unix"

	"github.com/c3b5aw/webserv/route"
)

const listenBacklog = 128

// Listener owns the non-blocking server socket of one configured
// (host, port) endpoint.
type Listener struct {
	fd     int
	srv    *route.Server
	port   int
	logger *slog.Logger
}

func NewListener(srv *route.Server, logger *slog.Logger) (*Listener, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, err
	}

	sa := &unix.SockaddrInet4{Port: srv.Port()}
	ip := net.ParseIP(srv.Host())
	if ip == nil {
		unix.Close(fd)
		return nil, fmt.Errorf("listener: invalid host %q", srv.Host())
	}
	ip4 := ip.To4()
	if ip4 == nil {
		unix.Close(fd)
		return nil, fmt.Errorf("listener: host %q is not an IPv4 address", srv.Host())
	}
	copy(sa.Addr[:], ip4)

	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("listener: bind %s:%d: %w", srv.Host(), srv.Port(), err)
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		unix.Close(fd)
		return nil, err
	}

	// The bound port may differ from the configured one when binding
	// port 0.
	port := srv.Port()
	if bound, err := unix.Getsockname(fd); err == nil {
		if inet, ok := bound.(*unix.SockaddrInet4); ok {
			port = inet.Port
		}
	}

	return &Listener{fd: fd, srv: srv, port: port, logger: logger}, nil
}

func (l *Listener) FD() int               { return l.fd }
func (l *Listener) Port() int             { return l.port }
func (l *Listener) Server() *route.Server { return l.srv }

// Accept takes exactly one pending connection and returns its
// non-blocking descriptor and peer IP.
func (l *Listener) Accept() (int, string, error) {
	fd, sa, err := unix.Accept4(l.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return -1, "", err
	}

	var peer string
	if inet, ok := sa.(*unix.SockaddrInet4); ok {
		peer = net.IP(inet.Addr[:]).String()
	}
	return fd, peer, nil
}

// ignorableAcceptError reports accept failures that are expected under
// a readiness loop and carry no signal.
func ignorableAcceptError(err error) bool {
	return err == unix.EAGAIN || err == unix.ECONNABORTED
}

func (l *Listener) Close() {
	unix.Close(l.fd)
}
