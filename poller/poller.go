package poller

import (
	"time"

	"golang.org/x/sys/unix"
)

// Interest selects which readiness a descriptor is parked for. A
// descriptor waits for reads or for writes, never both at once.
type Interest int

const (
	Read Interest = iota
	Write
)

// Event is one ready descriptor out of a Wait batch.
type Event struct {
	FD       int
	Readable bool
	Writable bool
	HangUp   bool
	Err      bool
}

// Poller wraps a level-triggered epoll instance.
type Poller struct {
	epfd   int
	events []unix.EpollEvent
}

const defaultBatchSize = 128

func New() (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &Poller{
		epfd:   epfd,
		events: make([]unix.EpollEvent, defaultBatchSize),
	}, nil
}

func interestMask(interest Interest) uint32 {
	if interest == Write {
		return unix.EPOLLOUT
	}
	return unix.EPOLLIN
}

// Add registers a descriptor with the given interest.
func (p *Poller) Add(fd int, interest Interest) error {
	ev := unix.EpollEvent{Events: interestMask(interest), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// Modify atomically swaps the descriptor's interest before the next
// Wait.
func (p *Poller) Modify(fd int, interest Interest) error {
	ev := unix.EpollEvent{Events: interestMask(interest), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

// Remove unregisters a descriptor.
func (p *Poller) Remove(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Wait blocks until at least one descriptor is ready or the timeout
// elapses, and returns the ready batch. An interrupted wait returns an
// empty batch.
func (p *Poller) Wait(timeout time.Duration) ([]Event, error) {
	msec := int(timeout / time.Millisecond)
	n, err := unix.EpollWait(p.epfd, p.events, msec)
	if err == unix.EINTR {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	batch := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		ev := p.events[i]
		batch = append(batch, Event{
			FD:       int(ev.Fd),
			Readable: ev.Events&unix.EPOLLIN != 0,
			Writable: ev.Events&unix.EPOLLOUT != 0,
			HangUp:   ev.Events&unix.EPOLLHUP != 0,
			Err:      ev.Events&unix.EPOLLERR != 0,
		})
	}
	return batch, nil
}

func (p *Poller) Close() error {
	return unix.Close(p.epfd)
}
