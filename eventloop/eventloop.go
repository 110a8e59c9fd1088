// Package eventloop implements the single-threaded epoll readiness
// multiplexer that drives every connection's state machine, built on
// golang.org/x/sys/unix for direct epoll_create1/epoll_ctl/epoll_wait
// access.
package eventloop

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"fastkv/conn"
)

// waitTimeoutMillis bounds each EpollWait call so a shutdown request is
// observed promptly even with no socket activity.
const waitTimeoutMillis = 1000

// maxEvents bounds how many ready descriptors are drained per EpollWait
// call.
const maxEvents = 256

// connection pairs a live Conn with its state machine and the set of
// epoll events currently registered for its descriptor.
type connection struct {
	c      conn.Conn
	state  *conn.State
	events uint32
}

// Loop is the epoll-backed readiness multiplexer. It owns the table of
// live connections, keyed by descriptor.
type Loop struct {
	epfd        int
	listenFD    int
	connections map[int]*connection
	handle      conn.Handler
	onAccept    func(c conn.Conn)
	onClose     func(c conn.Conn)
	onRead      func(n int)
	onWrite     func(n int)
	onAcceptErr func(err error)
}

// New creates an epoll instance and registers listenFD for read
// readiness (new-connection arrivals).
func New(listenFD int, handle conn.Handler) (*Loop, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, fmt.Errorf("eventloop: epoll_create1: %w", err)
	}

	l := &Loop{
		epfd:        epfd,
		listenFD:    listenFD,
		connections: make(map[int]*connection),
		handle:      handle,
	}

	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, listenFD, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(listenFD),
	}); err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("eventloop: epoll_ctl add listener: %w", err)
	}

	return l, nil
}

// OnAccept sets a callback invoked after a new connection is registered.
func (l *Loop) OnAccept(fn func(c conn.Conn)) { l.onAccept = fn }

// OnClose sets a callback invoked just before a connection is torn down.
func (l *Loop) OnClose(fn func(c conn.Conn)) { l.onClose = fn }

// OnIO sets callbacks invoked with the byte count of every successful
// socket read/write across all connections, for stats collection.
func (l *Loop) OnIO(onRead, onWrite func(n int)) {
	l.onRead = onRead
	l.onWrite = onWrite
}

// OnAcceptError sets a callback invoked when accept() fails with
// anything other than ErrWouldBlock; the loop logs and keeps running
// either way.
func (l *Loop) OnAcceptError(fn func(err error)) { l.onAcceptErr = fn }

// RunOnce waits for readiness (bounded by waitTimeoutMillis) and
// services every ready descriptor once. It returns promptly on timeout
// so callers can check a shutdown signal between calls.
func (l *Loop) RunOnce(accept func() (conn.Conn, error)) error {
	events := make([]unix.EpollEvent, maxEvents)
	n, err := unix.EpollWait(l.epfd, events, waitTimeoutMillis)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil
		}
		return fmt.Errorf("eventloop: epoll_wait: %w", err)
	}

	for i := 0; i < n; i++ {
		fd := int(events[i].Fd)
		if fd == l.listenFD {
			l.acceptLoop(accept)
			continue
		}
		l.serviceConnection(fd)
	}

	return nil
}

// acceptLoop drains every connection currently queued on the listening
// socket, so one readiness notification admits all of them instead of
// one per EpollWait pass.
func (l *Loop) acceptLoop(accept func() (conn.Conn, error)) {
	for {
		c, err := accept()
		if err != nil {
			if !errors.Is(err, conn.ErrWouldBlock) && l.onAcceptErr != nil {
				l.onAcceptErr(err)
			}
			return
		}

		state := conn.NewState()
		state.SetIOHooks(l.onRead, l.onWrite)
		fd := c.FD()
		if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
			Events: unix.EPOLLIN,
			Fd:     int32(fd),
		}); err != nil {
			c.Close()
			continue
		}
		l.connections[fd] = &connection{c: c, state: state, events: unix.EPOLLIN}

		if l.onAccept != nil {
			l.onAccept(c)
		}
	}
}

func (l *Loop) serviceConnection(fd int) {
	entry, ok := l.connections[fd]
	if !ok {
		return
	}

	entry.state.Step(entry.c, l.handle)

	switch entry.state.Mode() {
	case conn.ModeEND:
		l.closeConnection(fd, entry)
	case conn.ModeRES:
		// A write blocked mid-flush: arm EPOLLOUT so the loop is woken
		// once the socket can accept more bytes, even if the peer never
		// sends another request to re-trigger EPOLLIN.
		l.setInterest(fd, entry, unix.EPOLLIN|unix.EPOLLOUT)
	default:
		l.setInterest(fd, entry, unix.EPOLLIN)
	}
}

// setInterest updates the descriptor's registered epoll events if they
// differ from what is currently armed.
func (l *Loop) setInterest(fd int, entry *connection, events uint32) {
	if entry.events == events {
		return
	}
	if err := unix.EpollCtl(l.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{
		Events: events,
		Fd:     int32(fd),
	}); err == nil {
		entry.events = events
	}
}

func (l *Loop) closeConnection(fd int, entry *connection) {
	unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, fd, &unix.EpollEvent{})
	delete(l.connections, fd)
	if l.onClose != nil {
		l.onClose(entry.c)
	}
	entry.c.Close()
}

// Shutdown tears down every live connection and the epoll descriptor
// itself.
func (l *Loop) Shutdown() {
	for fd, entry := range l.connections {
		l.closeConnection(fd, entry)
	}
	unix.Close(l.epfd)
}

// Len reports the number of currently registered connections.
func (l *Loop) Len() int { return len(l.connections) }
