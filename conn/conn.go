// Package conn provides the connection abstraction and REQ/RES/END
// state machine that the event loop drives one step at a time. Conn is
// the idiomatic rendering of the source's type-erased connection: one
// interface, a real-socket implementation and an in-process pipe used
// only by tests.
package conn

import (
	"errors"
	"io"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// ErrWouldBlock is returned by Read/Write when the underlying
// descriptor has no data ready (read) or cannot accept more bytes right
// now (write) — the non-blocking-I/O equivalent of EAGAIN/EWOULDBLOCK.
var ErrWouldBlock = errors.New("conn: operation would block")

// Conn is a non-blocking, single-reader/single-writer byte stream. The
// event loop owns exactly one goroutine driving all Conns, so no
// implementation needs to be safe for concurrent use.
type Conn interface {
	// Read attempts a non-blocking read into buf. It returns
	// ErrWouldBlock if no data is currently available.
	Read(buf []byte) (int, error)
	// Write attempts a non-blocking write of buf. It returns
	// ErrWouldBlock (with n possibly > 0, a short write) if the
	// descriptor cannot currently accept more bytes.
	Write(buf []byte) (int, error)
	Close() error
	// FD returns the raw file descriptor for epoll registration, or -1
	// for connections (like Pipe) with no descriptor to register.
	FD() int
	// ID returns a per-connection identifier used only for logging and
	// stats correlation; it never appears on the wire.
	ID() string
}

// Socket wraps a raw, non-blocking client socket descriptor accepted
// via Accept4(SOCK_NONBLOCK). It talks to the kernel directly with
// unix.Read/unix.Write rather than through net.Conn: mixing a manually
// driven epoll loop with Go's own runtime network poller (which also
// wants to own readiness on net.Conn descriptors) would fight over the
// same fd, so the listener and every accepted connection here bypass
// the net package entirely.
type Socket struct {
	fd int
	id string
}

// NewSocket wraps an already-non-blocking client fd, such as one
// returned by Accept4(SOCK_NONBLOCK).
func NewSocket(fd int) *Socket {
	return &Socket{fd: fd, id: uuid.NewString()}
}

func (s *Socket) Read(buf []byte) (int, error) {
	n, err := unix.Read(s.fd, buf)
	if err == unix.EAGAIN {
		return 0, ErrWouldBlock
	}
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (s *Socket) Write(buf []byte) (int, error) {
	n, err := unix.Write(s.fd, buf)
	if err == unix.EAGAIN {
		return 0, ErrWouldBlock
	}
	return n, err
}

func (s *Socket) Close() error { return unix.Close(s.fd) }
func (s *Socket) FD() int      { return s.fd }
func (s *Socket) ID() string   { return s.id }
