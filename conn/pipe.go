package conn

import (
	"io"
	"sync"

	"github.com/google/uuid"
)

// Pipe is an in-process, non-blocking Conn used only by tests: it has
// no real descriptor to register with epoll (FD returns -1), but
// behaves like Socket from the State machine's point of view — Read
// returns ErrWouldBlock on an empty inbox instead of blocking, the way
// pascaldekloe-websocket's pipeConn test helper gives tests a
// synchronous two-ended connection without a real socket.
type Pipe struct {
	mu      sync.Mutex
	inbox   []byte
	closed  bool
	blocked bool
	id      string

	peer *Pipe
}

// NewPipe returns two ends of a connected in-process pipe: writes to
// one end's peer-facing side land in the other end's inbox.
func NewPipe() (*Pipe, *Pipe) {
	a := &Pipe{id: uuid.NewString()}
	b := &Pipe{id: uuid.NewString()}
	a.peer = b
	b.peer = a
	return a, b
}

// Read drains this end's inbox. Once the inbox is empty it reports
// io.EOF if either end has been closed, like a socket whose peer hung up.
func (p *Pipe) Read(buf []byte) (int, error) {
	p.peer.mu.Lock()
	peerClosed := p.peer.closed
	p.peer.mu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.inbox) == 0 {
		if p.closed || peerClosed {
			return 0, io.EOF
		}
		return 0, ErrWouldBlock
	}
	n := copy(buf, p.inbox)
	p.inbox = p.inbox[n:]
	return n, nil
}

// Write delivers buf into the peer's inbox, or reports ErrWouldBlock
// without delivering anything if the caller has set blocking via
// SetWriteBlocked — tests use this to simulate a socket send buffer
// that is temporarily full.
func (p *Pipe) Write(buf []byte) (int, error) {
	p.mu.Lock()
	blocked := p.blocked
	p.mu.Unlock()
	if blocked {
		return 0, ErrWouldBlock
	}

	p.peer.mu.Lock()
	defer p.peer.mu.Unlock()

	if p.peer.closed {
		return 0, io.ErrClosedPipe
	}
	p.peer.inbox = append(p.peer.inbox, buf...)
	return len(buf), nil
}

// SetWriteBlocked controls whether this end's Write reports
// ErrWouldBlock instead of delivering to the peer.
func (p *Pipe) SetWriteBlocked(b bool) {
	p.mu.Lock()
	p.blocked = b
	p.mu.Unlock()
}

func (p *Pipe) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *Pipe) FD() int    { return -1 }
func (p *Pipe) ID() string { return p.id }
