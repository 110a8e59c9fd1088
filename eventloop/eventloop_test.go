package eventloop

import (
	"testing"

	"golang.org/x/sys/unix"

	"fastkv/codec"
	"fastkv/conn"
	"fastkv/wire"
)

// stubConn gives a test full control over Read/Write outcomes while
// still owning a real descriptor, so it can be registered with epoll.
type stubConn struct {
	fd       int
	readBuf  []byte
	writeErr error
	writes   int
}

func (s *stubConn) Read(buf []byte) (int, error) {
	if len(s.readBuf) == 0 {
		return 0, conn.ErrWouldBlock
	}
	n := copy(buf, s.readBuf)
	s.readBuf = s.readBuf[n:]
	return n, nil
}

func (s *stubConn) Write(buf []byte) (int, error) {
	s.writes++
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	return len(buf), nil
}

func (s *stubConn) Close() error { return unix.Close(s.fd) }
func (s *stubConn) FD() int      { return s.fd }
func (s *stubConn) ID() string   { return "stub" }

func socketpairFD(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	return fds[0], fds[1]
}

func frame(t *testing.T, req wire.Request) []byte {
	t.Helper()
	body := make([]byte, wire.MaxPayloadSize)
	n, err := wire.EncodeRequest(body, req)
	if err != nil {
		t.Fatalf("encode request: %v", err)
	}
	out := make([]byte, wire.HeaderSize+n)
	if _, err := wire.EncodeHeader(out, n); err != nil {
		t.Fatalf("encode header: %v", err)
	}
	copy(out[wire.HeaderSize:], body[:n])
	return out
}

func echoHandle(req wire.Request) wire.Response {
	return wire.Response{Command: req.Command, Key: req.Key}
}

// TestServiceConnectionArmsAndDisarmsWriteInterest exercises the
// backpressure path directly: a blocked flush must arm EPOLLOUT so a
// request/response client that never sends another byte until it gets
// a reply still gets woken once the socket is writable again, and the
// connection must fall back to read-only interest once the response
// has fully drained.
func TestServiceConnectionArmsAndDisarmsWriteInterest(t *testing.T) {
	listenFD, listenPeer := socketpairFD(t)
	defer unix.Close(listenPeer)

	loop, err := New(listenFD, echoHandle)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer unix.Close(loop.epfd)

	connFD, connPeer := socketpairFD(t)
	defer unix.Close(connPeer)

	sc := &stubConn{
		fd:       connFD,
		readBuf:  frame(t, wire.Request{Command: codec.CmdGet, Key: []byte("k")}),
		writeErr: conn.ErrWouldBlock,
	}
	if err := unix.EpollCtl(loop.epfd, unix.EPOLL_CTL_ADD, connFD, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(connFD),
	}); err != nil {
		t.Fatalf("epoll_ctl add: %v", err)
	}
	st := conn.NewState()
	loop.connections[connFD] = &connection{c: sc, state: st, events: unix.EPOLLIN}

	loop.serviceConnection(connFD)

	if st.Mode() != conn.ModeRES {
		t.Fatalf("mode = %v, want ModeRES after a blocked flush", st.Mode())
	}
	if sc.writes == 0 {
		t.Fatal("expected a write attempt before blocking")
	}
	if loop.connections[connFD].events&unix.EPOLLOUT == 0 {
		t.Fatal("expected EPOLLOUT armed after a blocked flush")
	}

	sc.writeErr = nil
	loop.serviceConnection(connFD)

	if st.Mode() != conn.ModeREQ {
		t.Fatalf("mode = %v, want ModeREQ once the blocked write drains", st.Mode())
	}
	if loop.connections[connFD].events&unix.EPOLLOUT != 0 {
		t.Fatal("expected EPOLLOUT disarmed once the flush completed")
	}
}
