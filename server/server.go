// Package server ties configuration, logging, stats, the store, and
// the event loop together into the running fastkv process.
package server

import (
	"fmt"
	"net"

	"sync"

	"golang.org/x/sys/unix"

	"fastkv/codec"
	"fastkv/config"
	"fastkv/conn"
	"fastkv/eventloop"
	"fastkv/handler"
	"fastkv/pkg/logger"
	"fastkv/stats"
	"fastkv/store"
	"fastkv/wire"
)

// Server wires together everything the event loop needs to run.
type Server struct {
	cfg   *config.Config
	store *store.Map
	stats *stats.Stats

	listenFD int
	loop     *eventloop.Loop

	shutdown chan struct{}
	done     chan struct{}
	once     sync.Once
}

// New creates a Server over a fresh, empty store.
func New(cfg *config.Config, st *stats.Stats) *Server {
	return &Server{
		cfg:      cfg,
		store:    store.New(),
		stats:    st,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Listen builds the listening socket directly with raw syscalls rather
// than net.Listen: a manually driven epoll loop and Go's own runtime
// network poller both want to own readiness on a socket's descriptor,
// so fastkv keeps every server-owned fd outside net's reach entirely,
// accepting with Accept4/SOCK_NONBLOCK and binding with SO_REUSEPORT.
func (s *Server) Listen() error {
	addr, err := net.ResolveIPAddr("ip4", s.cfg.Host)
	if err != nil {
		return fmt.Errorf("server: resolve host %q: %w", s.cfg.Host, err)
	}
	var ip [4]byte
	copy(ip[:], addr.IP.To4())

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return fmt.Errorf("server: socket: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return fmt.Errorf("server: setsockopt SO_REUSEADDR: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
		unix.Close(fd)
		return fmt.Errorf("server: setsockopt SO_REUSEPORT: %w", err)
	}

	sa := &unix.SockaddrInet4{Port: s.cfg.Port, Addr: ip}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return fmt.Errorf("server: bind %s:%d: %w", s.cfg.Host, s.cfg.Port, err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return fmt.Errorf("server: listen: %w", err)
	}

	s.listenFD = fd
	return s.setupLoop()
}

func (s *Server) setupLoop() error {
	loop, err := eventloop.New(s.listenFD, func(req wire.Request) wire.Response {
		resp := handler.Handle(s.store, req)
		s.recordStats(resp)
		return resp
	})
	if err != nil {
		return fmt.Errorf("server: event loop init: %w", err)
	}

	loop.OnAccept(func(c conn.Conn) {
		if s.stats != nil {
			s.stats.ConnectionOpened()
		}
	})
	loop.OnClose(func(c conn.Conn) {
		if s.stats != nil {
			s.stats.ConnectionClosed()
		}
	})
	if s.stats != nil {
		loop.OnIO(s.stats.RecordRead, s.stats.RecordWrite)
	}
	loop.OnAcceptError(func(err error) {
		logger.Log().Errorf("accept: %v", err)
	})

	s.loop = loop
	return nil
}

// recordStats updates op counters from the response actually produced,
// so a List that overflowed into an Unknown response is counted as
// unknown, not as a successful list.
func (s *Server) recordStats(resp wire.Response) {
	if s.stats == nil {
		return
	}
	switch resp.Command {
	case codec.CmdGet:
		s.stats.RecordGet(resp.HasValue)
	case codec.CmdSet:
		s.stats.RecordSet()
	case codec.CmdDelete:
		s.stats.RecordDelete()
	case codec.CmdList:
		s.stats.RecordList()
	default:
		s.stats.RecordUnknown()
	}
}

// Serve drives the event loop until Shutdown is called.
func (s *Server) Serve() error {
	defer close(s.done)

	for {
		select {
		case <-s.shutdown:
			s.loop.Shutdown()
			unix.Close(s.listenFD)
			return nil
		default:
		}

		if err := s.loop.RunOnce(s.acceptOne); err != nil {
			return err
		}
	}
}

// acceptOne performs one Accept4(SOCK_NONBLOCK); the event loop calls it
// in a tight loop until it reports ErrWouldBlock, draining every
// connection queued since the last readiness notification.
func (s *Server) acceptOne() (conn.Conn, error) {
	nfd, _, err := unix.Accept4(s.listenFD, unix.SOCK_NONBLOCK)
	if err != nil {
		if err == unix.EAGAIN {
			return nil, conn.ErrWouldBlock
		}
		return nil, err
	}
	return conn.NewSocket(nfd), nil
}

// Shutdown requests a graceful stop and waits for Serve to return.
func (s *Server) Shutdown() {
	s.once.Do(func() { close(s.shutdown) })
	<-s.done
}

// Stats returns the server's stats collector.
func (s *Server) Stats() *stats.Stats { return s.stats }

// Store returns the server's Map, primarily for tests.
func (s *Server) Store() *store.Map { return s.store }
