package conn

import (
	"errors"

	"fastkv/codec"
	"fastkv/wire"
)

// Mode is one of the three states a connection can be in.
type Mode int

const (
	ModeREQ Mode = iota // draining input
	ModeRES             // draining output
	ModeEND             // terminal
)

// bufSize holds one frame header plus one maximal payload.
const bufSize = wire.HeaderSize + wire.MaxPayloadSize

// Handler applies a decoded request to whatever backs the connection
// and returns the response to send. Implemented by handler.Handle in
// production; tests may substitute a stub.
type Handler func(wire.Request) wire.Response

// State is the per-connection REQ/RES/END state machine: a read buffer
// accumulating bytes until a complete frame is available, and a write
// buffer draining a single pending response. Buffers are private to
// each State; nothing here is safe for concurrent use, matching the
// single-threaded event loop that owns it.
type State struct {
	mode Mode

	rbuf   [bufSize]byte
	rstart int // offset of first unconsumed byte
	rend   int // offset one past last valid byte

	wbuf  [bufSize]byte
	wlen  int // valid bytes pending in wbuf
	wsent int // bytes already written

	onRead  func(n int)
	onWrite func(n int)
}

// NewState returns a fresh connection state in ModeREQ.
func NewState() *State {
	return &State{}
}

// SetIOHooks installs callbacks invoked with the byte count of every
// successful socket read/write, for stats collection. Either may be nil.
func (s *State) SetIOHooks(onRead, onWrite func(n int)) {
	s.onRead = onRead
	s.onWrite = onWrite
}

func (s *State) Mode() Mode { return s.mode }

// Step runs one state-machine step: a REQ fill or a RES flush.
func (s *State) Step(c Conn, handle Handler) {
	switch s.mode {
	case ModeREQ:
		s.fillBuffer(c, handle)
	case ModeRES:
		s.flushBuffer(c)
	}
}

// compact moves unconsumed bytes to the start of the read buffer.
func (s *State) compact() {
	if s.rstart == 0 {
		return
	}
	n := copy(s.rbuf[:], s.rbuf[s.rstart:s.rend])
	s.rstart = 0
	s.rend = n
}

func (s *State) fillBuffer(c Conn, handle Handler) {
	s.compact()

	if s.rend < len(s.rbuf) {
		n, err := c.Read(s.rbuf[s.rend:])
		if err != nil {
			if !errors.Is(err, ErrWouldBlock) {
				s.mode = ModeEND
				return
			}
			// WouldBlock: still try to drain whatever is already buffered.
		} else {
			s.rend += n
			if s.onRead != nil {
				s.onRead(n)
			}
		}
	}

	for {
		handled := s.processOneRequest(c, handle)
		if !handled {
			return
		}
		if s.mode != ModeREQ {
			return
		}
	}
}

// processOneRequest parses and dispatches at most one framed message.
// It reports whether it made progress (a complete frame was available,
// whether or not it was valid); false means the caller needs more
// input bytes before another message can be parsed.
func (s *State) processOneRequest(c Conn, handle Handler) bool {
	available := s.rend - s.rstart
	if available < wire.HeaderSize {
		return false
	}

	bodyLen, err := wire.DecodeHeader(s.rbuf[s.rstart : s.rstart+wire.HeaderSize])
	if err != nil {
		s.mode = ModeEND
		return true
	}

	if available < wire.HeaderSize+bodyLen {
		return false
	}

	payload := s.rbuf[s.rstart+wire.HeaderSize : s.rstart+wire.HeaderSize+bodyLen]
	s.rstart += wire.HeaderSize + bodyLen

	// A recognized command tag with a malformed body (e.g. a truncated
	// key) is a decode error here rather than an Unknown request; it
	// still degrades to a well-formed Unknown response rather than
	// tearing down the connection.
	req, err := wire.DecodeRequest(payload)
	if err != nil {
		req = wire.Request{Command: codec.CmdUnknown, Raw: payload}
	}

	resp := handle(req)
	s.writeResponse(resp)

	s.mode = ModeRES
	s.flushBuffer(c)
	return true
}

func (s *State) writeResponse(resp wire.Response) {
	n, err := wire.EncodeResponse(s.wbuf[wire.HeaderSize:], resp)
	if err != nil {
		// Response itself could not be encoded into a full frame; the
		// handler layer is responsible for pre-shrinking oversized
		// payloads (see handler.handleList), so this should not happen
		// in practice. Fall back to an empty Unknown frame rather than
		// corrupting the stream.
		n = 0
	}
	wire.EncodeHeader(s.wbuf[:wire.HeaderSize], n)
	s.wlen = wire.HeaderSize + n
	s.wsent = 0
}

func (s *State) flushBuffer(c Conn) {
	for s.wsent < s.wlen {
		n, err := c.Write(s.wbuf[s.wsent:s.wlen])
		s.wsent += n
		if n > 0 && s.onWrite != nil {
			s.onWrite(n)
		}
		if err != nil {
			if errors.Is(err, ErrWouldBlock) {
				return // stay in ModeRES, retry on next readiness
			}
			s.mode = ModeEND
			return
		}
	}
	s.wlen = 0
	s.wsent = 0
	s.mode = ModeREQ
}
