package server

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"fastkv/codec"
	"fastkv/config"
	"fastkv/stats"
	"fastkv/wire"
)

func startTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	cfg := config.Default()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0 // ask the OS for a free port; overwritten below

	// net.ListenConfig with port 0 picks a free port; find it by doing a
	// throwaway listen first so the fixed Listen() call below can target it.
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("probe listen: %v", err)
	}
	addr := probe.Addr().(*net.TCPAddr)
	cfg.Port = addr.Port
	probe.Close()

	s := New(cfg, stats.New(nil))
	if err := s.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	go s.Serve()
	return s, addr.String()
}

func TestServerGetSetRoundTrip(t *testing.T) {
	s, addr := startTestServer(t)
	defer s.Shutdown()

	var dialErr error
	var c net.Conn
	for i := 0; i < 20; i++ {
		c, dialErr = net.Dial("tcp", addr)
		if dialErr == nil {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if dialErr != nil {
		t.Fatalf("dial: %v", dialErr)
	}
	defer c.Close()

	sendRequest(t, c, wire.Request{Command: codec.CmdSet, Key: []byte("a"), Value: []byte("1")})
	setResp := readResponse(t, c)
	if setResp.Command != codec.CmdSet || string(setResp.Value) != "1" {
		t.Fatalf("SET response = %+v", setResp)
	}

	sendRequest(t, c, wire.Request{Command: codec.CmdGet, Key: []byte("a")})
	getResp := readResponse(t, c)
	if !getResp.HasValue || string(getResp.Value) != "1" {
		t.Fatalf("GET response = %+v", getResp)
	}
}

func sendRequest(t *testing.T, c net.Conn, req wire.Request) {
	t.Helper()
	body := make([]byte, wire.MaxPayloadSize)
	n, err := wire.EncodeRequest(body, req)
	if err != nil {
		t.Fatal(err)
	}
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(n))
	if _, err := c.Write(append(hdr[:], body[:n]...)); err != nil {
		t.Fatal(err)
	}
}

func readResponse(t *testing.T, c net.Conn) wire.Response {
	t.Helper()
	c.SetReadDeadline(time.Now().Add(5 * time.Second))

	var hdr [4]byte
	if _, err := readFull(c, hdr[:]); err != nil {
		t.Fatal(err)
	}
	l := binary.LittleEndian.Uint32(hdr[:])
	body := make([]byte, l)
	if _, err := readFull(c, body); err != nil {
		t.Fatal(err)
	}
	resp, err := wire.DecodeResponse(body)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func readFull(c net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := c.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
