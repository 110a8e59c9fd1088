// Command fastkv-cli is an interactive REPL client for fastkv-server.
package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"fastkv/codec"
	"fastkv/wire"
)

func main() {
	root := &cobra.Command{
		Use:   "fastkv-cli host:port",
		Short: "Interactive client for fastkv-server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return repl(args[0])
		},
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func repl(addr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	rl, err := readline.New(fmt.Sprintf("fastkv %s> ", addr))
	if err != nil {
		return err
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == io.EOF || err == readline.ErrInterrupt {
				return nil
			}
			return err
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		req, ok := parseCommand(fields)
		if !ok {
			fmt.Println("usage: get <key> | set <key> <value> | del <key> | lst | exit")
			continue
		}
		if fields[0] == "exit" {
			return nil
		}

		resp, err := roundTrip(conn, req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return err
		}
		printResponse(resp)
	}
}

func parseCommand(fields []string) (wire.Request, bool) {
	switch fields[0] {
	case "get":
		if len(fields) != 2 {
			return wire.Request{}, false
		}
		return wire.Request{Command: codec.CmdGet, Key: []byte(fields[1])}, true
	case "set":
		if len(fields) < 3 {
			return wire.Request{}, false
		}
		value := strings.Join(fields[2:], " ")
		return wire.Request{Command: codec.CmdSet, Key: []byte(fields[1]), Value: []byte(value)}, true
	case "del":
		if len(fields) != 2 {
			return wire.Request{}, false
		}
		return wire.Request{Command: codec.CmdDelete, Key: []byte(fields[1])}, true
	case "lst":
		return wire.Request{Command: codec.CmdList}, true
	case "exit":
		return wire.Request{}, true
	default:
		return wire.Request{}, false
	}
}

func roundTrip(conn net.Conn, req wire.Request) (wire.Response, error) {
	body := make([]byte, wire.MaxPayloadSize)
	n, err := wire.EncodeRequest(body, req)
	if err != nil {
		return wire.Response{}, err
	}

	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(n))
	if _, err := conn.Write(append(hdr[:], body[:n]...)); err != nil {
		return wire.Response{}, err
	}

	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		return wire.Response{}, err
	}
	respLen := binary.LittleEndian.Uint32(hdr[:])
	respBody := make([]byte, respLen)
	if _, err := io.ReadFull(conn, respBody); err != nil {
		return wire.Response{}, err
	}

	return wire.DecodeResponse(respBody)
}

func printResponse(resp wire.Response) {
	switch resp.Command {
	case codec.CmdGet:
		if resp.HasValue {
			fmt.Printf("%q\n", resp.Value)
		} else {
			fmt.Println("(nil)")
		}
	case codec.CmdSet:
		fmt.Println("OK")
	case codec.CmdDelete:
		fmt.Println("OK")
	case codec.CmdList:
		for _, kv := range resp.Pairs {
			fmt.Printf("%q -> %q\n", kv.Key, kv.Value)
		}
	case codec.CmdUnknown:
		fmt.Printf("ERROR %q\n", resp.Raw)
	}
}
