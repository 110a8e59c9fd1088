// Package wire frames requests and responses on the connection's byte
// stream and encodes/decodes the four commands plus the Unknown
// passthrough.
package wire

import (
	"errors"
	"fmt"

	"fastkv/codec"
)

// MaxPayloadSize is the largest payload a frame may declare. Frames
// claiming a larger length are a protocol error that closes the
// connection; the limit is fixed, not negotiable per-connection.
const MaxPayloadSize = 4096

// HeaderSize is the length of the frame length-prefix.
const HeaderSize = 4

// ErrMessageTooLong is returned by DecodeHeader when the declared
// length exceeds MaxPayloadSize.
var ErrMessageTooLong = errors.New("wire: message exceeds maximum payload size")

// EncodeHeader writes the 4-byte little-endian length prefix.
func EncodeHeader(buf []byte, payloadLen int) (int, error) {
	return codec.EncodeU32(buf, uint32(payloadLen))
}

// DecodeHeader reads the 4-byte length prefix and validates it against
// MaxPayloadSize.
func DecodeHeader(buf []byte) (int, error) {
	l, _, err := codec.DecodeU32(buf)
	if err != nil {
		return 0, err
	}
	if l > MaxPayloadSize {
		return 0, fmt.Errorf("%w: %d", ErrMessageTooLong, l)
	}
	return int(l), nil
}

// Request is a sum type over the four supported commands plus Unknown.
// Exactly the fields matching Command are meaningful.
type Request struct {
	Command codec.CommandTag
	Key     []byte // Get, Set, Delete
	Value   []byte // Set
	Raw     []byte // Unknown: the entire payload, including the bad tag byte
}

// DecodeRequest parses a request payload (the bytes after the frame
// header). An unrecognized command byte yields an Unknown request
// whose Raw content is the whole payload.
func DecodeRequest(payload []byte) (Request, error) {
	tag, n, err := codec.DecodeCommandTag(payload)
	if err != nil {
		return Request{Command: codec.CmdUnknown, Raw: payload}, nil
	}

	switch tag {
	case codec.CmdGet, codec.CmdDelete:
		key, _, err := codec.DecodeString(payload[n:])
		if err != nil {
			return Request{}, err
		}
		return Request{Command: tag, Key: key}, nil

	case codec.CmdSet:
		key, m, err := codec.DecodeString(payload[n:])
		if err != nil {
			return Request{}, err
		}
		value, _, err := codec.DecodeString(payload[n+m:])
		if err != nil {
			return Request{}, err
		}
		return Request{Command: tag, Key: key, Value: value}, nil

	case codec.CmdList:
		return Request{Command: tag}, nil

	default:
		return Request{Command: codec.CmdUnknown, Raw: payload}, nil
	}
}

// EncodeRequest writes a request's wire payload (command tag + body)
// into buf, returning the number of bytes written. Unknown requests
// have no separate tag byte: Raw already holds the full payload,
// including whatever byte the decoder failed to recognize.
func EncodeRequest(buf []byte, r Request) (int, error) {
	if r.Command == codec.CmdUnknown {
		if len(buf) < len(r.Raw) {
			return 0, codec.ErrBufferTooSmall
		}
		copy(buf, r.Raw)
		return len(r.Raw), nil
	}

	n, err := codec.EncodeCommandTag(buf, r.Command)
	if err != nil {
		return 0, err
	}

	switch r.Command {
	case codec.CmdGet, codec.CmdDelete:
		m, err := codec.EncodeString(buf[n:], r.Key)
		if err != nil {
			return 0, err
		}
		return n + m, nil

	case codec.CmdSet:
		m, err := codec.EncodeString(buf[n:], r.Key)
		if err != nil {
			return 0, err
		}
		n += m
		m, err = codec.EncodeString(buf[n:], r.Value)
		if err != nil {
			return 0, err
		}
		return n + m, nil

	case codec.CmdList:
		return n, nil

	default:
		return n, nil
	}
}

// Response is a sum type mirroring Request, one variant per command.
type Response struct {
	Command  codec.CommandTag
	Key      []byte // Get, Set, Delete
	Value    []byte // Set always; Get when present
	HasValue bool   // Get only: distinguishes "found" from "absent"
	Pairs    []KV   // List
	Raw      []byte // Unknown
}

// KV is one (key, value) pair in a List response.
type KV struct {
	Key   []byte
	Value []byte
}

// EncodeResponse writes a response's wire payload (command tag + body)
// into buf. An Unknown response is a verbatim echo of Raw: it carries
// no separate tag byte of its own.
func EncodeResponse(buf []byte, r Response) (int, error) {
	if r.Command == codec.CmdUnknown {
		if len(buf) < len(r.Raw) {
			return 0, codec.ErrBufferTooSmall
		}
		copy(buf, r.Raw)
		return len(r.Raw), nil
	}

	n, err := codec.EncodeCommandTag(buf, r.Command)
	if err != nil {
		return 0, err
	}

	switch r.Command {
	case codec.CmdGet:
		m, err := codec.EncodeString(buf[n:], r.Key)
		if err != nil {
			return 0, err
		}
		n += m
		if r.HasValue {
			m, err = codec.EncodeString(buf[n:], r.Value)
			if err != nil {
				return 0, err
			}
			n += m
		}
		return n, nil

	case codec.CmdSet:
		m, err := codec.EncodeString(buf[n:], r.Key)
		if err != nil {
			return 0, err
		}
		n += m
		m, err = codec.EncodeString(buf[n:], r.Value)
		if err != nil {
			return 0, err
		}
		return n + m, nil

	case codec.CmdDelete:
		m, err := codec.EncodeString(buf[n:], r.Key)
		if err != nil {
			return 0, err
		}
		return n + m, nil

	case codec.CmdList:
		for _, kv := range r.Pairs {
			m, err := codec.EncodeString(buf[n:], kv.Key)
			if err != nil {
				return 0, err
			}
			n += m
			m, err = codec.EncodeString(buf[n:], kv.Value)
			if err != nil {
				return 0, err
			}
			n += m
		}
		return n, nil

	default:
		return n, nil
	}
}

// DecodeResponse parses a response payload. Used by the CLI client and
// by tests; the server never decodes its own responses.
func DecodeResponse(payload []byte) (Response, error) {
	tag, n, err := codec.DecodeCommandTag(payload)
	if err != nil {
		return Response{Command: codec.CmdUnknown, Raw: payload}, nil
	}

	switch tag {
	case codec.CmdGet:
		key, m, err := codec.DecodeString(payload[n:])
		if err != nil {
			return Response{}, err
		}
		n += m
		if n >= len(payload) {
			return Response{Command: tag, Key: key}, nil
		}
		value, _, err := codec.DecodeString(payload[n:])
		if err != nil {
			return Response{}, err
		}
		return Response{Command: tag, Key: key, Value: value, HasValue: true}, nil

	case codec.CmdSet:
		key, m, err := codec.DecodeString(payload[n:])
		if err != nil {
			return Response{}, err
		}
		n += m
		value, _, err := codec.DecodeString(payload[n:])
		if err != nil {
			return Response{}, err
		}
		return Response{Command: tag, Key: key, Value: value}, nil

	case codec.CmdDelete:
		key, _, err := codec.DecodeString(payload[n:])
		if err != nil {
			return Response{}, err
		}
		return Response{Command: tag, Key: key}, nil

	case codec.CmdList:
		var pairs []KV
		for n < len(payload) {
			key, m, err := codec.DecodeString(payload[n:])
			if err != nil {
				return Response{}, err
			}
			n += m
			value, m, err := codec.DecodeString(payload[n:])
			if err != nil {
				return Response{}, err
			}
			n += m
			pairs = append(pairs, KV{Key: key, Value: value})
		}
		return Response{Command: tag, Pairs: pairs}, nil

	default:
		return Response{Command: codec.CmdUnknown, Raw: payload}, nil
	}
}
