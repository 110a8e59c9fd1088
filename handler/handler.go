// Package handler dispatches decoded requests against the store and
// builds the matching response: one case per supported command, plus
// an Unknown fallback for anything else.
package handler

import (
	"fastkv/codec"
	"fastkv/store"
	"fastkv/wire"
)

// responseTooLarge is the Unknown payload substituted for a List whose
// encoding would not fit the connection's write buffer.
var responseTooLarge = []byte("Response too large")

// Handle applies req to m and returns the response to send back.
// Handlers never fail the connection: every outcome is a well-formed
// response, including List overflow and any other handler-level error,
// which both surface as Unknown.
func Handle(m *store.Map, req wire.Request) wire.Response {
	switch req.Command {
	case codec.CmdGet:
		return handleGet(m, req)
	case codec.CmdSet:
		return handleSet(m, req)
	case codec.CmdDelete:
		return handleDelete(m, req)
	case codec.CmdList:
		return handleList(m, req)
	default:
		return wire.Response{Command: codec.CmdUnknown, Raw: req.Raw}
	}
}

func handleGet(m *store.Map, req wire.Request) wire.Response {
	value, ok := m.Get(req.Key)
	if !ok {
		return wire.Response{Command: codec.CmdGet, Key: req.Key}
	}
	return wire.Response{Command: codec.CmdGet, Key: req.Key, Value: value, HasValue: true}
}

func handleSet(m *store.Map, req wire.Request) wire.Response {
	m.Put(req.Key, req.Value)
	return wire.Response{Command: codec.CmdSet, Key: req.Key, Value: req.Value}
}

func handleDelete(m *store.Map, req wire.Request) wire.Response {
	m.Remove(req.Key)
	return wire.Response{Command: codec.CmdDelete, Key: req.Key}
}

// handleList snapshots the Map in legacy-then-current order. If the
// encoded response would not fit a single frame, it surfaces as Unknown
// rather than returning a truncated list.
func handleList(m *store.Map, req wire.Request) wire.Response {
	all := m.All()
	pairs := make([]wire.KV, len(all))
	for i, kv := range all {
		pairs[i] = wire.KV{Key: kv.Key, Value: kv.Value}
	}

	resp := wire.Response{Command: codec.CmdList, Pairs: pairs}
	scratch := make([]byte, wire.MaxPayloadSize)
	if _, err := wire.EncodeResponse(scratch, resp); err != nil {
		return wire.Response{Command: codec.CmdUnknown, Raw: responseTooLarge}
	}
	return resp
}
