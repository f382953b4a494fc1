package node

// ConfigFn reads or writes a Config. reqData is the full data field of the
// inbound request; bodyOffset is the index within reqData where this
// config's own arguments begin (past the cmd byte and, for the is-port
// form, the port-selector byte) — most configs ignore everything before
// bodyOffset, but ping (spec §8: "ping returns the request's data field
// exactly") needs the whole frame, hence passing both.
type ConfigFn func(n *Node, p *Port, reqData []byte, bodyOffset int) Result

// Config is a (read-fn?, write-fn?, description) triple. Either or both
// handlers may be absent, producing read-only/write-only semantics.
type Config struct {
	Description string
	Read        ConfigFn // nil => write-only
	Write       ConfigFn // nil => read-only
}

func body(reqData []byte, offset int) []byte {
	if offset >= len(reqData) {
		return nil
	}
	return reqData[offset:]
}

// stringChunk implements the 8-byte chunked string delivery described in
// spec §4.3: chunk index comes from the caller, the string is followed by
// a terminating NUL, and a chunk containing only NUL signals end-of-string.
func stringChunk(s string, idx int) []byte {
	full := append([]byte(s), 0)
	start := idx * 8
	if start >= len(full) {
		return make([]byte, 8)
	}
	end := start + 8
	chunk := make([]byte, 8)
	if end > len(full) {
		end = len(full)
	}
	copy(chunk, full[start:end])
	return chunk
}
