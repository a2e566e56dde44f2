// Package proto implements the wire parsers that sit between a transport
// (UDP/TCP) and a DbSession: the RESP ingestion parser used by both the UDP
// and TCP front-ends, and a secondary OpenTSDB telnet parser. Per spec.md §1
// Non-goals, the core spec treats these as byte streams consumed by parsers
// it does not itself define beyond the contract the front-ends depend on;
// this package fills that contract with a concrete, intentionally thin
// implementation.
package proto

import "github.com/akumuli/akumulid-edge/internal/engine"

// Parser is bound to one DbSession for its lifetime. A fresh Parser is
// created per receive batch (UDP) or per connection (TCP) so a malformed
// frame can never corrupt state that outlives it (spec.md §4.2 parse
// cycle: "a corrupted parser state never persists").
type Parser interface {
	// NextWriteBuffer returns a buffer the caller should fill with the next
	// raw frame before calling ParseNext.
	NextWriteBuffer() []byte

	// ParseNext consumes n bytes written into the buffer previously
	// returned by NextWriteBuffer and applies any complete samples found
	// to the bound session. A malformed frame returns a *ParseError; the
	// caller logs it and moves on to the next frame without restarting
	// the parser (a malformed frame is not the same as a corrupted parser
	// per spec.md's distinction — DatabaseError and ParseError are both
	// caught per batch).
	ParseNext(n int) error

	// Close releases the parser's session reference. Idempotent.
	Close() error
}

// Factory constructs a fresh Parser bound to sess. Implementations are
// registered under a protocol name ("RESP", "OpenTSDB") in the Factories
// registry below, mirroring the server registry pattern of spec.md §4.1.
type Factory func(sess *engine.Session) Parser

// Factories maps a wire-protocol name to its Parser factory. Populated by
// each parser's init().
var Factories = map[string]Factory{}

// Register adds a named parser factory. Called from each parser file's
// init(), the same self-registration idiom used by internal/server's
// server registry.
func Register(name string, f Factory) {
	Factories[name] = f
}

// Lookup returns the factory registered under name, or nil if none.
func Lookup(name string) Factory {
	return Factories[name]
}
