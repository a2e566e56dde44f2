package query

import (
	"github.com/akumuli/akumulid-edge/internal/engine"
	"github.com/akumuli/akumulid-edge/internal/model"
)

// defaultReadBufferSize is the QueryProcessor's default read-buffer size
// handed to HTTP response writers that don't specify their own.
const defaultReadBufferSize = 4096

// Processor holds a weak reference to the engine connection — here, a
// pointer checked against Connection.Closed() before every use, the
// substitute for a language-level weak pointer spec.md §9 calls for (see
// engine.Connection.Closed doc comment for the same justification). Every
// operation fails with ErrConnectionClosed once the connection has been
// closed out from under it, rather than racing a stale pointer.
type Processor struct {
	conn          *engine.Connection
	readBufferSize int
}

// NewProcessor constructs a Processor over conn.
func NewProcessor(conn *engine.Connection) *Processor {
	return &Processor{conn: conn, readBufferSize: defaultReadBufferSize}
}

// ReadBufferSize returns the default buffer size HTTP handlers should use
// with ReadSome when they have no size preference of their own.
func (p *Processor) ReadBufferSize() int {
	return p.readBufferSize
}

// Create manufactures a new pooler bound to a freshly created session, for
// the given API endpoint variant.
func (p *Processor) Create(endpoint model.ApiEndpoint) (*QueryResultsPooler, error) {
	if p.conn.Closed() {
		return nil, ErrConnectionClosed
	}
	sess, err := p.conn.NewSession()
	if err != nil {
		return nil, ErrConnectionClosed
	}
	return newPooler(sess, endpoint), nil
}

// GetAllStats returns a textual statistics blob fetched from the engine.
func (p *Processor) GetAllStats() (string, error) {
	if p.conn.Closed() {
		return "", ErrConnectionClosed
	}
	return p.conn.StatsText()
}

// GetResource returns an engine-exposed textual resource, e.g. the series
// list or function catalog.
func (p *Processor) GetResource(name string) (string, error) {
	if p.conn.Closed() {
		return "", ErrConnectionClosed
	}
	return p.conn.ResourceText(name)
}
