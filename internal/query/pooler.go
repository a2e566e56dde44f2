package query

import (
	"strings"
	"sync"

	"github.com/akumuli/akumulid-edge/internal/engine"
	"github.com/akumuli/akumulid-edge/internal/model"
)

// poolerState is the QueryResultsPooler state machine from spec.md §4.4.
type poolerState int

const (
	stateCreated poolerState = iota
	stateStarted
	stateDraining
	stateClosed
	stateErrored
)

// ringCapacity is rdbuf_'s default capacity in formatted records.
const ringCapacity = 1024

// QueryResultsPooler is the streaming read operation manufactured once per
// incoming HTTP query: it pulls samples from a DbCursor, formats them into
// a bounded ring of already-rendered records, and serves ReadSome calls
// from the HTTP response writer with backpressure — the ring only ever
// grows to ringCapacity records ahead of what has been written out.
//
// State machine: Created -> Started (via Start, after Append) -> Draining
// (on first ReadSome) -> Closed (cursor exhaustion or explicit Close).
// Errored is reachable from any state when the cursor surfaces a
// non-success status; the error is reported exactly once, after any
// already-formatted bytes have been flushed to the caller.
type QueryResultsPooler struct {
	mu sync.Mutex

	sess      *engine.Session
	endpoint  model.ApiEndpoint
	formatter Formatter

	state      poolerState
	queryText  strings.Builder
	cursor     *engine.Cursor
	ring       [][]byte
	frontOff   int
	exhausted  bool
	pendingErr error
	errReported bool
}

// newPooler constructs a pooler bound to sess for the given endpoint. It
// starts in Created: the caller must Append the query text and call
// Start before any ReadSome.
func newPooler(sess *engine.Session, endpoint model.ApiEndpoint) *QueryResultsPooler {
	return &QueryResultsPooler{sess: sess, endpoint: endpoint}
}

// Append accumulates query text. Legal only in Created.
func (p *QueryResultsPooler) Append(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != stateCreated {
		return ErrAlreadyStarted
	}
	p.queryText.Write(data)
	return nil
}

// Start parses the accumulated query text, opens a cursor through the
// bound session, and picks the formatter for the pooler's endpoint.
// Calling Start twice fails with ErrAlreadyStarted.
func (p *QueryResultsPooler) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != stateCreated {
		return ErrAlreadyStarted
	}

	cur, err := p.sess.Query(p.queryText.String())
	if err != nil {
		p.state = stateErrored
		p.pendingErr = err
		return err
	}

	p.cursor = cur
	p.formatter = newFormatter(p.endpoint)
	p.state = stateStarted
	return nil
}

// ReadSome writes as many whole formatted records as fit into buf. A
// record is never split across calls: if the next record would overflow
// buf it is held back for the next call. complete is true only once the
// cursor is exhausted AND the ring has fully drained.
func (p *QueryResultsPooler) ReadSome(buf []byte) (n int, complete bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == stateCreated {
		return 0, false, ErrNotStarted
	}
	if p.state == stateStarted {
		p.state = stateDraining
	}

	for {
		// Drain whatever is already buffered first.
		for len(p.ring) > 0 {
			rec := p.ring[0][p.frontOff:]
			if len(rec) > len(buf)-n {
				return n, false, nil
			}
			copy(buf[n:], rec)
			n += len(rec)
			p.ring = p.ring[1:]
			p.frontOff = 0
		}

		if p.exhausted {
			break
		}

		// Pull and format up to a ring's worth of fresh samples.
		for len(p.ring) < ringCapacity {
			var sample model.Sample
			ok, cerr := p.cursor.Next(&sample)
			if cerr != nil {
				p.exhausted = true
				p.pendingErr = cerr
				break
			}
			if !ok {
				p.exhausted = true
				break
			}
			p.ring = append(p.ring, p.formatter.Format(sample))
		}
		if len(p.ring) == 0 && p.exhausted {
			break
		}
		if len(p.ring) == 0 {
			break
		}
	}

	if p.exhausted && len(p.ring) == 0 {
		if p.pendingErr != nil && !p.errReported {
			p.errReported = true
			p.state = stateErrored
			return n, true, p.pendingErr
		}
		p.state = stateClosed
		return n, true, nil
	}
	return n, false, nil
}

// Close releases the pooler's cursor and session. Idempotent.
func (p *QueryResultsPooler) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state = stateClosed
	if p.cursor != nil {
		_ = p.cursor.Close()
	}
	return p.sess.Close()
}

// State reports the current machine state, mainly for tests.
func (p *QueryResultsPooler) State() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch p.state {
	case stateCreated:
		return "Created"
	case stateStarted:
		return "Started"
	case stateDraining:
		return "Draining"
	case stateClosed:
		return "Closed"
	case stateErrored:
		return "Errored"
	default:
		return "Unknown"
	}
}
