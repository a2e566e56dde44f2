package engine

import (
	"database/sql"
	"sync/atomic"

	"github.com/akumuli/akumulid-edge/internal/model"
)

// Cursor is a DbCursor: owned by exactly one QueryResultsPooler, produces
// a finite lazy sequence of samples, and is not restartable.
type Cursor struct {
	rows   *sql.Rows
	closed atomic.Bool
}

// Next scans the next sample into dst. It returns (false, nil) when the
// cursor is exhausted and (false, err) on a cursor failure — the
// DatabaseError class spec.md §4.4 requires QueryResultsPooler to surface
// exactly once through get_error/get_error_message.
func (c *Cursor) Next(dst *model.Sample) (bool, error) {
	if c.closed.Load() {
		return false, nil
	}
	if !c.rows.Next() {
		return false, c.rows.Err()
	}

	var (
		kind        int
		tuple, blob []byte
	)
	if err := c.rows.Scan(&dst.ParamID, &dst.Timestamp, &kind, &dst.Value, &tuple, &blob, &dst.Series); err != nil {
		return false, err
	}
	dst.Kind = model.PayloadKind(kind)
	dst.Tuple = decodeTuple(tuple)
	dst.Blob = blob
	return true, nil
}

// Close releases the cursor. Idempotent.
func (c *Cursor) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.rows.Close()
}
