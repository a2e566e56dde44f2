package engine

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/akumuli/akumulid-edge/internal/model"
)

// Session is a DbSession: owned by a single ingestion worker for its
// lifetime, or by a single query for its lifetime. Not safe for
// concurrent use by multiple workers.
type Session struct {
	conn   *Connection
	closed atomic.Bool
}

// Write persists one sample, resolving its series name to a ParamID on
// first sight. A duplicate (param_id, ts) pair is reported as a
// DatabaseError of kind ErrKindDuplicate — the per-sample engine error
// class from spec.md §7 that ingestors must contain at batch scope.
func (s *Session) Write(sample model.Sample) error {
	if s.closed.Load() || s.conn.Closed() {
		return ErrConnectionClosed
	}

	tx, err := s.conn.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	paramID := sample.ParamID
	if sample.Series != "" {
		paramID, err = seriesID(tx, sample.Series)
		if err != nil {
			return err
		}
	}

	tuple, blob := encodePayload(sample)
	_, err = tx.Exec(
		`INSERT INTO samples(param_id, ts, kind, value, tuple, blob) VALUES (?,?,?,?,?,?)`,
		paramID, sample.Timestamp, int(sample.Kind), sample.Value, tuple, blob,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &DatabaseError{Kind: ErrKindDuplicate, Op: "write", Err: fmt.Errorf("duplicate timestamp for param %d", paramID)}
		}
		return &DatabaseError{Kind: ErrKindUnknown, Op: "write", Err: err}
	}
	return tx.Commit()
}

// Query parses the accumulated query text and opens a Cursor over the
// result. The query grammar itself is explicitly out of scope (spec.md §1
// Non-goals); this implements the minimal subset needed to drive the
// query pipeline: "select <series>[,<series>...] [from <ts> to <ts>]".
func (s *Session) Query(text string) (*Cursor, error) {
	if s.closed.Load() || s.conn.Closed() {
		return nil, ErrConnectionClosed
	}

	q, err := parseQuery(text)
	if err != nil {
		return nil, err
	}

	sqlText, args := q.build()
	rows, err := s.conn.db.Query(sqlText, args...)
	if err != nil {
		return nil, err
	}
	return &Cursor{rows: rows}, nil
}

// Close releases the session. Idempotent.
func (s *Session) Close() error {
	s.closed.Store(true)
	return nil
}

func encodePayload(sample model.Sample) (tuple, blob []byte) {
	switch sample.Kind {
	case model.PayloadTuple:
		return encodeTuple(sample.Tuple), nil
	case model.PayloadBlob:
		return nil, sample.Blob
	default:
		return nil, nil
	}
}

func encodeTuple(values []float64) []byte {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return []byte(strings.Join(parts, ","))
}

func decodeTuple(raw []byte) []float64 {
	if len(raw) == 0 {
		return nil
	}
	parts := strings.Split(string(raw), ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		var f float64
		if _, err := fmt.Sscanf(p, "%g", &f); err == nil {
			out = append(out, f)
		}
	}
	return out
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique")
}

// parsedQuery is the result of parsing query text into the minimal
// select-by-series-name-and-range grammar this façade supports.
type parsedQuery struct {
	series []string
	fromTS int64
	toTS   int64
	hasRange bool
}

func (q parsedQuery) build() (string, []any) {
	sqlText := "SELECT s.param_id, sm.ts, sm.kind, sm.value, sm.tuple, sm.blob, s.name FROM samples sm JOIN series s ON s.param_id = sm.param_id"
	var (
		where []string
		args  []any
	)
	if len(q.series) > 0 {
		placeholders := strings.TrimRight(strings.Repeat("?,", len(q.series)), ",")
		where = append(where, fmt.Sprintf("s.name IN (%s)", placeholders))
		for _, name := range q.series {
			args = append(args, name)
		}
	}
	if q.hasRange {
		where = append(where, "sm.ts >= ? AND sm.ts < ?")
		args = append(args, q.fromTS, q.toTS)
	}
	if len(where) > 0 {
		sqlText += " WHERE " + strings.Join(where, " AND ")
	}
	sqlText += " ORDER BY sm.ts ASC"
	return sqlText, args
}

func parseQuery(text string) (parsedQuery, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return parsedQuery{}, fmt.Errorf("engine: empty query")
	}

	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.EqualFold(fields[0], "select") {
		return parsedQuery{}, fmt.Errorf("engine: query must start with select, got %q", text)
	}

	var q parsedQuery
	i := 1
	for ; i < len(fields); i++ {
		if strings.EqualFold(fields[i], "from") {
			break
		}
	}
	for _, name := range strings.Split(strings.Join(fields[1:i], " "), ",") {
		if name = strings.TrimSpace(name); name != "" {
			q.series = append(q.series, name)
		}
	}
	if i < len(fields) && strings.EqualFold(fields[i], "from") {
		if i+3 >= len(fields) || !strings.EqualFold(fields[i+2], "to") {
			return parsedQuery{}, fmt.Errorf("engine: expected 'from <ts> to <ts>'")
		}
		from, err := parseInt64(fields[i+1])
		if err != nil {
			return parsedQuery{}, err
		}
		to, err := parseInt64(fields[i+3])
		if err != nil {
			return parsedQuery{}, err
		}
		q.fromTS, q.toTS, q.hasRange = from, to, true
	}
	if len(q.series) == 0 {
		return parsedQuery{}, fmt.Errorf("engine: query selects no series")
	}
	return q, nil
}

func parseInt64(s string) (int64, error) {
	var v int64
	_, err := fmt.Sscanf(s, "%d", &v)
	if err != nil {
		return 0, fmt.Errorf("engine: invalid timestamp %q: %w", s, err)
	}
	return v, nil
}
