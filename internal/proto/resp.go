package proto

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/akumuli/akumulid-edge/internal/engine"
	"github.com/akumuli/akumulid-edge/internal/model"
)

func init() {
	Register("RESP", NewRespParser)
}

// respField is the line position within one RESP sample frame, per the
// wire example in spec.md §8: a series+tags line, a timestamp line, and a
// value line, each prefixed with '+' and terminated by "\r\n":
//
//	+series1 tag=a\r\n
//	+20200101T000000\r\n
//	+3.14\r\n
type respField int

const (
	fieldSeries respField = iota
	fieldTimestamp
	fieldValue
)

const respReadBuf = 64 * 1024

// RespParser implements the RESP ingestion protocol shared by the UDP and
// TCP front-ends. It is stateful across ParseNext calls so a sample frame
// split across TCP reads still parses correctly; for UDP each datagram is
// a self-contained frame so the buffered state is always empty between
// calls.
type RespParser struct {
	sess *engine.Session
	buf  bytes.Buffer
	io   []byte

	field   respField
	series  string
	tags    string
	tsNanos int64
}

// NewRespParser constructs a RESP Parser bound to sess.
func NewRespParser(sess *engine.Session) Parser {
	return &RespParser{sess: sess, io: make([]byte, respReadBuf)}
}

func (p *RespParser) NextWriteBuffer() []byte {
	return p.io
}

// ParseNext appends the n bytes written into the last NextWriteBuffer
// result to the parser's line buffer and consumes every complete line it
// finds. A malformed line returns a *ParseError and discards the
// in-progress frame, matching spec.md's "malformed RESP is caught, logged,
// and aborts only the current batch" contract at frame granularity.
func (p *RespParser) ParseNext(n int) error {
	if n <= 0 {
		return nil
	}
	p.buf.Write(p.io[:n])

	for {
		raw := p.buf.Bytes()
		idx := bytes.Index(raw, []byte("\r\n"))
		if idx < 0 {
			return nil
		}
		line := raw[:idx]
		p.buf.Next(idx + 2)

		if err := p.consumeLine(line); err != nil {
			p.resetFrame()
			return err
		}
	}
}

func (p *RespParser) consumeLine(line []byte) error {
	if len(line) == 0 || line[0] != '+' {
		return newParseError("RESP", fmt.Sprintf("expected '+' prefix, got %q", line))
	}
	payload := string(line[1:])

	switch p.field {
	case fieldSeries:
		name, tags, ok := splitSeriesTags(payload)
		if !ok {
			return newParseError("RESP", fmt.Sprintf("invalid series line %q", payload))
		}
		p.series, p.tags = name, tags
		p.field = fieldTimestamp
		return nil
	case fieldTimestamp:
		ts, err := parseTimestamp(payload)
		if err != nil {
			return newParseError("RESP", err.Error())
		}
		p.tsNanos = ts
		p.field = fieldValue
		return nil
	case fieldValue:
		value, err := strconv.ParseFloat(payload, 64)
		if err != nil {
			return newParseError("RESP", fmt.Sprintf("invalid value %q", payload))
		}
		sample := model.Sample{
			Series:    seriesKey(p.series, p.tags),
			Timestamp: p.tsNanos,
			Kind:      model.PayloadScalar,
			Value:     value,
		}
		p.resetFrame()
		if err := p.sess.Write(sample); err != nil {
			return err
		}
		return nil
	default:
		return newParseError("RESP", "unreachable parser state")
	}
}

func (p *RespParser) resetFrame() {
	p.field = fieldSeries
	p.series, p.tags, p.tsNanos = "", "", 0
}

// Close releases the parser's session reference. RESP parsers hold no
// other resources.
func (p *RespParser) Close() error {
	p.sess = nil
	return nil
}

func splitSeriesTags(payload string) (name, tags string, ok bool) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return "", "", false
	}
	i := strings.IndexByte(payload, ' ')
	if i < 0 {
		return payload, "", true
	}
	return payload[:i], strings.TrimSpace(payload[i+1:]), true
}

// seriesKey folds a series name and its tag string into the flat series
// identity this façade's minimal engine indexes on; the metric-name
// indexing structure itself is out of scope per spec.md §1 Non-goals.
func seriesKey(name, tags string) string {
	if tags == "" {
		return name
	}
	return name + " " + tags
}

// parseTimestamp accepts either a compact "YYYYMMDDThhmmss" timestamp (the
// wire example's format) or a raw Unix-nanosecond integer, and returns
// Unix nanoseconds.
func parseTimestamp(s string) (int64, error) {
	if t, err := time.Parse("20060102T150405", s); err == nil {
		return t.UTC().UnixNano(), nil
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	return 0, fmt.Errorf("invalid timestamp %q", s)
}
