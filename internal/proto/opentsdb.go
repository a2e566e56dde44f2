package proto

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/akumuli/akumulid-edge/internal/engine"
	"github.com/akumuli/akumulid-edge/internal/model"
)

func init() {
	Register("OpenTSDB", NewOpenTSDBParser)
}

const opentsdbReadBuf = 64 * 1024

// OpenTSDBParser implements the telnet "put" command used by the
// secondary TCP listener named in spec.md §2 and §6.3:
//
//	put <metric> <timestamp> <value> [<tagk=tagv> ...]\n
//
// It is line-buffered like RespParser so a command split across TCP reads
// still parses once the newline arrives.
type OpenTSDBParser struct {
	sess *engine.Session
	buf  bytes.Buffer
	io   []byte
}

// NewOpenTSDBParser constructs a Parser bound to sess.
func NewOpenTSDBParser(sess *engine.Session) Parser {
	return &OpenTSDBParser{sess: sess, io: make([]byte, opentsdbReadBuf)}
}

func (p *OpenTSDBParser) NextWriteBuffer() []byte {
	return p.io
}

// ParseNext consumes every complete "\n"-terminated line in the buffered
// stream. A "version" or blank line is ignored; anything else must be a
// well-formed "put" command or it is reported as a *ParseError scoped to
// that one line.
func (p *OpenTSDBParser) ParseNext(n int) error {
	if n <= 0 {
		return nil
	}
	p.buf.Write(p.io[:n])

	for {
		raw := p.buf.Bytes()
		idx := bytes.IndexByte(raw, '\n')
		if idx < 0 {
			return nil
		}
		line := raw[:idx]
		p.buf.Next(idx + 1)

		if err := p.consumeLine(string(bytes.TrimRight(line, "\r"))); err != nil {
			return err
		}
	}
}

func (p *OpenTSDBParser) consumeLine(line string) error {
	line = strings.TrimSpace(line)
	if line == "" || line == "version" {
		return nil
	}

	fields := strings.Fields(line)
	if len(fields) < 4 || !strings.EqualFold(fields[0], "put") {
		return newParseError("OpenTSDB", fmt.Sprintf("expected 'put <metric> <ts> <value> [tags...]', got %q", line))
	}

	metric := fields[1]
	ts, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return newParseError("OpenTSDB", fmt.Sprintf("invalid timestamp %q", fields[2]))
	}
	value, err := strconv.ParseFloat(fields[3], 64)
	if err != nil {
		return newParseError("OpenTSDB", fmt.Sprintf("invalid value %q", fields[3]))
	}

	tags := strings.Join(fields[4:], " ")
	sample := model.Sample{
		Series:    seriesKey(metric, tags),
		Timestamp: ts,
		Kind:      model.PayloadScalar,
		Value:     value,
	}
	return p.sess.Write(sample)
}

// Close releases the parser's session reference.
func (p *OpenTSDBParser) Close() error {
	p.sess = nil
	return nil
}
