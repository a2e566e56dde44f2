package proto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akumuli/akumulid-edge/internal/engine"
	"github.com/akumuli/akumulid-edge/internal/model"
)

func newTestSession(t *testing.T) (*engine.Connection, *engine.Session) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, engine.Create(dir, model.WALSettings{}, false, 4<<20))
	conn, err := engine.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	sess, err := conn.NewSession()
	require.NoError(t, err)
	return conn, sess
}

func TestRespParserWireExample(t *testing.T) {
	conn, sess := newTestSession(t)

	p := NewRespParser(sess)
	frame := "+series1 tag=a\r\n+20200101T000000\r\n+3.14\r\n"
	buf := p.NextWriteBuffer()
	n := copy(buf, frame)
	require.NoError(t, p.ParseNext(n))
	require.NoError(t, p.Close())

	qsess, err := conn.NewSession()
	require.NoError(t, err)
	defer qsess.Close()

	cur, err := qsess.Query("select " + seriesKey("series1", "tag=a"))
	require.NoError(t, err)
	defer cur.Close()

	var got model.Sample
	ok, err := cur.Next(&got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3.14, got.Value)
}

func TestRespParserSplitAcrossWrites(t *testing.T) {
	_, sess := newTestSession(t)
	p := NewRespParser(sess)

	frame := "+series1\r\n+1\r\n+2.5\r\n"
	mid := len(frame) / 2

	buf := p.NextWriteBuffer()
	n := copy(buf, frame[:mid])
	require.NoError(t, p.ParseNext(n))

	buf = p.NextWriteBuffer()
	n = copy(buf, frame[mid:])
	require.NoError(t, p.ParseNext(n))
}

func TestRespParserMalformedLineReturnsParseError(t *testing.T) {
	_, sess := newTestSession(t)
	p := NewRespParser(sess)

	buf := p.NextWriteBuffer()
	n := copy(buf, "not-resp\r\n")
	err := p.ParseNext(n)
	require.Error(t, err)

	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "RESP", pe.Protocol)
}

func TestRespParserFreshAfterMalformedFrame(t *testing.T) {
	_, sess := newTestSession(t)
	p := NewRespParser(sess)

	buf := p.NextWriteBuffer()
	n := copy(buf, "bogus\r\n")
	require.Error(t, p.ParseNext(n))

	buf = p.NextWriteBuffer()
	n = copy(buf, "+series1\r\n+1\r\n+9.0\r\n")
	require.NoError(t, p.ParseNext(n))
}

func TestOpenTSDBParserPutCommand(t *testing.T) {
	conn, sess := newTestSession(t)
	p := NewOpenTSDBParser(sess)

	buf := p.NextWriteBuffer()
	n := copy(buf, "put sys.cpu.user 1000 42.5 host=web01\n")
	require.NoError(t, p.ParseNext(n))

	qsess, err := conn.NewSession()
	require.NoError(t, err)
	defer qsess.Close()

	cur, err := qsess.Query("select " + seriesKey("sys.cpu.user", "host=web01"))
	require.NoError(t, err)
	defer cur.Close()

	var got model.Sample
	ok, err := cur.Next(&got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 42.5, got.Value)
}

func TestOpenTSDBParserIgnoresVersionAndBlankLines(t *testing.T) {
	_, sess := newTestSession(t)
	p := NewOpenTSDBParser(sess)

	buf := p.NextWriteBuffer()
	n := copy(buf, "version\n\nput m 1 1\n")
	require.NoError(t, p.ParseNext(n))
}

func TestOpenTSDBParserMalformedCommand(t *testing.T) {
	_, sess := newTestSession(t)
	p := NewOpenTSDBParser(sess)

	buf := p.NextWriteBuffer()
	n := copy(buf, "put only-two-fields\n")
	err := p.ParseNext(n)
	require.Error(t, err)

	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "OpenTSDB", pe.Protocol)
}

func TestLookupReturnsRegisteredFactories(t *testing.T) {
	assert.NotNil(t, Lookup("RESP"))
	assert.NotNil(t, Lookup("OpenTSDB"))
	assert.Nil(t, Lookup("nonexistent"))
}
