package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akumuli/akumulid-edge/internal/engine"
	"github.com/akumuli/akumulid-edge/internal/model"
)

func newTestConnection(t *testing.T) *engine.Connection {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, engine.Create(dir, model.WALSettings{}, false, 4<<20))
	conn, err := engine.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func writeSample(t *testing.T, conn *engine.Connection, series string, ts int64, value float64) {
	t.Helper()
	sess, err := conn.NewSession()
	require.NoError(t, err)
	defer sess.Close()
	require.NoError(t, sess.Write(model.Sample{Series: series, Timestamp: ts, Value: value}))
}

func TestPoolerReadSomeBeforeStartFails(t *testing.T) {
	conn := newTestConnection(t)
	proc := NewProcessor(conn)

	p, err := proc.Create(model.EndpointQuery)
	require.NoError(t, err)

	buf := make([]byte, 64)
	_, _, err = p.ReadSome(buf)
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestPoolerAppendAfterStartFails(t *testing.T) {
	conn := newTestConnection(t)
	writeSample(t, conn, "series1", 1, 3.14)
	proc := NewProcessor(conn)

	p, err := proc.Create(model.EndpointQuery)
	require.NoError(t, err)
	require.NoError(t, p.Append([]byte("select series1")))
	require.NoError(t, p.Start())

	err = p.Append([]byte("more"))
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestPoolerDoubleStartFails(t *testing.T) {
	conn := newTestConnection(t)
	writeSample(t, conn, "series1", 1, 3.14)
	proc := NewProcessor(conn)

	p, err := proc.Create(model.EndpointQuery)
	require.NoError(t, err)
	require.NoError(t, p.Append([]byte("select series1")))
	require.NoError(t, p.Start())

	err = p.Start()
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestPoolerReadSomeDrainsToCompletion(t *testing.T) {
	conn := newTestConnection(t)
	writeSample(t, conn, "series1", 1, 3.14)
	writeSample(t, conn, "series1", 2, 6.28)
	proc := NewProcessor(conn)

	p, err := proc.Create(model.EndpointQuery)
	require.NoError(t, err)
	require.NoError(t, p.Append([]byte("select series1")))
	require.NoError(t, p.Start())
	assert.Equal(t, "Started", p.State())

	buf := make([]byte, 4096)
	n, complete, err := p.ReadSome(buf)
	require.NoError(t, err)
	assert.True(t, complete)
	assert.Greater(t, n, 0)
	assert.Equal(t, "Closed", p.State())
	assert.Contains(t, string(buf[:n]), "series1")
}

func TestPoolerReadSomeNeverSplitsARecordAcrossCalls(t *testing.T) {
	conn := newTestConnection(t)
	writeSample(t, conn, "series1", 1, 3.14)
	writeSample(t, conn, "series1", 2, 6.28)
	proc := NewProcessor(conn)

	p, err := proc.Create(model.EndpointQuery)
	require.NoError(t, err)
	require.NoError(t, p.Append([]byte("select series1")))
	require.NoError(t, p.Start())

	// A buffer far too small for even one record must report zero bytes,
	// not a truncated record.
	tiny := make([]byte, 1)
	n, complete, err := p.ReadSome(tiny)
	require.NoError(t, err)
	assert.False(t, complete)
	assert.Equal(t, 0, n)
}

func TestPoolerCloseIsIdempotent(t *testing.T) {
	conn := newTestConnection(t)
	writeSample(t, conn, "series1", 1, 1)
	proc := NewProcessor(conn)

	p, err := proc.Create(model.EndpointQuery)
	require.NoError(t, err)
	require.NoError(t, p.Append([]byte("select series1")))
	require.NoError(t, p.Start())

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
}

func TestProcessorFailsAfterConnectionClosed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, engine.Create(dir, model.WALSettings{}, false, 4<<20))
	conn, err := engine.Open(dir)
	require.NoError(t, err)

	proc := NewProcessor(conn)
	require.NoError(t, conn.Close())

	_, err = proc.Create(model.EndpointQuery)
	assert.ErrorIs(t, err, ErrConnectionClosed)

	_, err = proc.GetAllStats()
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestFormatterDispatchByEndpoint(t *testing.T) {
	s := model.Sample{Series: "series1", Timestamp: 42, Value: 1.5}

	assert.Contains(t, string(queryFormatter{}.Format(s)), "1.5")
	assert.Equal(t, "series1\n", string(suggestFormatter{}.Format(s)))
	assert.Equal(t, "series1 42\n", string(searchFormatter{}.Format(s)))
}
