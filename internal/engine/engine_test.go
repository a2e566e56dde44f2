package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akumuli/akumulid-edge/internal/model"
)

func TestCreateOpenCloseLifecycle(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, Create(dir, model.WALSettings{}, false, 4<<20))
	assert.True(t, ManifestExists(dir))

	conn, err := Open(dir)
	require.NoError(t, err)
	defer conn.Close()

	assert.False(t, conn.Closed())
	require.NoError(t, conn.Health())
}

func TestOpenRefusesWithoutManifest(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(dir)
	assert.Error(t, err)
}

func TestCreateRefusesIfManifestExists(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Create(dir, model.WALSettings{}, false, 4<<20))
	err := Create(dir, model.WALSettings{}, false, 4<<20)
	assert.Error(t, err)
}

func TestOpenRefusesSecondOpenOfSamePath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Create(dir, model.WALSettings{}, false, 4<<20))

	conn, err := Open(dir)
	require.NoError(t, err)
	defer conn.Close()

	_, err = Open(dir)
	assert.ErrorIs(t, err, ErrAlreadyOpen)
}

func TestWriteAndQueryRoundtrip(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Create(dir, model.WALSettings{}, false, 4<<20))

	conn, err := Open(dir)
	require.NoError(t, err)
	defer conn.Close()

	sess, err := conn.NewSession()
	require.NoError(t, err)
	defer sess.Close()

	require.NoError(t, sess.Write(model.Sample{Series: "series1", Timestamp: 1, Value: 3.14}))
	require.NoError(t, sess.Write(model.Sample{Series: "series1", Timestamp: 2, Value: 6.28}))

	qsess, err := conn.NewSession()
	require.NoError(t, err)
	defer qsess.Close()

	cur, err := qsess.Query("select series1")
	require.NoError(t, err)
	defer cur.Close()

	var got []model.Sample
	for {
		var s model.Sample
		ok, err := cur.Next(&s)
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, s)
	}
	require.Len(t, got, 2)
	assert.Equal(t, 3.14, got[0].Value)
	assert.Equal(t, "series1", got[0].Series)
}

func TestWriteDuplicateTimestampIsDatabaseError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Create(dir, model.WALSettings{}, false, 4<<20))

	conn, err := Open(dir)
	require.NoError(t, err)
	defer conn.Close()

	sess, err := conn.NewSession()
	require.NoError(t, err)
	defer sess.Close()

	require.NoError(t, sess.Write(model.Sample{Series: "series1", Timestamp: 1, Value: 1}))
	err = sess.Write(model.Sample{Series: "series1", Timestamp: 1, Value: 2})
	require.Error(t, err)

	var dbErr *DatabaseError
	require.ErrorAs(t, err, &dbErr)
	assert.Equal(t, ErrKindDuplicate, dbErr.Kind)
}

func TestSessionAfterConnectionCloseFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Create(dir, model.WALSettings{}, false, 4<<20))

	conn, err := Open(dir)
	require.NoError(t, err)

	sess, err := conn.NewSession()
	require.NoError(t, err)

	require.NoError(t, conn.Close())

	err = sess.Write(model.Sample{Series: "series1", Timestamp: 1, Value: 1})
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestDeleteRequiresManifest(t *testing.T) {
	dir := t.TempDir()
	assert.Error(t, Delete(dir))

	require.NoError(t, Create(dir, model.WALSettings{}, false, 4<<20))
	assert.NoError(t, Delete(dir))
	assert.False(t, ManifestExists(dir))
}
