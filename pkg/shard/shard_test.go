package shard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shardkeep/shardkeep/pkg/bson"
	"github.com/shardkeep/shardkeep/pkg/dberrors"
)

func recordWithName(id, name string) bson.Record {
	return bson.Record{
		"_id":  bson.String(id),
		"name": bson.String(name),
	}
}

func TestInsertThenGet(t *testing.T) {
	s := New("ab12")
	require.NoError(t, s.Insert(recordWithName("r1", "Alice"), 100))

	rec, ok := s.Get("r1")
	require.True(t, ok)
	assert.Equal(t, "Alice", rec["name"].Str)
}

func TestInsertDuplicateIDFails(t *testing.T) {
	s := New("ab12")
	require.NoError(t, s.Insert(recordWithName("r1", "Alice"), 100))

	err := s.Insert(recordWithName("r1", "Bob"), 101)
	require.Error(t, err)
	assert.True(t, dberrors.Is(err, dberrors.ErrDuplicateID))
}

func TestInsertThenDeleteIsNotFound(t *testing.T) {
	s := New("ab12")
	require.NoError(t, s.Insert(recordWithName("r1", "Alice"), 100))

	assert.True(t, s.Delete("r1"))
	_, ok := s.Get("r1")
	assert.False(t, ok)
	assert.False(t, s.Delete("r1"), "deleting again reports false")
}

func TestUpdateNewerTimestampWins(t *testing.T) {
	s := New("ab12")
	require.NoError(t, s.Insert(bson.Record{"_id": bson.String("r"), "a": bson.Int64(1)}, 100))

	changed, err := s.Update("r", map[string]*bson.Value{"a": ptr(bson.Int64(3))}, 200)
	require.NoError(t, err)
	assert.True(t, changed)

	rec, _ := s.Get("r")
	assert.EqualValues(t, 3, rec["a"].Int64)
}

func TestUpdateOlderTimestampLoses(t *testing.T) {
	s := New("ab12")
	require.NoError(t, s.Insert(bson.Record{"_id": bson.String("r"), "a": bson.Int64(1)}, 100))

	changed, err := s.Update("r", map[string]*bson.Value{"a": ptr(bson.Int64(2))}, 50)
	require.NoError(t, err)
	assert.False(t, changed)

	rec, _ := s.Get("r")
	assert.EqualValues(t, 1, rec["a"].Int64)
}

func TestUpdateMissingRecordIsNotFound(t *testing.T) {
	s := New("ab12")
	_, err := s.Update("nope", map[string]*bson.Value{"a": ptr(bson.Int64(1))}, 100)
	require.Error(t, err)
	assert.True(t, dberrors.Is(err, dberrors.ErrNotFound))
}

func TestUpdateNilValueDeletesField(t *testing.T) {
	s := New("ab12")
	require.NoError(t, s.Insert(bson.Record{"_id": bson.String("r"), "a": bson.Int64(1)}, 100))

	changed, err := s.Update("r", map[string]*bson.Value{"a": nil}, 200)
	require.NoError(t, err)
	assert.True(t, changed)

	rec, _ := s.Get("r")
	_, present := rec["a"]
	assert.False(t, present)
}

func TestRootHashStableAcrossRevert(t *testing.T) {
	s := New("ab12")
	for _, id := range []string{"A", "B", "C", "D"} {
		require.NoError(t, s.Insert(recordWithName(id, id), 100))
	}
	snapshot := s.Tree().RootHash()

	_, err := s.Update("C", map[string]*bson.Value{"name": ptr(bson.String("changed"))}, 200)
	require.NoError(t, err)
	assert.NotEqual(t, snapshot, s.Tree().RootHash())

	_, err = s.Update("C", map[string]*bson.Value{"name": ptr(bson.String("C"))}, 300)
	require.NoError(t, err)
	assert.Equal(t, snapshot, s.Tree().RootHash())
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	s := New("ab12")
	require.NoError(t, s.Insert(recordWithName("r1", "Alice"), 100))
	require.NoError(t, s.Insert(recordWithName("r2", "Bob"), 101))

	data := s.Encode()
	decoded, err := Decode("ab12", data)
	require.NoError(t, err)

	assert.Equal(t, s.Tree().RootHash(), decoded.Tree().RootHash())
	rec, ok := decoded.Get("r1")
	require.True(t, ok)
	assert.Equal(t, "Alice", rec["name"].Str)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	_, err := Decode("ab12", []byte("XXXX\x01\x00\x00\x00"))
	require.Error(t, err)
	assert.True(t, dberrors.Is(err, dberrors.ErrCorruptShard))
}

func TestDecodeRejectsTruncatedRecord(t *testing.T) {
	s := New("ab12")
	require.NoError(t, s.Insert(recordWithName("r1", "Alice"), 100))
	data := s.Encode()

	_, err := Decode("ab12", data[:len(data)-2])
	require.Error(t, err)
	assert.True(t, dberrors.Is(err, dberrors.ErrCorruptShard))
}

func TestRouteIDIsDeterministicAndFourHexChars(t *testing.T) {
	id := RouteID("some-record-id")
	assert.Len(t, id, 4)
	assert.Equal(t, id, RouteID("some-record-id"))
}

func ptr(v bson.Value) *bson.Value { return &v }
