package bson

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	rec := Record{
		"_id":    String("rec-1"),
		"name":   String("Alice"),
		"age":    Int64(30),
		"score":  Float64(3.5),
		"active": Bool(true),
		"tags":   Array([]Value{String("a"), String("b")}),
		"nested": Object(map[string]Value{
			"city": String("Metropolis"),
		}),
		"blob":  Bytes([]byte{1, 2, 3, 0, 4}),
		"empty": Null(),
		"ts":    Timestamp(1234567890),
	}

	encoded := Encode(rec)
	decoded, err := Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, len(rec), len(decoded))

	for k, v := range rec {
		got, ok := decoded[k]
		require.True(t, ok, "missing field %q", k)
		assert.True(t, Equal(v, got), "field %q mismatch: %+v != %+v", k, v, got)
	}
}

func TestDecodeTruncatedBuffer(t *testing.T) {
	rec := Record{"_id": String("x"), "a": Int64(1)}
	encoded := Encode(rec)

	_, err := Decode(encoded[:len(encoded)-2])
	assert.Error(t, err)
}

func TestDecodeEmptyRecord(t *testing.T) {
	encoded := Encode(Record{})
	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestCloneIsDeep(t *testing.T) {
	rec := Record{
		"arr": Array([]Value{Int64(1), Int64(2)}),
	}
	cloned := rec.Clone()
	cloned["arr"].Array[0] = Int64(99)
	assert.Equal(t, int64(1), rec["arr"].Array[0].Int64)
}
