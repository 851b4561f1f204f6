package bson

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromJSONDecodesIntegersAndFloats(t *testing.T) {
	rec, err := FromJSON([]byte(`{"_id":"a1","count":3,"ratio":1.5,"active":true,"tag":null}`))
	require.NoError(t, err)

	assert.Equal(t, KindString, rec["_id"].Kind)
	assert.Equal(t, KindInt64, rec["count"].Kind)
	assert.Equal(t, int64(3), rec["count"].Int64)
	assert.Equal(t, KindFloat64, rec["ratio"].Kind)
	assert.Equal(t, KindBool, rec["active"].Kind)
	assert.Equal(t, KindNull, rec["tag"].Kind)
}

func TestFromJSONDecodesNestedObjectsAndArrays(t *testing.T) {
	rec, err := FromJSON([]byte(`{"_id":"a1","tags":["x","y"],"meta":{"nested":1}}`))
	require.NoError(t, err)

	assert.Equal(t, KindArray, rec["tags"].Kind)
	require.Len(t, rec["tags"].Array, 2)
	assert.Equal(t, "x", rec["tags"].Array[0].Str)

	assert.Equal(t, KindObject, rec["meta"].Kind)
	assert.Equal(t, int64(1), rec["meta"].Object["nested"].Int64)
}

func TestFromJSONRejectsMalformedInput(t *testing.T) {
	_, err := FromJSON([]byte(`{not json`))
	require.Error(t, err)
}

func TestToJSONRoundTripsThroughFromJSON(t *testing.T) {
	rec := Record{
		"_id":   String("a1"),
		"count": Int64(7),
		"tags":  Array([]Value{String("x"), String("y")}),
	}

	data, err := ToJSON(rec)
	require.NoError(t, err)

	back, err := FromJSON(data)
	require.NoError(t, err)
	assert.True(t, Equal(rec["_id"], back["_id"]))
	assert.True(t, Equal(rec["count"], back["count"]))
	assert.True(t, Equal(rec["tags"], back["tags"]))
}
