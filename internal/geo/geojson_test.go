package geo

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGeoJSON(t *testing.T) {
	t.Run("polygon", func(t *testing.T) {
		raw := json.RawMessage(`{"type":"Polygon","coordinates":[[[0,0],[10,0],[10,10],[0,10],[0,0]]]}`)
		b, err := ParseGeoJSON(raw)
		require.NoError(t, err)
		require.NotNil(t, b)
		assert.True(t, b.Contains(Point{5, 5}))
		assert.False(t, b.Contains(Point{11, 5}))
	})

	t.Run("polygon with hole", func(t *testing.T) {
		raw := json.RawMessage(`{"type":"Polygon","coordinates":[
			[[0,0],[10,0],[10,10],[0,10],[0,0]],
			[[4,4],[6,4],[6,6],[4,6],[4,4]]]}`)
		b, err := ParseGeoJSON(raw)
		require.NoError(t, err)
		assert.False(t, b.Contains(Point{5, 5}))
		assert.True(t, b.Contains(Point{1, 1}))
	})

	t.Run("multipolygon", func(t *testing.T) {
		raw := json.RawMessage(`{"type":"MultiPolygon","coordinates":[
			[[[0,0],[2,0],[2,2],[0,2],[0,0]]],
			[[[10,10],[12,10],[12,12],[10,12],[10,10]]]]}`)
		b, err := ParseGeoJSON(raw)
		require.NoError(t, err)
		assert.True(t, b.Contains(Point{1, 1}))
		assert.True(t, b.Contains(Point{11, 11}))
		assert.False(t, b.Contains(Point{5, 5}))
	})

	t.Run("null geometry", func(t *testing.T) {
		b, err := ParseGeoJSON(json.RawMessage(`null`))
		require.NoError(t, err)
		assert.Nil(t, b)

		b, err = ParseGeoJSON(nil)
		require.NoError(t, err)
		assert.Nil(t, b)
	})

	t.Run("unsupported type", func(t *testing.T) {
		_, err := ParseGeoJSON(json.RawMessage(`{"type":"Point","coordinates":[0,0]}`))
		assert.Error(t, err)
	})

	t.Run("malformed coordinates", func(t *testing.T) {
		_, err := ParseGeoJSON(json.RawMessage(`{"type":"Polygon","coordinates":"nope"}`))
		assert.Error(t, err)
	})
}
