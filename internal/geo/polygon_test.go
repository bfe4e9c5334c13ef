package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func square(minLon, minLat, maxLon, maxLat float64) []Point {
	return []Point{
		{minLon, minLat},
		{maxLon, minLat},
		{maxLon, maxLat},
		{minLon, maxLat},
	}
}

func TestPointValidate(t *testing.T) {
	tests := []struct {
		name    string
		pt      Point
		wantErr bool
	}{
		{"origin", Point{0, 0}, false},
		{"extreme corners", Point{-180, -90}, false},
		{"other extreme", Point{180, 90}, false},
		{"longitude too large", Point{180.0001, 0}, true},
		{"longitude too small", Point{-181, 0}, true},
		{"latitude too large", Point{0, 90.5}, true},
		{"latitude too small", Point{0, -91}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.pt.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidLocation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBoundaryContains(t *testing.T) {
	b := NewBoundary([][][]Point{{square(0, 0, 10, 10)}})
	require.NotNil(t, b)

	t.Run("interior point", func(t *testing.T) {
		assert.True(t, b.Contains(Point{5, 5}))
	})

	t.Run("exterior point", func(t *testing.T) {
		assert.False(t, b.Contains(Point{15, 5}))
		assert.False(t, b.Contains(Point{5, -1}))
	})

	t.Run("edge is contained", func(t *testing.T) {
		assert.True(t, b.Contains(Point{0, 5}))
		assert.True(t, b.Contains(Point{10, 5}))
		assert.True(t, b.Contains(Point{5, 0}))
		assert.True(t, b.Contains(Point{5, 10}))
	})

	t.Run("vertex is contained", func(t *testing.T) {
		assert.True(t, b.Contains(Point{0, 0}))
		assert.True(t, b.Contains(Point{10, 10}))
	})

	t.Run("adjacent squares both match their shared edge", func(t *testing.T) {
		left := NewBoundary([][][]Point{{square(0, 0, 10, 10)}})
		right := NewBoundary([][][]Point{{square(10, 0, 20, 10)}})
		shared := Point{10, 5}
		assert.True(t, left.Contains(shared))
		assert.True(t, right.Contains(shared))
	})
}

func TestBoundaryHoles(t *testing.T) {
	// 10x10 square with a 2x2 hole in the middle
	b := NewBoundary([][][]Point{{
		square(0, 0, 10, 10),
		square(4, 4, 6, 6),
	}})
	require.NotNil(t, b)

	assert.True(t, b.Contains(Point{1, 1}), "solid part")
	assert.False(t, b.Contains(Point{5, 5}), "inside the hole")
	assert.True(t, b.Contains(Point{4, 5}), "hole edge belongs to the zone")
	assert.True(t, b.Contains(Point{4, 4}), "hole vertex belongs to the zone")
}

func TestBoundaryMultiPolygon(t *testing.T) {
	b := NewBoundary([][][]Point{
		{square(0, 0, 2, 2)},
		{square(10, 10, 12, 12)},
	})
	require.NotNil(t, b)

	assert.True(t, b.Contains(Point{1, 1}))
	assert.True(t, b.Contains(Point{11, 11}))
	assert.False(t, b.Contains(Point{5, 5}), "gap between the parts")
}

func TestNewBoundaryDegenerate(t *testing.T) {
	t.Run("too few vertices", func(t *testing.T) {
		b := NewBoundary([][][]Point{{{{0, 0}, {1, 1}}}})
		assert.Nil(t, b)
	})

	t.Run("closed ring collapses to two vertices", func(t *testing.T) {
		b := NewBoundary([][][]Point{{{{0, 0}, {1, 1}, {0, 0}}}})
		assert.Nil(t, b)
	})

	t.Run("closing vertex is trimmed", func(t *testing.T) {
		ring := append(square(0, 0, 10, 10), Point{0, 0})
		b := NewBoundary([][][]Point{{ring}})
		require.NotNil(t, b)
		assert.Len(t, b.Polygons[0].Rings[0], 4)
		assert.True(t, b.Contains(Point{5, 5}))
	})

	t.Run("degenerate hole is dropped, outer kept", func(t *testing.T) {
		b := NewBoundary([][][]Point{{
			square(0, 0, 10, 10),
			{{4, 4}, {6, 6}},
		}})
		require.NotNil(t, b)
		assert.Len(t, b.Polygons[0].Rings, 1)
		assert.True(t, b.Contains(Point{5, 5}))
	})
}

func TestBoundaryArea(t *testing.T) {
	t.Run("square", func(t *testing.T) {
		b := NewBoundary([][][]Point{{square(0, 0, 10, 10)}})
		assert.InDelta(t, 100.0, b.Area(), 1e-9)
	})

	t.Run("hole subtracts", func(t *testing.T) {
		b := NewBoundary([][][]Point{{
			square(0, 0, 10, 10),
			square(4, 4, 6, 6),
		}})
		assert.InDelta(t, 96.0, b.Area(), 1e-9)
	})

	t.Run("multipolygon sums", func(t *testing.T) {
		b := NewBoundary([][][]Point{
			{square(0, 0, 2, 2)},
			{square(10, 10, 12, 12)},
		})
		assert.InDelta(t, 8.0, b.Area(), 1e-9)
	})

	t.Run("nil boundary", func(t *testing.T) {
		var b *Boundary
		assert.Zero(t, b.Area())
		assert.False(t, b.Contains(Point{0, 0}))
	})
}

func TestBBox(t *testing.T) {
	b := NewBoundary([][][]Point{{square(-5, -5, 5, 5)}})
	require.NotNil(t, b)
	assert.Equal(t, BBox{-5, -5, 5, 5}, b.BBox)

	assert.True(t, b.BBox.Contains(Point{0, 0}))
	assert.True(t, b.BBox.Contains(Point{-5, 5}))
	assert.False(t, b.BBox.Contains(Point{6, 0}))

	ext := b.BBox.Extend(BBox{0, 0, 10, 10})
	assert.Equal(t, BBox{-5, -5, 10, 10}, ext)
}
