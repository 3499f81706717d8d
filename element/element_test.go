package element

import (
	"testing"

	"github.com/notargets/gocfd/utils"
	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestParseDimension(t *testing.T) {
	d, err := ParseDimension(2)
	assert.NoError(t, err)
	assert.Equal(t, Surface, d)
	d, err = ParseDimension(3)
	assert.NoError(t, err)
	assert.Equal(t, Volume, d)
	for _, bad := range []int{-1, 0, 1, 4, 258} {
		_, err = ParseDimension(bad)
		assert.Error(t, err, "dim %d", bad)
	}
}

func TestDimensionElementType(t *testing.T) {
	assert.Equal(t, utils.Triangle, Surface.ElementType())
	assert.Equal(t, utils.Tet, Volume.ElementType())
	assert.Equal(t, "on", Surface.Preposition())
	assert.Equal(t, "in", Volume.Preposition())
	assert.Equal(t, "volume", Volume.String())
}

func TestGmshTypes(t *testing.T) {
	for _, code := range []int{GmshPoint, GmshLine, GmshTriangle, GmshTet} {
		et, ok := FromGmsh(code)
		assert.True(t, ok)
		back, ok := ToGmsh(et)
		assert.True(t, ok)
		assert.Equal(t, code, back)
	}
	assert.Equal(t, 4, NodesPerGmshType(GmshTet))
	assert.Equal(t, 3, NodesPerGmshType(GmshTriangle))
	assert.Equal(t, 1, NodesPerGmshType(GmshPoint))
	assert.Equal(t, 0, NodesPerGmshType(99))
	assert.Equal(t, 3, DimensionOfGmshType(GmshTet))
	assert.Equal(t, 0, DimensionOfGmshType(GmshPoint))
	assert.Equal(t, -1, DimensionOfGmshType(99))
}

func TestBarycenter(t *testing.T) {
	c := Barycenter([]r3.Vec{{X: 0}, {X: 1}, {Y: 1}, {Z: 1}})
	assert.InDelta(t, 0.25, c.X, 1e-15)
	assert.InDelta(t, 0.25, c.Y, 1e-15)
	assert.InDelta(t, 0.25, c.Z, 1e-15)
	assert.Equal(t, r3.Vec{}, Barycenter(nil))
}
