package element

import (
	"fmt"

	"github.com/notargets/gocfd/utils"
	"gonum.org/v1/gonum/spatial/r3"
)

// Dimension selects which part of a tissue an operation works on: its
// bounding surface (triangles) or its volume (tetrahedra).
type Dimension uint8

const (
	Surface Dimension = 2
	Volume  Dimension = 3
)

// Point is the dimension of the synthetic entities that hold sensors. It is
// not a valid tissue Dimension.
const Point = 0

// ParseDimension converts a raw dimension flag into a Dimension.
func ParseDimension(dim int) (Dimension, error) {
	if dim != int(Surface) && dim != int(Volume) {
		return 0, fmt.Errorf("dimension must be 2 (surface) or 3 (volume), got %d", dim)
	}
	return Dimension(dim), nil
}

func (d Dimension) Valid() bool {
	return d == Surface || d == Volume
}

func (d Dimension) String() string {
	switch d {
	case Surface:
		return "surface"
	case Volume:
		return "volume"
	default:
		return fmt.Sprintf("Dimension(%d)", uint8(d))
	}
}

// Preposition is used in log lines: sensors are placed "on" a surface and
// "in" a volume.
func (d Dimension) Preposition() string {
	if d == Surface {
		return "on"
	}
	return "in"
}

// ElementType is the linear element that discretizes this dimension.
func (d Dimension) ElementType() utils.ElementType {
	switch d {
	case Surface:
		return utils.Triangle
	case Volume:
		return utils.Tet
	default:
		return utils.Unknown
	}
}

// Barycenter returns the centroid of the given element vertices.
func Barycenter(verts []r3.Vec) r3.Vec {
	var c r3.Vec
	if len(verts) == 0 {
		return c
	}
	for _, v := range verts {
		c = r3.Add(c, v)
	}
	return r3.Scale(1/float64(len(verts)), c)
}
