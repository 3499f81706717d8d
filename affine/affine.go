package affine

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// MillimetersToMeters is the scale applied once, where image data enters the
// mesh domain.
const MillimetersToMeters = 1e-3

// ErrInvalidShape is returned for affines that are neither 3×4 nor 4×4.
var ErrInvalidShape = errors.New("affine: expects shape (3,4) or (4,4)")

// ErrNotAxisAligned is returned when an affine rotates or shears the grid.
var ErrNotAxisAligned = errors.New("affine: linear part is not axis aligned")

// Normalize returns the homogeneous 4×4 form of a 3×4 or 4×4 affine. The
// bottom row is always reset to [0 0 0 1].
func Normalize(m mat.Matrix) (*mat.Dense, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: got nil matrix", ErrInvalidShape)
	}
	r, c := m.Dims()
	if c != 4 || (r != 3 && r != 4) {
		return nil, fmt.Errorf("%w: got (%d,%d)", ErrInvalidShape, r, c)
	}
	a := mat.NewDense(4, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			a.Set(i, j, m.At(i, j))
		}
	}
	a.Set(3, 3, 1)
	return a, nil
}

// ToMeters left-multiplies a by diag(1e-3, 1e-3, 1e-3, 1).
func ToMeters(a mat.Matrix) *mat.Dense {
	scale := mat.NewDiagDense(4, []float64{
		MillimetersToMeters, MillimetersToMeters, MillimetersToMeters, 1,
	})
	var out mat.Dense
	out.Mul(scale, a)
	return &out
}

// NormalizeToMeters normalizes a millimeter affine and rescales it to meters.
func NormalizeToMeters(m mat.Matrix) (*mat.Dense, error) {
	a, err := Normalize(m)
	if err != nil {
		return nil, err
	}
	return ToMeters(a), nil
}

// Identity returns the 4×4 identity affine.
func Identity() *mat.Dense {
	a := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		a.Set(i, i, 1)
	}
	return a
}

// Linear returns the 3×3 linear part of a homogeneous affine.
func Linear(a mat.Matrix) *mat.Dense {
	l := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			l.Set(i, j, a.At(i, j))
		}
	}
	return l
}

// Translation returns the translation column of a homogeneous affine.
func Translation(a mat.Matrix) r3.Vec {
	return r3.Vec{X: a.At(0, 3), Y: a.At(1, 3), Z: a.At(2, 3)}
}

// Apply maps p through the affine.
func Apply(a mat.Matrix, p r3.Vec) r3.Vec {
	return r3.Vec{
		X: a.At(0, 0)*p.X + a.At(0, 1)*p.Y + a.At(0, 2)*p.Z + a.At(0, 3),
		Y: a.At(1, 0)*p.X + a.At(1, 1)*p.Y + a.At(1, 2)*p.Z + a.At(1, 3),
		Z: a.At(2, 0)*p.X + a.At(2, 1)*p.Y + a.At(2, 2)*p.Z + a.At(2, 3),
	}
}

// ApplyIndex maps the voxel index (i, j, k) to physical space.
func ApplyIndex(a mat.Matrix, i, j, k int) r3.Vec {
	return Apply(a, r3.Vec{X: float64(i), Y: float64(j), Z: float64(k)})
}

// VoxelSizes returns the length of each column of the linear part.
func VoxelSizes(a mat.Matrix) [3]float64 {
	var sizes [3]float64
	for j := 0; j < 3; j++ {
		var s float64
		for i := 0; i < 3; i++ {
			s += a.At(i, j) * a.At(i, j)
		}
		sizes[j] = math.Sqrt(s)
	}
	return sizes
}

// IsAxisAligned reports whether every off-diagonal entry of the linear part
// is within tol of zero, relative to the largest voxel size.
func IsAxisAligned(a mat.Matrix, tol float64) bool {
	sizes := VoxelSizes(a)
	scale := math.Max(sizes[0], math.Max(sizes[1], sizes[2]))
	if scale == 0 {
		return false
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if i != j && math.Abs(a.At(i, j)) > tol*scale {
				return false
			}
		}
	}
	return true
}

// Translate returns a with its origin moved to voxel index offset, i.e.
// a · T(offset).
func Translate(a mat.Matrix, offset [3]int) *mat.Dense {
	t := Identity()
	for i := 0; i < 3; i++ {
		t.Set(i, 3, float64(offset[i]))
	}
	var out mat.Dense
	out.Mul(a, t)
	return &out
}
