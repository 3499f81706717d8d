package volume

import (
	"fmt"

	"github.com/notargets/femodel/nifti"
)

// Grid is a voxel field: one value per voxel for scalars, NComp values for
// vectors (3) and tensors (9). The first axis varies fastest and the
// component axis slowest, as in 4D NIfTI files.
type Grid struct {
	Shape [3]int
	NComp int
	Data  []float64
}

// NewGrid allocates a zeroed grid.
func NewGrid(nx, ny, nz, ncomp int) *Grid {
	return &Grid{
		Shape: [3]int{nx, ny, nz},
		NComp: ncomp,
		Data:  make([]float64, nx*ny*nz*ncomp),
	}
}

// NumVoxels is the number of spatial voxels.
func (g *Grid) NumVoxels() int { return g.Shape[0] * g.Shape[1] * g.Shape[2] }

// Index returns the flat offset of component c of voxel (i, j, k).
func (g *Grid) Index(i, j, k, c int) int {
	return i + g.Shape[0]*(j+g.Shape[1]*k) + c*g.NumVoxels()
}

func (g *Grid) At(i, j, k, c int) float64 { return g.Data[g.Index(i, j, k, c)] }

func (g *Grid) Set(i, j, k, c int, v float64) { g.Data[g.Index(i, j, k, c)] = v }

// Validate checks that the grid holds scalar, vector or tensor values and
// that the data length matches the shape.
func (g *Grid) Validate() error {
	switch g.NComp {
	case 1, 3, 9:
	default:
		return fmt.Errorf("%w: field must hold 1, 3 or 9 components per voxel, got %d", ErrShape, g.NComp)
	}
	for a, s := range g.Shape {
		if s < 1 {
			return fmt.Errorf("%w: axis %d has size %d", ErrShape, a, s)
		}
	}
	if len(g.Data) != g.NumVoxels()*g.NComp {
		return fmt.Errorf("%w: shape %v×%d needs %d values, got %d", ErrShape, g.Shape, g.NComp, g.NumVoxels()*g.NComp, len(g.Data))
	}
	return nil
}

// GridFromImage converts a 3D (scalar) or 4D (last axis 1, 3 or 9) image.
func GridFromImage(img *nifti.Image) (*Grid, error) {
	var ncomp int
	switch len(img.Shape) {
	case 3:
		ncomp = 1
	case 4:
		ncomp = img.Shape[3]
	default:
		return nil, fmt.Errorf("%w: field must be a 3D or 4D array, got %dD", ErrShape, len(img.Shape))
	}
	g := &Grid{
		Shape: [3]int{img.Shape[0], img.Shape[1], img.Shape[2]},
		NComp: ncomp,
		Data:  append([]float64(nil), img.Data...),
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}
