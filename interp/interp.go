// Package interp evaluates gridded volumes at arbitrary points, the way a
// rectilinear grid interpolator with a fill value does: points outside the
// grid get the fill value, points inside get the nearest grid value or a
// trilinear blend.
package interp

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/notargets/femodel/affine"
	"github.com/notargets/femodel/volume"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Method selects how values between grid points are computed.
type Method int

const (
	Linear Method = iota
	Nearest
)

func (m Method) String() string {
	switch m {
	case Linear:
		return "linear"
	case Nearest:
		return "nearest"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

var ErrGrid = errors.New("interp: invalid grid")

// RegularGrid holds values on the tensor product of three strictly
// increasing coordinate axes.
type RegularGrid struct {
	axes   [3][]float64
	values []float64 // first axis fastest, component slowest
	ncomp  int
}

// NewRegularGrid checks and wraps grid values. values holds ncomp blocks of
// len(axes[0])·len(axes[1])·len(axes[2]) values, first axis varying
// fastest inside each block.
func NewRegularGrid(axes [3][]float64, values []float64, ncomp int) (*RegularGrid, error) {
	if ncomp < 1 {
		return nil, fmt.Errorf("%w: %d components", ErrGrid, ncomp)
	}
	n := 1
	for a, ax := range axes {
		if len(ax) == 0 {
			return nil, fmt.Errorf("%w: axis %d is empty", ErrGrid, a)
		}
		if floats.HasNaN(ax) {
			return nil, fmt.Errorf("%w: axis %d has NaN coordinates", ErrGrid, a)
		}
		for i := 1; i < len(ax); i++ {
			if ax[i] <= ax[i-1] {
				return nil, fmt.Errorf("%w: axis %d is not strictly increasing", ErrGrid, a)
			}
		}
		n *= len(ax)
	}
	if len(values) != n*ncomp {
		return nil, fmt.Errorf("%w: %d values for %d points with %d components", ErrGrid, len(values), n, ncomp)
	}
	return &RegularGrid{axes: axes, values: values, ncomp: ncomp}, nil
}

// NComp returns the number of components per grid point.
func (g *RegularGrid) NComp() int { return g.ncomp }

// Axes returns the grid coordinates along each axis.
func (g *RegularGrid) Axes() [3][]float64 { return g.axes }

func (g *RegularGrid) at(i, j, k, c int) float64 {
	nx, ny, nz := len(g.axes[0]), len(g.axes[1]), len(g.axes[2])
	return g.values[i+nx*(j+ny*k)+c*nx*ny*nz]
}

// locate returns the lower cell index along one axis and the fractional
// position inside the cell. ok is false outside the axis range. A single
// coordinate axis always yields index 0.
func locate(ax []float64, x float64) (i int, t float64, ok bool) {
	n := len(ax)
	if n == 1 {
		return 0, 0, !math.IsNaN(x)
	}
	if !(x >= ax[0] && x <= ax[n-1]) {
		return 0, 0, false
	}
	// Largest i with ax[i] <= x, kept inside the last cell.
	i = sort.SearchFloat64s(ax, x)
	if i == n || ax[i] != x {
		i--
	}
	i = min(max(i, 0), n-2)
	return i, (x - ax[i]) / (ax[i+1] - ax[i]), true
}

// Interpolate evaluates the grid at points. The result holds NComp values
// per point, point after point. Points outside the grid along any axis get
// fill, which must have NComp values.
func (g *RegularGrid) Interpolate(points []r3.Vec, method Method, fill []float64) ([]float64, error) {
	if len(fill) != g.ncomp {
		return nil, fmt.Errorf("interp: fill has %d values, grid has %d components", len(fill), g.ncomp)
	}
	if method != Linear && method != Nearest {
		return nil, fmt.Errorf("interp: unknown method %v", method)
	}
	out := make([]float64, len(points)*g.ncomp)
	for p, pt := range points {
		dst := out[p*g.ncomp : (p+1)*g.ncomp]
		var (
			idx  [3]int
			frac [3]float64
			in   = true
		)
		for a, x := range [3]float64{pt.X, pt.Y, pt.Z} {
			var ok bool
			idx[a], frac[a], ok = locate(g.axes[a], x)
			in = in && ok
		}
		if !in {
			copy(dst, fill)
			continue
		}
		if method == Nearest {
			for a := range idx {
				// Midpoints round down.
				if frac[a] > 0.5 {
					idx[a]++
				}
			}
			for c := range dst {
				dst[c] = g.at(idx[0], idx[1], idx[2], c)
			}
			continue
		}
		for c := range dst {
			var v float64
			for corner := 0; corner < 8; corner++ {
				w := 1.0
				var ijk [3]int
				for a := 0; a < 3; a++ {
					hi := corner>>a&1 == 1
					if hi {
						w *= frac[a]
					} else {
						w *= 1 - frac[a]
					}
					ijk[a] = idx[a]
					if hi {
						ijk[a]++
					}
				}
				if w == 0 {
					continue
				}
				v += w * g.at(ijk[0], ijk[1], ijk[2], c)
			}
			dst[c] = v
		}
	}
	return out, nil
}

// axisCoords returns the world coordinates of n voxels spaced step apart
// from origin.
func axisCoords(origin, step float64, n int) []float64 {
	if n == 1 {
		return []float64{origin}
	}
	return floats.Span(make([]float64, n), origin, origin+step*float64(n-1))
}

// FromAffineGrid places a voxel grid in world space using an axis aligned
// affine. Axes that the affine flips are reversed, together with the
// values, so every grid axis increases.
func FromAffineGrid(grid *volume.Grid, a mat.Matrix) (*RegularGrid, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	if !affine.IsAxisAligned(a, 1e-9) {
		return nil, affine.ErrNotAxisAligned
	}
	origin := affine.Translation(a)
	o := [3]float64{origin.X, origin.Y, origin.Z}
	var (
		axes [3][]float64
		flip [3]bool
	)
	for d := 0; d < 3; d++ {
		step := a.At(d, d)
		if step == 0 {
			return nil, fmt.Errorf("%w: zero voxel size along axis %d", ErrGrid, d)
		}
		n := grid.Shape[d]
		if step < 0 {
			flip[d] = true
			axes[d] = axisCoords(o[d]+step*float64(n-1), -step, n)
		} else {
			axes[d] = axisCoords(o[d], step, n)
		}
	}
	nx, ny, nz := grid.Shape[0], grid.Shape[1], grid.Shape[2]
	values := make([]float64, len(grid.Data))
	for c := 0; c < grid.NComp; c++ {
		for k := 0; k < nz; k++ {
			for j := 0; j < ny; j++ {
				for i := 0; i < nx; i++ {
					si, sj, sk := i, j, k
					if flip[0] {
						si = nx - 1 - i
					}
					if flip[1] {
						sj = ny - 1 - j
					}
					if flip[2] {
						sk = nz - 1 - k
					}
					values[i+nx*(j+ny*k)+c*nx*ny*nz] = grid.At(si, sj, sk, c)
				}
			}
		}
	}
	return NewRegularGrid(axes, values, grid.NComp)
}
