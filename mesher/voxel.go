package mesher

import (
	"context"
	"fmt"

	"github.com/notargets/femodel/mesh"
	"github.com/notargets/femodel/utils"
	"github.com/notargets/femodel/volume"
	"gonum.org/v1/gonum/spatial/r3"
)

// VoxelMesher fills every labelled voxel with six tetrahedra. All cubes are
// split the same way (Kuhn), so neighbouring cubes share faces exactly and
// the mesh is conforming. Refinement criteria in Params have no effect.
type VoxelMesher struct{}

// kuhn lists the corner paths of the six tetrahedra of a unit cube. Corner c
// sits at offset (c&1, c>>1&1, c>>2&1); each tetrahedron walks from corner 0
// to corner 7 adding one axis at a time.
var kuhn = func() [6][4]int {
	var out [6][4]int
	perms := [6][3]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}
	for i, p := range perms {
		c := 0
		out[i][0] = c
		for j, axis := range p {
			c |= 1 << axis
			out[i][j+1] = c
		}
	}
	return out
}()

func (VoxelMesher) Generate(ctx context.Context, labels *volume.Labels, voxelSize [3]float64, _ Params) (*mesh.RawMesh, error) {
	nx, ny, nz := labels.Shape[0], labels.Shape[1], labels.Shape[2]
	for a, v := range voxelSize {
		if v <= 0 {
			return nil, fmt.Errorf("voxel size along axis %d must be positive, got %v", a, v)
		}
	}

	raw := &mesh.RawMesh{}
	// Lattice corner (a, b, c) sits at (a-0.5, b-0.5, c-0.5) in voxel units.
	vertex := make(map[int]int)
	corner := func(a, b, c int) int {
		key := a + (nx+1)*(b+(ny+1)*c)
		if v, ok := vertex[key]; ok {
			return v
		}
		v := len(raw.Vertices)
		vertex[key] = v
		raw.Vertices = append(raw.Vertices, r3.Vec{
			X: (float64(a) - 0.5) * voxelSize[0],
			Y: (float64(b) - 0.5) * voxelSize[1],
			Z: (float64(c) - 0.5) * voxelSize[2],
		})
		return v
	}

	for k := 0; k < nz; k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				label := labels.At(i, j, k)
				if label == 0 {
					continue
				}
				var cube [8]int
				for c := range cube {
					cube[c] = corner(i+c&1, j+c>>1&1, k+c>>2&1)
				}
				for _, path := range kuhn {
					tet := [4]int{cube[path[0]], cube[path[1]], cube[path[2]], cube[path[3]]}
					if signedVolume(raw.Vertices, tet) < 0 {
						tet[2], tet[3] = tet[3], tet[2]
					}
					raw.Tetrahedra = append(raw.Tetrahedra, tet)
					raw.TetrahedronRefs = append(raw.TetrahedronRefs, int(label))
				}
			}
		}
	}
	if len(raw.Tetrahedra) == 0 {
		return nil, fmt.Errorf("no labelled voxels to mesh")
	}

	fc, err := utils.NewFaceConnector(raw.Tetrahedra, raw.TetrahedronRefs)
	if err != nil {
		return nil, err
	}
	for _, f := range fc.BoundaryFaces() {
		raw.Triangles = append(raw.Triangles, f.Vertices)
		raw.TriangleRefs = append(raw.TriangleRefs, f.Label)
	}
	return raw, nil
}

func signedVolume(verts []r3.Vec, tet [4]int) float64 {
	a := r3.Sub(verts[tet[1]], verts[tet[0]])
	b := r3.Sub(verts[tet[2]], verts[tet[0]])
	c := r3.Sub(verts[tet[3]], verts[tet[0]])
	return r3.Dot(a, r3.Cross(b, c)) / 6
}
