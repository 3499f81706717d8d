package utils

import (
	"fmt"
	"sort"
)

// TetFaceVertices lists, for each local face of a tetrahedron, the local
// vertices that form it.
var TetFaceVertices = [4][3]int{
	{0, 1, 2}, // Face 0
	{0, 1, 3}, // Face 1
	{1, 2, 3}, // Face 2
	{0, 2, 3}, // Face 3
}

// FaceKey is the canonical (sorted) vertex triple of a triangular face.
type FaceKey [3]int

// NewFaceKey sorts the three vertices into canonical order.
func NewFaceKey(a, b, c int) FaceKey {
	k := FaceKey{a, b, c}
	sort.Ints(k[:])
	return k
}

// BoundaryFace is a tetrahedron face that separates a labelled region from a
// different label (or from nothing).
type BoundaryFace struct {
	Vertices [3]int // In the tetrahedron's local face order
	Element  int    // Owning tetrahedron
	LocalID  int    // Local face within the owner
	Label    int    // Label of the owning tetrahedron
}

// FaceConnector matches the faces of a labelled tetrahedral mesh
type FaceConnector struct {
	K      int      // Number of tetrahedra
	EToV   [][4]int // Tetrahedron to vertex connectivity
	Labels []int    // Label of each tetrahedron

	// EToE[k][f] is the tetrahedron across face f of k, -1 on the boundary
	EToE [][4]int
}

// NewFaceConnector builds face connectivity for labelled tetrahedra
func NewFaceConnector(EToV [][4]int, labels []int) (*FaceConnector, error) {
	if len(labels) != len(EToV) {
		return nil, fmt.Errorf("labels length %d does not match element count %d", len(labels), len(EToV))
	}
	fc := &FaceConnector{
		K:      len(EToV),
		EToV:   EToV,
		Labels: labels,
		EToE:   make([][4]int, len(EToV)),
	}
	if err := fc.buildConnectivity(); err != nil {
		return nil, err
	}
	return fc, nil
}

func (fc *FaceConnector) buildConnectivity() error {
	type owner struct{ elem, face int }
	faceMap := make(map[FaceKey]owner, 2*fc.K)

	for k := 0; k < fc.K; k++ {
		fc.EToE[k] = [4]int{-1, -1, -1, -1}
		for f, lv := range TetFaceVertices {
			v := fc.EToV[k]
			key := NewFaceKey(v[lv[0]], v[lv[1]], v[lv[2]])
			other, found := faceMap[key]
			if !found {
				faceMap[key] = owner{k, f}
				continue
			}
			if fc.EToE[other.elem][other.face] != -1 {
				return fmt.Errorf("face %v is shared by more than two elements", key)
			}
			fc.EToE[k][f] = other.elem
			fc.EToE[other.elem][other.face] = k
		}
	}
	return nil
}

// BoundaryFaces returns every face whose neighbour is missing or carries a
// different label, in element then local face order. Interfaces between two
// labels therefore appear once for each side.
func (fc *FaceConnector) BoundaryFaces() []BoundaryFace {
	var faces []BoundaryFace
	for k := 0; k < fc.K; k++ {
		for f, lv := range TetFaceVertices {
			nbr := fc.EToE[k][f]
			if nbr >= 0 && fc.Labels[nbr] == fc.Labels[k] {
				continue
			}
			v := fc.EToV[k]
			faces = append(faces, BoundaryFace{
				Vertices: [3]int{v[lv[0]], v[lv[1]], v[lv[2]]},
				Element:  k,
				LocalID:  f,
				Label:    fc.Labels[k],
			})
		}
	}
	return faces
}

// Verify checks that the connectivity is reciprocal
func (fc *FaceConnector) Verify() error {
	for k := 0; k < fc.K; k++ {
		for f := 0; f < 4; f++ {
			nbr := fc.EToE[k][f]
			if nbr < 0 {
				continue
			}
			var back bool
			for g := 0; g < 4; g++ {
				if fc.EToE[nbr][g] == k {
					back = true
					break
				}
			}
			if !back {
				return fmt.Errorf("element %d face %d points to %d which does not point back", k, f, nbr)
			}
		}
	}
	return nil
}
