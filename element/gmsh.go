package element

import "github.com/notargets/gocfd/utils"

// Gmsh element type numbers for the linear elements a volume model uses.
const (
	GmshLine     = 1
	GmshTriangle = 2
	GmshQuad     = 3
	GmshTet      = 4
	GmshHex      = 5
	GmshPrism    = 6
	GmshPyramid  = 7
	GmshPoint    = 15
)

// gocfd keeps its own gmsh code tables (gmshElementType2_2 and
// elementTypeToGmsh4 in DG3D/mesh/readers) unexported, so the linear subset
// used here is declared again against its exported utils.ElementType.
var gmshToType = map[int]utils.ElementType{
	GmshLine:     utils.Line,
	GmshTriangle: utils.Triangle,
	GmshQuad:     utils.Quad,
	GmshTet:      utils.Tet,
	GmshHex:      utils.Hex,
	GmshPrism:    utils.Prism,
	GmshPyramid:  utils.Pyramid,
	GmshPoint:    utils.Point,
}

// FromGmsh maps a gmsh element type number onto an ElementType.
func FromGmsh(code int) (utils.ElementType, bool) {
	et, ok := gmshToType[code]
	return et, ok
}

// ToGmsh maps an ElementType onto its gmsh element type number.
func ToGmsh(et utils.ElementType) (int, bool) {
	for code, t := range gmshToType {
		if t == et {
			return code, true
		}
	}
	return 0, false
}

// NodesPerGmshType returns the node count of a gmsh element type, or 0 if the
// type is not supported.
func NodesPerGmshType(code int) int {
	et, ok := gmshToType[code]
	if !ok {
		return 0
	}
	return et.GetNumNodes()
}

// DimensionOfGmshType returns the topological dimension of a gmsh element
// type, or -1 if the type is not supported.
func DimensionOfGmshType(code int) int {
	et, ok := gmshToType[code]
	if !ok {
		return -1
	}
	return et.GetDimension()
}
