package mesh

import (
	"fmt"
	"strings"

	"github.com/notargets/femodel/element"
	"github.com/notargets/femodel/utils"
)

// String returns a summary of the model: counts, extents, entities,
// physical groups and views.
func (s *Session) String() string {
	if s.closed {
		return "=== Mesh (closed) ===\n"
	}
	var sb strings.Builder

	sb.WriteString("=== Mesh Summary ===\n")
	if s.path != "" {
		sb.WriteString(fmt.Sprintf("  File: %s\n", s.path))
	}

	sb.WriteString("\n--- Size ---\n")
	sb.WriteString(fmt.Sprintf("  Nodes: %d\n", s.NumNodes()))
	sb.WriteString(fmt.Sprintf("  Points: %d\n", s.NumElements(0)))
	sb.WriteString(fmt.Sprintf("  Triangles: %d\n", s.NumElements(2)))
	sb.WriteString(fmt.Sprintf("  Tetrahedra: %d\n", s.NumElements(3)))

	if len(s.coords) > 0 {
		var xs, ys, zs []float64
		for _, p := range s.coords {
			xs = append(xs, p.X)
			ys = append(ys, p.Y)
			zs = append(zs, p.Z)
		}
		sb.WriteString("\n--- Extent ---\n")
		for _, ax := range []struct {
			name string
			v    []float64
		}{{"X", xs}, {"Y", ys}, {"Z", zs}} {
			lo, hi := utils.MinMax(ax.v)
			sb.WriteString(fmt.Sprintf("  %s range: [%.4e, %.4e]\n", ax.name, lo, hi))
		}
	}

	sb.WriteString("\n--- Entities ---\n")
	for d := 0; d < 4; d++ {
		if len(s.entities[d]) == 0 {
			continue
		}
		sb.WriteString(fmt.Sprintf("  %dD: %v\n", d, sortedKeys(s.entities[d])))
	}

	if groups := s.PhysicalGroups(-1); len(groups) > 0 {
		sb.WriteString("\n--- Physical Groups ---\n")
		for _, g := range groups {
			kind := fmt.Sprintf("%dD", g.Dim)
			if g.Dim == int(element.Surface) || g.Dim == int(element.Volume) {
				kind = element.Dimension(g.Dim).String()
			} else if g.Dim == element.Point {
				kind = "point"
			}
			sb.WriteString(fmt.Sprintf("  %-8s %4d  %-20q entities %v\n", kind, g.Tag, g.Name, g.Entities))
		}
	}

	if len(s.views) > 0 {
		sb.WriteString("\n--- Views ---\n")
		for _, v := range s.views {
			sb.WriteString(fmt.Sprintf("  %d %q: %d elements × %d components\n", v.Tag, v.Name, len(v.ElementTags), v.NComp))
		}
	}
	return sb.String()
}
