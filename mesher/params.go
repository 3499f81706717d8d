// Package mesher turns labelled voxel volumes into tetrahedral meshes.
package mesher

import (
	"context"
	"strconv"

	"github.com/notargets/femodel/mesh"
	"github.com/notargets/femodel/volume"
)

// Params are the volume meshing criteria. Unset fields are left to the
// mesher's defaults and are not recorded.
type Params struct {
	Lloyd   *bool `json:"lloyd,omitempty" yaml:"lloyd,omitempty"`
	ODT     *bool `json:"odt,omitempty" yaml:"odt,omitempty"`
	Perturb *bool `json:"perturb,omitempty" yaml:"perturb,omitempty"`
	Exude   *bool `json:"exude,omitempty" yaml:"exude,omitempty"`

	MaxEdgeSizeAtFeatureEdges    *float64 `json:"max_edge_size_at_feature_edges,omitempty" yaml:"max_edge_size_at_feature_edges,omitempty"`
	MinFacetAngle                *float64 `json:"min_facet_angle,omitempty" yaml:"min_facet_angle,omitempty"`
	MaxRadiusSurfaceDelaunayBall *float64 `json:"max_radius_surface_delaunay_ball,omitempty" yaml:"max_radius_surface_delaunay_ball,omitempty"`
	MaxCellCircumradius          *float64 `json:"max_cell_circumradius,omitempty" yaml:"max_cell_circumradius,omitempty"`
	MaxFacetDistance             *float64 `json:"max_facet_distance,omitempty" yaml:"max_facet_distance,omitempty"`
	MaxCircumradiusEdgeRatio     *float64 `json:"max_circumradius_edge_ratio,omitempty" yaml:"max_circumradius_edge_ratio,omitempty"`

	Seed *int `json:"seed,omitempty" yaml:"seed,omitempty"`
}

func Bool(v bool) *bool { return &v }

func Float(v float64) *float64 { return &v }

func Int(v int) *int { return &v }

// Flags renders the set parameters as --name=value command line flags, in
// declaration order.
func (p Params) Flags() []string {
	var out []string
	addBool := func(name string, v *bool) {
		if v != nil {
			out = append(out, "--"+name+"="+strconv.FormatBool(*v))
		}
	}
	addFloat := func(name string, v *float64) {
		if v != nil {
			out = append(out, "--"+name+"="+strconv.FormatFloat(*v, 'g', -1, 64))
		}
	}
	addBool("lloyd", p.Lloyd)
	addBool("odt", p.ODT)
	addBool("perturb", p.Perturb)
	addBool("exude", p.Exude)
	addFloat("max-edge-size-at-feature-edges", p.MaxEdgeSizeAtFeatureEdges)
	addFloat("min-facet-angle", p.MinFacetAngle)
	addFloat("max-radius-surface-delaunay-ball", p.MaxRadiusSurfaceDelaunayBall)
	addFloat("max-cell-circumradius", p.MaxCellCircumradius)
	addFloat("max-facet-distance", p.MaxFacetDistance)
	addFloat("max-circumradius-edge-ratio", p.MaxCircumradiusEdgeRatio)
	if p.Seed != nil {
		out = append(out, "--seed="+strconv.Itoa(*p.Seed))
	}
	return out
}

// Mesher generates a raw mesh from labels. Vertex coordinates are in voxel
// units scaled by voxelSize, with voxel (i, j, k) centred on
// (i, j, k)·voxelSize. Element references are label values.
type Mesher interface {
	Generate(ctx context.Context, labels *volume.Labels, voxelSize [3]float64, params Params) (*mesh.RawMesh, error)
}
