package fem

import (
	"errors"
	"fmt"

	"github.com/notargets/femodel/affine"
	"github.com/notargets/femodel/element"
	"github.com/notargets/femodel/interp"
	"github.com/notargets/femodel/mesh"
	"github.com/notargets/femodel/nifti"
	"github.com/notargets/femodel/volume"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultFormula is recorded for fields added without a formula.
const DefaultFormula = "1"

func tissueBarycenters(s *mesh.Session, entities []int, dim element.Dimension) ([]int, []r3.Vec, error) {
	var (
		tags    []int
		centers []r3.Vec
	)
	for _, e := range entities {
		t, c, err := s.Barycenters(int(dim), e)
		if err != nil {
			return nil, nil, err
		}
		tags = append(tags, t...)
		centers = append(centers, c...)
	}
	return tags, centers, nil
}

func (m *Model) barycenters(tissue string, dim element.Dimension) ([]int, []r3.Vec, error) {
	entities, err := m.entitiesOf(tissue, dim)
	if err != nil {
		return nil, nil, err
	}
	var (
		tags    []int
		centers []r3.Vec
	)
	err = mesh.WithSession(m.MeshPath(), func(s *mesh.Session) error {
		tags, centers, err = tissueBarycenters(s, entities, dim)
		return err
	})
	return tags, centers, err
}

// Elements returns the triangle (Surface) or tetrahedron (Volume) tags of a
// tissue.
func (m *Model) Elements(tissue string, dim element.Dimension) ([]int, error) {
	tags, _, err := m.barycenters(tissue, dim)
	return tags, err
}

// ElementBarycenters returns the centroid of every element Elements
// returns, in the same order.
func (m *Model) ElementBarycenters(tissue string, dim element.Dimension) ([]r3.Vec, error) {
	_, centers, err := m.barycenters(tissue, dim)
	return centers, err
}

// FieldFromElements sets a field on the volume elements of a tissue. vals
// holds the same number of values (1, 3 or 9) for each element of elems;
// the other elements of the tissue get fill. The data is written to the
// mesh as the view "<tissue>_<name>".
func (m *Model) FieldFromElements(name, tissue string, elems []int, vals, fill []float64, formula string) (Field, error) {
	t, err := m.tissue(tissue)
	if err != nil {
		return Field{}, err
	}
	if err := checkName("field", name); err != nil {
		return Field{}, err
	}
	if _, ok := t.Fields[name]; ok {
		return Field{}, fmt.Errorf("%w: field %q of tissue %q", ErrDuplicateName, name, tissue)
	}
	if len(elems) == 0 || len(vals)%len(elems) != 0 {
		return Field{}, fmt.Errorf("%w: %d values for %d elements", ErrValueArity, len(vals), len(elems))
	}
	ncomp := len(vals) / len(elems)
	ftype, ok := fieldTypeOf(ncomp)
	if !ok {
		return Field{}, fmt.Errorf("%w: %d values per element", ErrValueArity, ncomp)
	}
	if len(fill) != ncomp {
		return Field{}, fmt.Errorf("%w: fill has %d values, elements have %d", ErrValueArity, len(fill), ncomp)
	}
	given := make(map[int]struct{}, len(elems))
	for _, e := range elems {
		if _, dup := given[e]; dup {
			return Field{}, fmt.Errorf("%w: element %d is listed twice", ErrInvalidValue, e)
		}
		given[e] = struct{}{}
	}
	if formula == "" {
		formula = DefaultFormula
	}

	var field Field
	err = mesh.WithSession(m.MeshPath(), func(s *mesh.Session) error {
		all, _, err := tissueBarycenters(s, t.Vol.Entities, element.Volume)
		if err != nil {
			return err
		}
		tags := append(make([]int, 0, len(all)), elems...)
		data := append(make([]float64, 0, len(all)*ncomp), vals...)
		filled := 0
		for _, e := range all {
			if _, ok := given[e]; ok {
				continue
			}
			tags = append(tags, e)
			data = append(data, fill...)
			filled++
		}
		if filled > 0 {
			m.log.Debugf("Filling %d elements of tissue %q", filled, tissue)
		}
		view, err := s.AddView(tissue + "_" + name)
		if err != nil {
			return err
		}
		if err := s.AddModelData(view, tags, data, ncomp); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		field = Field{Type: ftype, View: view, Formula: formula}
		return s.Save()
	})
	if err != nil {
		return Field{}, err
	}
	t.Fields[name] = field
	if err := m.Save(); err != nil {
		return Field{}, err
	}
	m.log.Infof("Field %q added in tissue %q", name, tissue)
	return field, nil
}

// FieldFromArray samples a gridded field at the centroids of a tissue's
// tetrahedra. The affine maps voxel indices to millimetres. Centroids
// outside the grid get fill.
func (m *Model) FieldFromArray(name string, grid *volume.Grid, a mat.Matrix, tissue string, fill []float64, formula string, nearest bool) (Field, error) {
	if grid == nil {
		return Field{}, fmt.Errorf("%w: no field data", ErrInvalidShape)
	}
	if err := grid.Validate(); err != nil {
		return Field{}, fmt.Errorf("%w: %v", ErrInvalidShape, err)
	}
	am, err := affine.NormalizeToMeters(a)
	if err != nil {
		return Field{}, fmt.Errorf("%w: %v", ErrInvalidShape, err)
	}
	if _, err := m.tissue(tissue); err != nil {
		return Field{}, err
	}
	if len(fill) != grid.NComp {
		return Field{}, fmt.Errorf("%w: fill has %d values, the field has %d", ErrValueArity, len(fill), grid.NComp)
	}
	method := interp.Linear
	if nearest {
		method = interp.Nearest
	}
	elems, vals, err := m.interpolateField(tissue, grid, am, method, fill)
	if err != nil {
		return Field{}, err
	}
	return m.FieldFromElements(name, tissue, elems, vals, fill, formula)
}

// interpolateField evaluates grid, placed by the metre affine am, at the
// tissue's tetrahedron centroids.
func (m *Model) interpolateField(tissue string, grid *volume.Grid, am *mat.Dense, method interp.Method, fill []float64) ([]int, []float64, error) {
	g, err := interp.FromAffineGrid(grid, am)
	if err != nil {
		if errors.Is(err, affine.ErrNotAxisAligned) {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidShape, err)
	}
	elems, centers, err := m.barycenters(tissue, element.Volume)
	if err != nil {
		return nil, nil, err
	}
	vals, err := g.Interpolate(centers, method, fill)
	if err != nil {
		return nil, nil, err
	}
	m.log.Debugf("Field sampled at %d centroids of tissue %q (%v)", len(elems), tissue, method)
	return elems, vals, nil
}

// FieldFromImage samples the 3D or 4D field stored in a NIfTI file.
func (m *Model) FieldFromImage(name, path, tissue string, fill []float64, formula string, nearest bool) (Field, error) {
	img, err := nifti.Load(path)
	if err != nil {
		return Field{}, err
	}
	grid, err := volume.GridFromImage(img)
	if err != nil {
		return Field{}, imageError(err)
	}
	return m.FieldFromArray(name, grid, img.Affine, tissue, fill, formula, nearest)
}

// FieldValues reads a field back from the mesh: the element tags, their
// values (NComp per element) and NComp.
func (m *Model) FieldValues(tissue, name string) ([]int, []float64, int, error) {
	t, err := m.tissue(tissue)
	if err != nil {
		return nil, nil, 0, err
	}
	if _, ok := t.Fields[name]; !ok {
		return nil, nil, 0, fmt.Errorf("%w: tissue %q has no field %q", ErrInvalidValue, tissue, name)
	}
	var v mesh.View
	err = mesh.WithSession(m.MeshPath(), func(s *mesh.Session) error {
		var ok bool
		if v, ok = s.ViewByName(tissue + "_" + name); !ok {
			return fmt.Errorf("%w: view %q is missing from %s", ErrInvalidValue, tissue+"_"+name, m.MeshPath())
		}
		return nil
	})
	if err != nil {
		return nil, nil, 0, err
	}
	return v.ElementTags, v.Data, v.NComp, nil
}
