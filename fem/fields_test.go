package fem

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/notargets/femodel/affine"
	"github.com/notargets/femodel/element"
	"github.com/notargets/femodel/mesh"
	"github.com/notargets/femodel/nifti"
	"github.com/notargets/femodel/volume"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func readView(t *testing.T, m *Model, name string) (map[int][]float64, mesh.View) {
	t.Helper()
	s, err := mesh.Open(m.MeshPath())
	require.NoError(t, err)
	defer s.Close()
	v, ok := s.ViewByName(name)
	require.True(t, ok, "view %q", name)
	out := make(map[int][]float64, len(v.ElementTags))
	for i, e := range v.ElementTags {
		out[e] = v.Data[i*v.NComp : (i+1)*v.NComp]
	}
	return out, v
}

func TestElements(t *testing.T) {
	m := newMeshedModel(t)
	cases := []struct {
		tissue string
		dim    element.Dimension
		n      int
	}{
		{"a", element.Surface, 20},
		{"a", element.Volume, 12},
		{"b", element.Surface, 12},
		{"b", element.Volume, 6},
	}
	for _, c := range cases {
		elems, err := m.Elements(c.tissue, c.dim)
		require.NoError(t, err)
		assert.Len(t, elems, c.n, "%s %s", c.tissue, c.dim)
		centers, err := m.ElementBarycenters(c.tissue, c.dim)
		require.NoError(t, err)
		assert.Len(t, centers, c.n)
	}
	centers, err := m.ElementBarycenters("b", element.Volume)
	require.NoError(t, err)
	for _, c := range centers {
		assert.True(t, c.X > 1.5e-3 && c.X < 2.5e-3, "x = %v", c.X)
	}

	_, err = m.Elements("bone", element.Volume)
	assert.ErrorIs(t, err, ErrUnknownTissue)
}

func TestFieldFromElementsFillsTheRest(t *testing.T) {
	m := newMeshedModel(t)
	elems, err := m.Elements("a", element.Volume)
	require.NoError(t, err)

	given := elems[:3]
	f, err := m.FieldFromElements("sigma", "a", given, []float64{1, 2, 3}, []float64{0.33}, "")
	require.NoError(t, err)
	assert.Equal(t, Field{Type: Scalar, View: 0, Formula: "1"}, f)
	assert.Equal(t, f, m.Tissues["a"].Fields["sigma"])

	vals, v := readView(t, m, "a_sigma")
	assert.Equal(t, 1, v.NComp)
	assert.Len(t, vals, len(elems))
	for i, e := range elems {
		if i < 3 {
			assert.Equal(t, []float64{float64(i + 1)}, vals[e])
		} else {
			assert.Equal(t, []float64{0.33}, vals[e])
		}
	}

	loaded, err := Load(m.Name, filepath.Dir(m.Dir()))
	require.NoError(t, err)
	assert.Equal(t, f, loaded.Tissues["a"].Fields["sigma"])
}

func TestFieldArity(t *testing.T) {
	m := newMeshedModel(t)
	elems, err := m.Elements("b", element.Volume)
	require.NoError(t, err)
	two := elems[:2]

	for _, c := range []struct {
		ncomp int
		want  FieldType
	}{{1, Scalar}, {3, Vector}, {9, Tensor}} {
		name := string(c.want)
		vals := make([]float64, 2*c.ncomp)
		f, err := m.FieldFromElements(name, "b", two, vals, make([]float64, c.ncomp), "x*y")
		require.NoError(t, err)
		assert.Equal(t, c.want, f.Type)
		assert.Equal(t, c.ncomp, f.Type.NComp())
		assert.Equal(t, "x*y", f.Formula)
		_, v := readView(t, m, "b_"+name)
		assert.Equal(t, c.ncomp, v.NComp)
		assert.Len(t, v.ElementTags, len(elems))
	}

	_, err = m.FieldFromElements("pair", "b", two, make([]float64, 4), []float64{0, 0}, "")
	assert.ErrorIs(t, err, ErrValueArity)
	_, err = m.FieldFromElements("odd", "b", two, make([]float64, 3), []float64{0}, "")
	assert.ErrorIs(t, err, ErrValueArity)
	_, err = m.FieldFromElements("fill", "b", two, make([]float64, 6), []float64{0}, "")
	assert.ErrorIs(t, err, ErrValueArity)
	_, err = m.FieldFromElements("none", "b", nil, nil, []float64{0}, "")
	assert.ErrorIs(t, err, ErrValueArity)
}

func TestFieldFromElementsRejectsWithoutChanges(t *testing.T) {
	m := newMeshedModel(t)
	elems, err := m.Elements("a", element.Volume)
	require.NoError(t, err)
	_, err = m.FieldFromElements("sigma", "a", elems[:1], []float64{1}, []float64{0}, "")
	require.NoError(t, err)
	meshBytes := readFile(t, m.MeshPath())
	metaBytes := readFile(t, m.MetadataPath())

	_, err = m.FieldFromElements("sigma", "a", elems[:1], []float64{2}, []float64{0}, "")
	assert.ErrorIs(t, err, ErrDuplicateName)
	_, err = m.FieldFromElements("sigma", "skull", elems[:1], []float64{2}, []float64{0}, "")
	assert.ErrorIs(t, err, ErrUnknownTissue)
	_, err = m.FieldFromElements("rho", "a", []int{elems[0], elems[0]}, []float64{2, 2}, []float64{0}, "")
	assert.ErrorIs(t, err, ErrInvalidValue)

	assert.Equal(t, meshBytes, readFile(t, m.MeshPath()))
	assert.Equal(t, metaBytes, readFile(t, m.MetadataPath()))
	assert.Len(t, m.Tissues["a"].Fields, 1)

	// The same name is free on another tissue
	belems, err := m.Elements("b", element.Volume)
	require.NoError(t, err)
	_, err = m.FieldFromElements("sigma", "b", belems[:1], []float64{2}, []float64{0}, "")
	assert.NoError(t, err)
}

// rampGrid is v = i on five voxels along x starting at x = -1 mm.
func rampGrid() (*volume.Grid, *mat.Dense) {
	g := volume.NewGrid(5, 1, 1, 1)
	for i := range g.Data {
		g.Data[i] = float64(i)
	}
	a := affine.Identity()
	a.Set(0, 3, -1)
	return g, a
}

func TestFieldFromArray(t *testing.T) {
	m := newMeshedModel(t)
	g, a := rampGrid()

	_, err := m.FieldFromArray("lin", g, a, "a", []float64{-1}, "", false)
	require.NoError(t, err)
	elems, err := m.Elements("a", element.Volume)
	require.NoError(t, err)
	centers, err := m.ElementBarycenters("a", element.Volume)
	require.NoError(t, err)
	vals, _ := readView(t, m, "a_lin")
	for i, e := range elems {
		// Linear in x: v = x[mm] + 1
		assert.InDelta(t, centers[i].X*1e3+1, vals[e][0], 1e-9)
	}

	_, err = m.FieldFromArray("near", g, a, "a", []float64{-1}, "", true)
	require.NoError(t, err)
	vals, _ = readView(t, m, "a_near")
	for i, e := range elems {
		assert.Equal(t, math.Round(centers[i].X*1e3+1), vals[e][0])
	}
}

func TestFieldFromArrayOutsideGrid(t *testing.T) {
	m := newMeshedModel(t)
	g, a := rampGrid()
	// Move the grid 100 mm away from the mesh along x
	a.Set(0, 3, 100)
	for _, nearest := range []bool{true, false} {
		name := "far"
		if nearest {
			name = "far_nearest"
		}
		_, err := m.FieldFromArray(name, g, a, "b", []float64{-7}, "", nearest)
		require.NoError(t, err)
		vals, _ := readView(t, m, "b_"+name)
		assert.Len(t, vals, 6)
		for _, v := range vals {
			assert.Equal(t, []float64{-7}, v)
		}
	}
}

func TestFieldFromArrayErrors(t *testing.T) {
	m := newMeshedModel(t)
	g, a := rampGrid()

	bad := volume.NewGrid(2, 2, 2, 2)
	_, err := m.FieldFromArray("f", bad, a, "a", []float64{0, 0}, "", true)
	assert.ErrorIs(t, err, ErrInvalidShape)
	_, err = m.FieldFromArray("f", g, mat.NewDense(4, 3, nil), "a", []float64{0}, "", true)
	assert.ErrorIs(t, err, ErrInvalidShape)
	_, err = m.FieldFromArray("f", g, a, "skull", []float64{0}, "", true)
	assert.ErrorIs(t, err, ErrUnknownTissue)
	_, err = m.FieldFromArray("f", g, a, "a", []float64{0, 0, 0}, "", true)
	assert.ErrorIs(t, err, ErrValueArity)

	rot := mat.NewDense(4, 4, []float64{
		0, -1, 0, 0,
		1, 0, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
	_, err = m.FieldFromArray("f", g, rot, "a", []float64{0}, "", true)
	assert.ErrorIs(t, err, ErrInvalidValue)
	assert.Empty(t, m.Tissues["a"].Fields)
}

func TestFieldFromImage(t *testing.T) {
	m := newMeshedModel(t)
	_, a := rampGrid()
	img := nifti.NewImage([]int{5, 1, 1, 3}, a, nifti.DTFloat32)
	for i := range img.Data {
		img.Data[i] = 2
	}
	path := filepath.Join(t.TempDir(), "dti.nii")
	require.NoError(t, nifti.Save(img, path))

	f, err := m.FieldFromImage("dir", path, "b", []float64{0, 0, 0}, "", true)
	require.NoError(t, err)
	assert.Equal(t, Vector, f.Type)
	vals, _ := readView(t, m, "b_dir")
	for _, v := range vals {
		assert.Equal(t, []float64{2, 2, 2}, v)
	}

	_, err = m.FieldFromImage("dir2", filepath.Join(t.TempDir(), "missing.nii"), "b", []float64{0}, "", true)
	assert.Error(t, err)

	bad := nifti.NewImage([]int{5, 1, 1, 2}, a, nifti.DTFloat32)
	require.NoError(t, nifti.Save(bad, path))
	_, err = m.FieldFromImage("dir3", path, "b", []float64{0, 0}, "", true)
	assert.ErrorIs(t, err, ErrInvalidShape)
}

func TestFieldValues(t *testing.T) {
	m := newMeshedModel(t)
	elems, err := m.Elements("b", element.Volume)
	require.NoError(t, err)
	_, err = m.FieldFromElements("sigma", "b", elems, make([]float64, 3*len(elems)), []float64{1, 1, 1}, "")
	require.NoError(t, err)

	tags, vals, ncomp, err := m.FieldValues("b", "sigma")
	require.NoError(t, err)
	assert.Equal(t, elems, tags)
	assert.Equal(t, 3, ncomp)
	assert.Len(t, vals, 3*len(elems))

	_, _, _, err = m.FieldValues("b", "rho")
	assert.ErrorIs(t, err, ErrInvalidValue)
	_, _, _, err = m.FieldValues("skull", "sigma")
	assert.ErrorIs(t, err, ErrUnknownTissue)
}
