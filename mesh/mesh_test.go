package mesh

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/notargets/femodel/element"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// twoTets is two tetrahedra sharing face {1,2,3}, in regions 1 and 2, with
// one surface triangle per region and an unused trailing vertex.
func twoTets() *RawMesh {
	return &RawMesh{
		Vertices: []r3.Vec{
			{X: 0, Y: 0, Z: 0},
			{X: 1, Y: 0, Z: 0},
			{X: 0, Y: 1, Z: 0},
			{X: 0, Y: 0, Z: 1},
			{X: 1, Y: 1, Z: 1},
			{X: 5, Y: 5, Z: 5},
		},
		Triangles:       [][3]int{{0, 1, 2}, {1, 2, 3}},
		TriangleRefs:    []int{1, 2},
		Tetrahedra:      [][4]int{{0, 1, 2, 3}, {4, 1, 2, 3}},
		TetrahedronRefs: []int{1, 2},
	}
}

func newTwoTets(t *testing.T) *Session {
	t.Helper()
	s, err := FromRaw(twoTets())
	require.NoError(t, err)
	return s
}

func TestFromRaw(t *testing.T) {
	s := newTwoTets(t)
	defer s.Close()

	assert.Equal(t, []Entity{{2, 1}, {2, 2}, {3, 1}, {3, 2}}, s.Entities(-1))
	assert.Equal(t, 5, s.NumNodes(), "unused vertex is dropped")
	assert.Equal(t, 2, s.NumElements(2))
	assert.Equal(t, 2, s.NumElements(3))
	assert.Equal(t, 4, s.MaxElementTag())

	tags, coords, err := s.Nodes(3, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 2, 3, 4}, tags)
	assert.Equal(t, r3.Vec{X: 1, Y: 1, Z: 1}, coords[0])

	tags, _, err = s.Nodes(2, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 4}, tags)

	elems, nodes, err := s.Elements(3, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, elems)
	assert.Equal(t, [][]int{{1, 2, 3, 4}}, nodes)

	elems, centers, err := s.Barycenters(3, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{3}, elems)
	assert.InDelta(t, 0.25, centers[0].X, 1e-12)
	assert.InDelta(t, 0.25, centers[0].Y, 1e-12)
	assert.InDelta(t, 0.25, centers[0].Z, 1e-12)

	_, _, err = s.Nodes(3, 9)
	assert.ErrorIs(t, err, ErrNoEntity)
}

func TestFromRawRejectsBadInput(t *testing.T) {
	m := twoTets()
	m.TetrahedronRefs = m.TetrahedronRefs[:1]
	_, err := FromRaw(m)
	assert.Error(t, err)

	m = twoTets()
	m.Triangles[0][2] = 42
	_, err = FromRaw(m)
	assert.Error(t, err)

	m = twoTets()
	m.TriangleRefs[0] = 0
	_, err = FromRaw(m)
	assert.Error(t, err)
}

func TestPhysicalGroups(t *testing.T) {
	s := newTwoTets(t)
	defer s.Close()

	g1, err := s.AddPhysicalGroup(2, []int{1}, 0)
	require.NoError(t, err)
	g2, err := s.AddPhysicalGroup(3, []int{1}, 0)
	require.NoError(t, err)
	// Tags are unique across dimensions
	assert.Equal(t, 1, g1)
	assert.Equal(t, 2, g2)
	require.NoError(t, s.SetPhysicalName(3, g2, "brain"))

	name, err := s.PhysicalName(3, 2)
	require.NoError(t, err)
	assert.Equal(t, "brain", name)

	_, err = s.AddPhysicalGroup(3, []int{7}, 0)
	assert.ErrorIs(t, err, ErrNoEntity)
	_, err = s.AddPhysicalGroup(3, []int{2}, 2)
	assert.Error(t, err, "tag already used in dimension 3")
	assert.ErrorIs(t, s.SetPhysicalName(2, 9, "x"), ErrNoGroup)

	assert.Equal(t, []Group{{Dim: 3, Tag: 2, Name: "brain", Entities: []int{1}}}, s.PhysicalGroups(3))
	assert.Equal(t, 2, s.MaxPhysicalTag())
}

func TestSessionClose(t *testing.T) {
	s := newTwoTets(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.AddDiscreteEntity(0, 0)
	assert.ErrorIs(t, err, ErrClosed)
	_, _, err = s.Nodes(3, 1)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Nil(t, s.Entities(-1))
	assert.ErrorIs(t, s.Encode(&bytes.Buffer{}, Binary), ErrClosed)
}

func TestAddElementsByType(t *testing.T) {
	s := newTwoTets(t)
	defer s.Close()

	ent, err := s.AddDiscreteEntity(element.Point, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, ent)

	tags, err := s.AddElementsByType(element.Point, ent, element.GmshPoint, nil, []int{2})
	require.NoError(t, err)
	assert.Equal(t, []int{5}, tags)

	_, err = s.AddElementsByType(element.Point, ent, element.GmshTet, nil, []int{1, 2, 3, 4})
	assert.Error(t, err, "tetrahedra do not belong on a point entity")
	_, err = s.AddElementsByType(3, 1, element.GmshTet, nil, []int{1, 2, 3})
	assert.Error(t, err)
	_, err = s.AddElementsByType(3, 1, element.GmshTet, nil, []int{1, 2, 3, 99})
	assert.Error(t, err)
}

func TestRemoveDuplicateNodes(t *testing.T) {
	s := newTwoTets(t)
	defer s.Close()

	ent, err := s.AddDiscreteEntity(0, 0)
	require.NoError(t, err)
	p, ok := s.NodeCoord(2)
	require.True(t, ok)
	dup := s.MaxNodeTag() + 1
	require.NoError(t, s.AddNodes(0, ent, []int{dup}, []r3.Vec{p}))
	_, err = s.AddElementsByType(0, ent, element.GmshPoint, nil, []int{dup})
	require.NoError(t, err)
	assert.Equal(t, 6, s.NumNodes())

	n, err := s.RemoveDuplicateNodes(1e-9)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 5, s.NumNodes())

	tags, coords, err := s.Nodes(0, ent)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, tags)
	assert.Equal(t, p, coords[0])

	n, err = s.RemoveDuplicateNodes(1e-9)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTransform(t *testing.T) {
	s := newTwoTets(t)
	defer s.Close()

	lin := mat.NewDense(3, 3, []float64{
		2, 0, 0,
		0, 3, 0,
		0, 0, -1,
	})
	require.NoError(t, s.Transform(lin, r3.Vec{X: 1, Y: 1, Z: 1}))
	p, _ := s.NodeCoord(5)
	assert.Equal(t, r3.Vec{X: 3, Y: 4, Z: 0}, p)

	assert.Error(t, s.Transform(mat.NewDense(2, 2, nil), r3.Vec{}))
}

func TestViews(t *testing.T) {
	s := newTwoTets(t)
	defer s.Close()

	v, err := s.AddView("brain_sigma")
	require.NoError(t, err)
	assert.Equal(t, 0, v)
	require.NoError(t, s.AddModelData(v, []int{3, 4}, []float64{1, 2, 3, 4, 5, 6}, 3))
	assert.Error(t, s.AddModelData(v, []int{3, 99}, []float64{1, 2}, 1))
	assert.Error(t, s.AddModelData(v, []int{3}, []float64{1, 2}, 1))
	assert.ErrorIs(t, s.AddModelData(7, []int{3}, []float64{1}, 1), ErrNoView)

	got, ok := s.ViewByName("brain_sigma")
	require.True(t, ok)
	assert.Equal(t, 3, got.NComp)
	assert.Equal(t, []int{3, 4}, got.ElementTags)
}

// decorated adds groups, a sensor-like point entity and a view.
func decorated(t *testing.T) *Session {
	s := newTwoTets(t)
	for k, name := range []string{"scalp", "brain"} {
		g, err := s.AddPhysicalGroup(2, []int{k + 1}, 0)
		require.NoError(t, err)
		require.NoError(t, s.SetPhysicalName(2, g, name))
		g, err = s.AddPhysicalGroup(3, []int{k + 1}, 0)
		require.NoError(t, err)
		require.NoError(t, s.SetPhysicalName(3, g, name))
	}
	ent, err := s.AddDiscreteEntity(0, 0)
	require.NoError(t, err)
	_, err = s.AddElementsByType(0, ent, element.GmshPoint, nil, []int{5})
	require.NoError(t, err)
	g, err := s.AddPhysicalGroup(0, []int{ent}, 0)
	require.NoError(t, err)
	require.NoError(t, s.SetPhysicalName(0, g, "Cz electrode"))
	v, err := s.AddView("scalp_sigma")
	require.NoError(t, err)
	require.NoError(t, s.AddModelData(v, []int{3, 4}, []float64{0.33, 0.01}, 1))
	return s
}

func assertSameModel(t *testing.T, want, got *Session) {
	t.Helper()
	require.Equal(t, want.Entities(-1), got.Entities(-1))
	for _, e := range want.Entities(-1) {
		wt, wc, err := want.Nodes(e.Dim, e.Tag)
		require.NoError(t, err)
		gt, gc, err := got.Nodes(e.Dim, e.Tag)
		require.NoError(t, err)
		assert.Equal(t, wt, gt, "nodes of %v", e)
		assert.Equal(t, wc, gc, "coordinates of %v", e)

		we, wn, _ := want.Elements(e.Dim, e.Tag)
		ge, gn, _ := got.Elements(e.Dim, e.Tag)
		assert.Equal(t, we, ge, "elements of %v", e)
		assert.Equal(t, wn, gn, "connectivity of %v", e)
	}
	if diff := cmp.Diff(want.PhysicalGroups(-1), got.PhysicalGroups(-1)); diff != "" {
		t.Errorf("physical groups mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want.Views(), got.Views()); diff != "" {
		t.Errorf("views mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeDecode(t *testing.T) {
	for _, tc := range []struct {
		name   string
		format Format
	}{
		{"binary", Binary},
		{"ascii", ASCII},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s := decorated(t)
			defer s.Close()
			var buf bytes.Buffer
			require.NoError(t, s.Encode(&buf, tc.format))
			if tc.format == ASCII {
				assert.True(t, strings.HasPrefix(buf.String(), "$MeshFormat\n4.1 0 8\n"))
			}

			got, err := Decode(&buf)
			require.NoError(t, err)
			assertSameModel(t, s, got)
		})
	}
}

func TestOpenSaveWithSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.msh")
	s := decorated(t)
	require.NoError(t, s.WriteFile(path))
	assert.Equal(t, path, s.Path())

	err := WithSession(path, func(o *Session) error {
		assertSameModel(t, s, o)
		g, err := o.AddPhysicalGroup(3, []int{1, 2}, 0)
		require.NoError(t, err)
		require.NoError(t, o.SetPhysicalName(3, g, "head"))
		return o.Save()
	})
	require.NoError(t, err)

	o, err := Open(path)
	require.NoError(t, err)
	defer o.Close()
	name, err := o.PhysicalName(3, 6)
	require.NoError(t, err)
	assert.Equal(t, "head", name)

	_, err = Open(filepath.Join(t.TempDir(), "missing.msh"))
	assert.Error(t, err)
	assert.Error(t, NewSession().Save(), "no path")
}

func TestDecodeRejects(t *testing.T) {
	_, err := Decode(strings.NewReader("hello\n"))
	assert.ErrorIs(t, err, ErrFormat)
	_, err = Decode(strings.NewReader("$MeshFormat\n2.2 0 8\n$EndMeshFormat\n"))
	assert.ErrorIs(t, err, ErrFormat)

	var buf bytes.Buffer
	s := decorated(t)
	require.NoError(t, s.Encode(&buf, Binary))
	_, err = Decode(bytes.NewReader(buf.Bytes()[:buf.Len()/2]))
	assert.Error(t, err)
}

func TestDecodeSkipsUnknownSections(t *testing.T) {
	var buf bytes.Buffer
	s := decorated(t)
	require.NoError(t, s.Encode(&buf, ASCII))
	text := strings.Replace(buf.String(), "$Entities", "$Comments\nmade by hand\n$EndComments\n$Entities", 1)
	got, err := Decode(strings.NewReader(text))
	require.NoError(t, err)
	assertSameModel(t, s, got)
}

func TestMeditRoundTrip(t *testing.T) {
	m := twoTets()
	path := filepath.Join(t.TempDir(), "init.mesh")
	require.NoError(t, SaveMedit(path, m))
	got, err := LoadMedit(path)
	require.NoError(t, err)
	if diff := cmp.Diff(m, got); diff != "" {
		t.Errorf("medit mismatch (-want +got):\n%s", diff)
	}
}

func TestReadMedit(t *testing.T) {
	src := `MeshVersionFormatted 1
# written by a mesher
Dimension 3
Vertices
4
0 0 0 1
1 0 0 1
0 1 0 1
0 0 1 1
Edges
1
1 2 0
Triangles
1
1 2 3 7
Tetrahedra
1
1 2 3 4 7
End
`
	m, err := ReadMedit(strings.NewReader(src))
	require.NoError(t, err)
	assert.Len(t, m.Vertices, 4)
	assert.Equal(t, [][3]int{{0, 1, 2}}, m.Triangles)
	assert.Equal(t, []int{7}, m.TetrahedronRefs)

	_, err = ReadMedit(strings.NewReader("MeshVersionFormatted 1\nDimension 2\nEnd\n"))
	assert.ErrorIs(t, err, ErrFormat)
	_, err = ReadMedit(strings.NewReader("Prisms\n0\nEnd\n"))
	assert.ErrorIs(t, err, ErrFormat)
	_, err = ReadMedit(strings.NewReader("Vertices\n1\n0 zero 0 0\nEnd\n"))
	assert.ErrorIs(t, err, ErrFormat)
}

func TestReadMeditComments(t *testing.T) {
	src := `MeshVersionFormatted 1
# Created by meshio v5.3.4, 2024-01-01T00:00:00
Dimension 3 # always three here
Vertices
4
0 0 0 1
1 0 0 1 # corner
#0 0 0 0
0 1 0 1
0 0 1 1
Tetrahedra
1
1 2 3 4 5
End
`
	m, err := ReadMedit(strings.NewReader(src))
	require.NoError(t, err)
	assert.Len(t, m.Vertices, 4)
	assert.Equal(t, [][4]int{{0, 1, 2, 3}}, m.Tetrahedra)
	assert.Equal(t, []int{5}, m.TetrahedronRefs)
}

func TestString(t *testing.T) {
	s := decorated(t)
	out := s.String()
	assert.Contains(t, out, "Tetrahedra: 2")
	assert.Contains(t, out, `"brain"`)
	assert.Contains(t, out, `"scalp_sigma"`)
	require.NoError(t, s.Close())
	assert.Contains(t, s.String(), "closed")
}
