package mesh

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/notargets/femodel/element"
	"gonum.org/v1/gonum/spatial/r3"
)

// RawMesh is mesher output: vertices and reference-tagged triangles and
// tetrahedra. Vertex indices are zero based.
type RawMesh struct {
	Vertices        []r3.Vec
	Triangles       [][3]int
	TriangleRefs    []int
	Tetrahedra      [][4]int
	TetrahedronRefs []int
}

// Validate checks reference counts, that references are positive and that
// vertex indices are in range.
func (m *RawMesh) Validate() error {
	if len(m.TriangleRefs) != len(m.Triangles) {
		return fmt.Errorf("mesh: %d triangle refs for %d triangles", len(m.TriangleRefs), len(m.Triangles))
	}
	if len(m.TetrahedronRefs) != len(m.Tetrahedra) {
		return fmt.Errorf("mesh: %d tetrahedron refs for %d tetrahedra", len(m.TetrahedronRefs), len(m.Tetrahedra))
	}
	for _, refs := range [][]int{m.TriangleRefs, m.TetrahedronRefs} {
		for _, r := range refs {
			if r <= 0 {
				return fmt.Errorf("mesh: element reference %d is not positive", r)
			}
		}
	}
	nv := len(m.Vertices)
	for i, tri := range m.Triangles {
		for _, v := range tri {
			if v < 0 || v >= nv {
				return fmt.Errorf("mesh: triangle %d references vertex %d of %d", i, v, nv)
			}
		}
	}
	for i, tet := range m.Tetrahedra {
		for _, v := range tet {
			if v < 0 || v >= nv {
				return fmt.Errorf("mesh: tetrahedron %d references vertex %d of %d", i, v, nv)
			}
		}
	}
	return nil
}

func distinctSorted(refs []int) []int {
	seen := make(map[int]struct{})
	var out []int
	for _, r := range refs {
		if _, ok := seen[r]; !ok {
			seen[r] = struct{}{}
			out = append(out, r)
		}
	}
	sort.Ints(out)
	return out
}

// FromRaw builds a session from mesher output. Every distinct reference
// value becomes one discrete entity of that tag, in dimension 2 for
// triangles and 3 for tetrahedra. Node tags are vertex index plus one.
// Triangles are numbered before tetrahedra, both in input order. Vertices
// used by no element are dropped.
func FromRaw(m *RawMesh) (*Session, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	s := NewSession()
	for _, ref := range distinctSorted(m.TriangleRefs) {
		if _, err := s.AddDiscreteEntity(2, ref); err != nil {
			return nil, err
		}
	}
	for _, ref := range distinctSorted(m.TetrahedronRefs) {
		if _, err := s.AddDiscreteEntity(3, ref); err != nil {
			return nil, err
		}
	}

	// A node is defined on the first volume entity that uses it, or else on
	// the first surface entity.
	owner := make(map[int]Entity)
	claim := func(v int, e Entity) {
		if _, ok := owner[v]; !ok {
			owner[v] = e
		}
	}
	for i, tet := range m.Tetrahedra {
		for _, v := range tet {
			claim(v, Entity{Dim: 3, Tag: m.TetrahedronRefs[i]})
		}
	}
	for i, tri := range m.Triangles {
		for _, v := range tri {
			claim(v, Entity{Dim: 2, Tag: m.TriangleRefs[i]})
		}
	}
	for v, p := range m.Vertices {
		e, ok := owner[v]
		if !ok {
			continue
		}
		if err := s.AddNodes(e.Dim, e.Tag, []int{v + 1}, []r3.Vec{p}); err != nil {
			return nil, err
		}
	}

	tag := 1
	for i, tri := range m.Triangles {
		ent := s.entities[2][m.TriangleRefs[i]]
		b := ent.block(element.GmshTriangle)
		b.tags = append(b.tags, tag)
		b.nodes = append(b.nodes, tri[0]+1, tri[1]+1, tri[2]+1)
		tag++
	}
	for i, tet := range m.Tetrahedra {
		ent := s.entities[3][m.TetrahedronRefs[i]]
		b := ent.block(element.GmshTet)
		b.tags = append(b.tags, tag)
		b.nodes = append(b.nodes, tet[0]+1, tet[1]+1, tet[2]+1, tet[3]+1)
		tag++
	}
	return s, nil
}

// LoadMedit reads a Medit .mesh file.
func LoadMedit(path string) (*RawMesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, err := ReadMedit(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return m, nil
}

// Record sizes (values per entry, reference included) of the Medit
// keywords a volume mesher may emit alongside the ones we keep.
var meditSkip = map[string]int{
	"Edges":            3,
	"Corners":          1,
	"RequiredVertices": 1,
	"Ridges":           1,
	"RequiredEdges":    1,
	"Quadrilaterals":   5,
	"Hexahedra":        9,
}

// ReadMedit parses an ASCII Medit mesh in three dimensions.
func ReadMedit(r io.Reader) (*RawMesh, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 1024*1024), 1024*1024)
	var (
		err   error
		words []string
	)
	// Comments run from '#' to the end of the line.
	next := func() string {
		for len(words) == 0 {
			if !sc.Scan() {
				return ""
			}
			line, _, _ := strings.Cut(sc.Text(), "#")
			words = strings.Fields(line)
		}
		tok := words[0]
		words = words[1:]
		return tok
	}
	nextInt := func() int {
		tok := next()
		v, e := strconv.Atoi(tok)
		if e != nil && err == nil {
			err = fmt.Errorf("%w: bad integer %q in Medit file", ErrFormat, tok)
		}
		return v
	}
	nextFloat := func() float64 {
		tok := next()
		v, e := strconv.ParseFloat(tok, 64)
		if e != nil && err == nil {
			err = fmt.Errorf("%w: bad number %q in Medit file", ErrFormat, tok)
		}
		return v
	}

	m := &RawMesh{}
	for err == nil {
		kw := next()
		switch kw {
		case "", "End":
			if e := sc.Err(); e != nil {
				return nil, e
			}
			if err != nil {
				return nil, err
			}
			if e := m.Validate(); e != nil {
				return nil, e
			}
			return m, nil
		case "MeshVersionFormatted":
			nextInt()
		case "Dimension":
			if d := nextInt(); d != 3 && err == nil {
				return nil, fmt.Errorf("%w: Medit dimension %d", ErrFormat, d)
			}
		case "Vertices":
			n := nextInt()
			for i := 0; i < n && err == nil; i++ {
				m.Vertices = append(m.Vertices, r3.Vec{X: nextFloat(), Y: nextFloat(), Z: nextFloat()})
				nextInt()
			}
		case "Triangles":
			n := nextInt()
			for i := 0; i < n && err == nil; i++ {
				m.Triangles = append(m.Triangles, [3]int{nextInt() - 1, nextInt() - 1, nextInt() - 1})
				m.TriangleRefs = append(m.TriangleRefs, nextInt())
			}
		case "Tetrahedra":
			n := nextInt()
			for i := 0; i < n && err == nil; i++ {
				m.Tetrahedra = append(m.Tetrahedra, [4]int{nextInt() - 1, nextInt() - 1, nextInt() - 1, nextInt() - 1})
				m.TetrahedronRefs = append(m.TetrahedronRefs, nextInt())
			}
		default:
			width, ok := meditSkip[kw]
			if !ok {
				return nil, fmt.Errorf("%w: unknown Medit keyword %q", ErrFormat, kw)
			}
			n := nextInt()
			for i := 0; i < n*width; i++ {
				next()
			}
		}
	}
	return nil, err
}

// SaveMedit writes m as an ASCII Medit file.
func SaveMedit(path string, m *RawMesh) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteMedit(f, m); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteMedit writes m as an ASCII Medit mesh. Vertex references are 0.
func WriteMedit(w io.Writer, m *RawMesh) error {
	if err := m.Validate(); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "MeshVersionFormatted 1\nDimension 3\n")
	fmt.Fprintf(bw, "Vertices\n%d\n", len(m.Vertices))
	for _, p := range m.Vertices {
		fmt.Fprintf(bw, "%s %s %s 0\n", ftoa(p.X), ftoa(p.Y), ftoa(p.Z))
	}
	if len(m.Triangles) > 0 {
		fmt.Fprintf(bw, "Triangles\n%d\n", len(m.Triangles))
		for i, t := range m.Triangles {
			fmt.Fprintf(bw, "%d %d %d %d\n", t[0]+1, t[1]+1, t[2]+1, m.TriangleRefs[i])
		}
	}
	if len(m.Tetrahedra) > 0 {
		fmt.Fprintf(bw, "Tetrahedra\n%d\n", len(m.Tetrahedra))
		for i, t := range m.Tetrahedra {
			fmt.Fprintf(bw, "%d %d %d %d %d\n", t[0]+1, t[1]+1, t[2]+1, t[3]+1, m.TetrahedronRefs[i])
		}
	}
	fmt.Fprintf(bw, "End\n")
	return bw.Flush()
}

func ftoa(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
