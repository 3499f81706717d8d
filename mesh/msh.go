package mesh

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/notargets/femodel/element"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrFormat is returned for files that are not MSH 4.1.
var ErrFormat = errors.New("mesh: unsupported file format")

// Format selects the MSH encoding.
type Format int

const (
	Binary Format = iota
	ASCII
)

const mshVersion = "4.1"

// encoder writes MSH values either as whitespace separated text or as
// little endian binary, keeping the first error.
type encoder struct {
	w     *bufio.Writer
	ascii bool
	sep   bool
	err   error
}

func (e *encoder) text(s string) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.WriteString(s)
}

func (e *encoder) token(s string) {
	if e.sep {
		e.text(" ")
	}
	e.text(s)
	e.sep = true
}

func (e *encoder) bin(v any) {
	if e.err != nil {
		return
	}
	e.err = binary.Write(e.w, binary.LittleEndian, v)
}

func (e *encoder) size(v int) {
	if e.ascii {
		e.token(strconv.Itoa(v))
		return
	}
	e.bin(uint64(v))
}

func (e *encoder) integer(v int) {
	if e.ascii {
		e.token(strconv.Itoa(v))
		return
	}
	e.bin(int32(v))
}

func (e *encoder) float(v float64) {
	if e.ascii {
		e.token(strconv.FormatFloat(v, 'g', -1, 64))
		return
	}
	e.bin(v)
}

func (e *encoder) eol() {
	if e.ascii {
		e.text("\n")
		e.sep = false
	}
}

func (e *encoder) begin(section string) { e.text("$" + section + "\n") }

func (e *encoder) end(section string) {
	if !e.ascii {
		e.text("\n")
	}
	e.text("$End" + section + "\n")
}

// WriteFile writes the model to path in binary MSH 4.1 and makes path the
// session path.
func (s *Session) WriteFile(path string) error {
	if err := s.check(); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := s.Encode(f, Binary); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	s.path = path
	return nil
}

// Encode writes the model as MSH 4.1.
func (s *Session) Encode(w io.Writer, format Format) error {
	if err := s.check(); err != nil {
		return err
	}
	e := &encoder{w: bufio.NewWriter(w), ascii: format == ASCII}

	e.begin("MeshFormat")
	if e.ascii {
		e.text(mshVersion + " 0 8\n")
	} else {
		e.text(mshVersion + " 1 8\n")
		e.bin(int32(1))
		e.text("\n")
	}
	e.text("$EndMeshFormat\n")

	s.encodePhysicalNames(e)
	s.encodeEntities(e)
	s.encodeNodes(e)
	s.encodeElements(e)
	for _, v := range s.views {
		encodeView(e, v)
	}
	if e.err != nil {
		return e.err
	}
	return e.w.Flush()
}

func (s *Session) encodePhysicalNames(e *encoder) {
	groups := s.PhysicalGroups(-1)
	var named []Group
	for _, g := range groups {
		if g.Name != "" {
			named = append(named, g)
		}
	}
	if len(named) == 0 {
		return
	}
	e.begin("PhysicalNames")
	e.text(fmt.Sprintf("%d\n", len(named)))
	for _, g := range named {
		e.text(fmt.Sprintf("%d %d %q\n", g.Dim, g.Tag, g.Name))
	}
	e.text("$EndPhysicalNames\n")
}

func (s *Session) bounds(ent *entity) (lo, hi r3.Vec) {
	lo = r3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	hi = r3.Vec{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	tags, coords, _ := s.Nodes(ent.dim, ent.tag)
	if len(tags) == 0 {
		return r3.Vec{}, r3.Vec{}
	}
	for _, p := range coords {
		lo = r3.Vec{X: math.Min(lo.X, p.X), Y: math.Min(lo.Y, p.Y), Z: math.Min(lo.Z, p.Z)}
		hi = r3.Vec{X: math.Max(hi.X, p.X), Y: math.Max(hi.Y, p.Y), Z: math.Max(hi.Z, p.Z)}
	}
	return lo, hi
}

func (s *Session) encodeEntities(e *encoder) {
	e.begin("Entities")
	for d := 0; d < 4; d++ {
		e.size(len(s.entities[d]))
	}
	e.eol()
	for d := 0; d < 4; d++ {
		for _, tag := range sortedKeys(s.entities[d]) {
			ent := s.entities[d][tag]
			lo, hi := s.bounds(ent)
			e.integer(tag)
			e.float(lo.X)
			e.float(lo.Y)
			e.float(lo.Z)
			if d > 0 {
				e.float(hi.X)
				e.float(hi.Y)
				e.float(hi.Z)
			}
			phys := s.physicalTagsOf(d, tag)
			e.size(len(phys))
			for _, p := range phys {
				e.integer(p)
			}
			if d > 0 {
				e.size(0) // no bounding entities in a discrete model
			}
			e.eol()
		}
	}
	e.end("Entities")
}

func (s *Session) encodeNodes(e *encoder) {
	var blocks []*entity
	minTag, maxTag := 0, 0
	for d := 0; d < 4; d++ {
		for _, tag := range sortedKeys(s.entities[d]) {
			ent := s.entities[d][tag]
			if len(ent.nodes) == 0 {
				continue
			}
			blocks = append(blocks, ent)
			for _, n := range ent.nodes {
				if minTag == 0 || n < minTag {
					minTag = n
				}
				maxTag = max(maxTag, n)
			}
		}
	}
	e.begin("Nodes")
	e.size(len(blocks))
	e.size(len(s.coords))
	e.size(minTag)
	e.size(maxTag)
	e.eol()
	for _, ent := range blocks {
		e.integer(ent.dim)
		e.integer(ent.tag)
		e.integer(0)
		e.size(len(ent.nodes))
		e.eol()
		for _, n := range ent.nodes {
			e.size(n)
			e.eol()
		}
		for _, n := range ent.nodes {
			p := s.coords[n]
			e.float(p.X)
			e.float(p.Y)
			e.float(p.Z)
			e.eol()
		}
	}
	e.end("Nodes")
}

func (s *Session) encodeElements(e *encoder) {
	var blocks []*entity
	var nblocks, nelems, minTag, maxTag int
	for d := 0; d < 4; d++ {
		for _, tag := range sortedKeys(s.entities[d]) {
			ent := s.entities[d][tag]
			blocks = append(blocks, ent)
			for _, b := range ent.blocks {
				if len(b.tags) == 0 {
					continue
				}
				nblocks++
				nelems += len(b.tags)
				for _, t := range b.tags {
					if minTag == 0 || t < minTag {
						minTag = t
					}
					maxTag = max(maxTag, t)
				}
			}
		}
	}
	e.begin("Elements")
	e.size(nblocks)
	e.size(nelems)
	e.size(minTag)
	e.size(maxTag)
	e.eol()
	for _, ent := range blocks {
		for _, b := range ent.blocks {
			if len(b.tags) == 0 {
				continue
			}
			nn := element.NodesPerGmshType(b.gmshType)
			e.integer(ent.dim)
			e.integer(ent.tag)
			e.integer(b.gmshType)
			e.size(len(b.tags))
			e.eol()
			for i, t := range b.tags {
				e.size(t)
				for _, n := range b.nodes[i*nn : (i+1)*nn] {
					e.size(n)
				}
				e.eol()
			}
		}
	}
	e.end("Elements")
}

func encodeView(e *encoder, v *View) {
	if v.NComp == 0 {
		return
	}
	e.begin("ElementData")
	e.text(fmt.Sprintf("1\n%q\n1\n0\n3\n0\n%d\n%d\n", v.Name, v.NComp, len(v.ElementTags)))
	for i, t := range v.ElementTags {
		e.integer(t)
		for _, x := range v.Data[i*v.NComp : (i+1)*v.NComp] {
			e.float(x)
		}
		e.eol()
	}
	e.end("ElementData")
}

// decoder reads MSH values in either encoding, keeping the first error.
type decoder struct {
	r     *bufio.Reader
	ascii bool
	order binary.ByteOrder
	wide  bool // size_t is 8 bytes
	err   error
}

func (d *decoder) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

// line returns the next non-empty line, trimmed.
func (d *decoder) line() string {
	for d.err == nil {
		l, err := d.r.ReadString('\n')
		if t := strings.TrimSpace(l); t != "" {
			return t
		}
		if err != nil {
			d.fail(err)
		}
	}
	return ""
}

func (d *decoder) token() string {
	if d.err != nil {
		return ""
	}
	var sb strings.Builder
	for {
		c, err := d.r.ReadByte()
		if err != nil {
			if sb.Len() > 0 && err == io.EOF {
				return sb.String()
			}
			d.fail(err)
			return ""
		}
		if c == ' ' || c == '\n' || c == '\r' || c == '\t' {
			if sb.Len() > 0 {
				return sb.String()
			}
			continue
		}
		sb.WriteByte(c)
	}
}

func (d *decoder) atoi(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		d.fail(fmt.Errorf("%w: bad integer %q", ErrFormat, s))
	}
	return v
}

func (d *decoder) bin(v any) {
	if d.err != nil {
		return
	}
	if err := binary.Read(d.r, d.order, v); err != nil {
		d.fail(err)
	}
}

func (d *decoder) size() int {
	if d.ascii {
		return d.atoi(d.token())
	}
	if d.wide {
		var v uint64
		d.bin(&v)
		return int(v)
	}
	var v uint32
	d.bin(&v)
	return int(v)
}

func (d *decoder) integer() int {
	if d.ascii {
		return d.atoi(d.token())
	}
	var v int32
	d.bin(&v)
	return int(v)
}

func (d *decoder) float() float64 {
	if d.ascii {
		s := d.token()
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			d.fail(fmt.Errorf("%w: bad number %q", ErrFormat, s))
		}
		return v
	}
	var v float64
	d.bin(&v)
	return v
}

func (d *decoder) expect(l string) {
	if got := d.line(); d.err == nil && got != l {
		d.fail(fmt.Errorf("%w: expected %s, got %q", ErrFormat, l, got))
	}
}

// ReadFile reads an MSH 4.1 file into a new session without binding it to
// the path. Use Open to get a session that saves back to the file.
func ReadFile(path string) (*Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	s, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return s, nil
}

// Decode reads an MSH 4.1 model, binary or ASCII.
func Decode(r io.Reader) (*Session, error) {
	d := &decoder{r: bufio.NewReader(r), order: binary.LittleEndian, wide: true}
	if d.line() != "$MeshFormat" {
		if d.err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFormat, d.err)
		}
		return nil, fmt.Errorf("%w: missing $MeshFormat", ErrFormat)
	}
	parts := strings.Fields(d.line())
	if len(parts) < 3 || parts[0] != mshVersion {
		return nil, fmt.Errorf("%w: need MSH %s, got %v", ErrFormat, mshVersion, parts)
	}
	d.ascii = parts[1] == "0"
	switch parts[2] {
	case "8":
	case "4":
		d.wide = false
	default:
		return nil, fmt.Errorf("%w: data size %s", ErrFormat, parts[2])
	}
	if !d.ascii {
		var one int32
		d.bin(&one)
		if one != 1 {
			d.order = binary.BigEndian
		}
	}
	d.expect("$EndMeshFormat")

	s := NewSession()
	names := make(map[[2]int]string)
	for d.err == nil {
		l, err := d.r.ReadString('\n')
		section := strings.TrimSpace(l)
		if err == io.EOF && section == "" {
			break
		}
		if err != nil && err != io.EOF {
			return nil, err
		}
		switch section {
		case "":
			continue
		case "$PhysicalNames":
			decodePhysicalNames(d, names)
		case "$Entities":
			s.decodeEntities(d)
		case "$Nodes":
			s.decodeNodes(d)
		case "$Elements":
			s.decodeElements(d)
		case "$ElementData":
			s.decodeView(d)
		default:
			if !strings.HasPrefix(section, "$") {
				return nil, fmt.Errorf("%w: unexpected line %q", ErrFormat, section)
			}
			endTag := "$End" + section[1:]
			for d.err == nil && d.line() != endTag {
			}
		}
		if err == io.EOF {
			break
		}
	}
	if d.err != nil {
		if errors.Is(d.err, io.EOF) {
			return nil, fmt.Errorf("%w: truncated file", ErrFormat)
		}
		return nil, d.err
	}
	for key, name := range names {
		if g := s.group(key[0], key[1]); g != nil {
			g.Name = name
		} else {
			s.groups = append(s.groups, &Group{Dim: key[0], Tag: key[1], Name: name})
		}
	}
	return s, nil
}

func decodePhysicalNames(d *decoder, names map[[2]int]string) {
	n := d.atoi(d.line())
	for i := 0; i < n && d.err == nil; i++ {
		l := d.line()
		parts := strings.SplitN(l, " ", 3)
		if len(parts) != 3 {
			d.fail(fmt.Errorf("%w: bad physical name %q", ErrFormat, l))
			return
		}
		name, err := strconv.Unquote(parts[2])
		if err != nil {
			name = strings.Trim(parts[2], `"`)
		}
		names[[2]int{d.atoi(parts[0]), d.atoi(parts[1])}] = name
	}
	d.expect("$EndPhysicalNames")
}

func (s *Session) decodeEntities(d *decoder) {
	var counts [4]int
	for i := range counts {
		counts[i] = d.size()
	}
	for dim := 0; dim < 4; dim++ {
		for i := 0; i < counts[dim] && d.err == nil; i++ {
			tag := d.integer()
			nbox := 6
			if dim == 0 {
				nbox = 3
			}
			for j := 0; j < nbox; j++ {
				d.float()
			}
			nphys := d.size()
			phys := make([]int, nphys)
			for j := range phys {
				phys[j] = d.integer()
			}
			if dim > 0 {
				nb := d.size()
				for j := 0; j < nb; j++ {
					d.integer()
				}
			}
			if d.err != nil {
				return
			}
			if _, err := s.AddDiscreteEntity(dim, tag); err != nil {
				d.fail(err)
				return
			}
			for _, p := range phys {
				g := s.group(dim, p)
				if g == nil {
					g = &Group{Dim: dim, Tag: p}
					s.groups = append(s.groups, g)
				}
				g.Entities = append(g.Entities, tag)
			}
		}
	}
	d.expect("$EndEntities")
}

func (s *Session) ensureEntity(d *decoder, dim, tag int) bool {
	if err := checkDim(dim); err != nil {
		d.fail(fmt.Errorf("%w: %v", ErrFormat, err))
		return false
	}
	if _, ok := s.entities[dim][tag]; !ok {
		s.entities[dim][tag] = &entity{dim: dim, tag: tag}
	}
	return true
}

func (s *Session) decodeNodes(d *decoder) {
	nblocks := d.size()
	d.size() // total nodes
	d.size() // min tag
	d.size() // max tag
	for b := 0; b < nblocks && d.err == nil; b++ {
		dim, tag := d.integer(), d.integer()
		parametric := d.integer()
		n := d.size()
		if d.err != nil || !s.ensureEntity(d, dim, tag) {
			return
		}
		tags := make([]int, n)
		for i := range tags {
			tags[i] = d.size()
		}
		coords := make([]r3.Vec, n)
		for i := range coords {
			coords[i] = r3.Vec{X: d.float(), Y: d.float(), Z: d.float()}
			if parametric != 0 {
				for j := 0; j < dim; j++ {
					d.float()
				}
			}
		}
		if d.err != nil {
			return
		}
		if err := s.AddNodes(dim, tag, tags, coords); err != nil {
			d.fail(err)
		}
	}
	d.expect("$EndNodes")
}

func (s *Session) decodeElements(d *decoder) {
	nblocks := d.size()
	d.size() // total elements
	d.size() // min tag
	d.size() // max tag
	for b := 0; b < nblocks && d.err == nil; b++ {
		dim, tag, gmshType := d.integer(), d.integer(), d.integer()
		n := d.size()
		if d.err != nil || !s.ensureEntity(d, dim, tag) {
			return
		}
		nn := element.NodesPerGmshType(gmshType)
		if nn == 0 {
			d.fail(fmt.Errorf("%w: unsupported element type %d", ErrFormat, gmshType))
			return
		}
		tags := make([]int, n)
		nodes := make([]int, 0, n*nn)
		for i := range tags {
			tags[i] = d.size()
			for j := 0; j < nn; j++ {
				nodes = append(nodes, d.size())
			}
		}
		if d.err != nil {
			return
		}
		if _, err := s.AddElementsByType(dim, tag, gmshType, tags, nodes); err != nil {
			d.fail(err)
		}
	}
	d.expect("$EndElements")
}

func (s *Session) decodeView(d *decoder) {
	nstr := d.atoi(d.line())
	var name string
	for i := 0; i < nstr; i++ {
		l := d.line()
		if i == 0 {
			if v, err := strconv.Unquote(l); err == nil {
				name = v
			} else {
				name = strings.Trim(l, `"`)
			}
		}
	}
	nreal := d.atoi(d.line())
	for i := 0; i < nreal; i++ {
		d.line()
	}
	nint := d.atoi(d.line())
	ints := make([]int, nint)
	for i := range ints {
		ints[i] = d.atoi(d.line())
	}
	if d.err != nil {
		return
	}
	if nint < 3 {
		d.fail(fmt.Errorf("%w: element data %q needs 3 integer tags", ErrFormat, name))
		return
	}
	ncomp, n := ints[1], ints[2]
	tags := make([]int, n)
	data := make([]float64, 0, n*ncomp)
	for i := range tags {
		tags[i] = d.integer()
		for j := 0; j < ncomp; j++ {
			data = append(data, d.float())
		}
	}
	if d.err != nil {
		return
	}
	tag, _ := s.AddView(name)
	if err := s.AddModelData(tag, tags, data, ncomp); err != nil {
		d.fail(err)
		return
	}
	d.expect("$EndElementData")
}
