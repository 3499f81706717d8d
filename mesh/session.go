// Package mesh holds an in-memory discrete finite element model in the
// style of a gmsh model: geometric entities per dimension, nodes, elements
// grouped by type, physical groups and element data views. A Session is
// the scoped handle on one such model and reads and writes MSH 4.1 files.
package mesh

import (
	"errors"
	"fmt"
	"sort"

	"github.com/notargets/femodel/element"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrClosed is returned by every operation on a closed session.
	ErrClosed = errors.New("mesh: session is closed")
	// ErrNoEntity is returned when an entity does not exist.
	ErrNoEntity = errors.New("mesh: no such entity")
	// ErrNoGroup is returned when a physical group does not exist.
	ErrNoGroup = errors.New("mesh: no such physical group")
	// ErrNoView is returned when a view does not exist.
	ErrNoView = errors.New("mesh: no such view")
)

// Entity identifies a geometric entity by dimension and tag.
type Entity struct {
	Dim int
	Tag int
}

// Group is a physical group: a named set of entities of one dimension.
type Group struct {
	Dim      int
	Tag      int
	Name     string
	Entities []int
}

// View is element data attached to the model, one value per component per
// element, for a single time step.
type View struct {
	Tag         int
	Name        string
	NComp       int
	ElementTags []int
	Data        []float64 // NComp values per element
}

type elementBlock struct {
	gmshType int
	tags     []int
	nodes    []int // NodesPerGmshType(gmshType) node tags per element
}

type entity struct {
	dim, tag int
	nodes    []int // nodes defined on this entity
	blocks   []*elementBlock
}

func (e *entity) block(gmshType int) *elementBlock {
	for _, b := range e.blocks {
		if b.gmshType == gmshType {
			return b
		}
	}
	b := &elementBlock{gmshType: gmshType}
	e.blocks = append(e.blocks, b)
	return b
}

// Session is an open mesh model. It is not safe for concurrent use.
type Session struct {
	path     string
	coords   map[int]r3.Vec
	entities [4]map[int]*entity
	groups   []*Group
	views    []*View
	closed   bool
}

// NewSession returns an empty model not bound to any file.
func NewSession() *Session {
	s := &Session{coords: make(map[int]r3.Vec)}
	for d := range s.entities {
		s.entities[d] = make(map[int]*entity)
	}
	return s
}

// Open reads the MSH file at path into a new session. Save writes back to
// the same path.
func Open(path string) (*Session, error) {
	s, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	s.path = path
	return s, nil
}

// WithSession opens path, runs fn and closes the session on every exit
// path. fn is responsible for calling Save if the model changed.
func WithSession(path string, fn func(*Session) error) error {
	s, err := Open(path)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

// Path returns the file the session was opened from or last saved to.
func (s *Session) Path() string { return s.path }

// Close releases the model. It is safe to call more than once.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.coords = nil
	s.groups = nil
	s.views = nil
	for d := range s.entities {
		s.entities[d] = nil
	}
	return nil
}

// Save writes the model in binary MSH 4.1 to the session path.
func (s *Session) Save() error {
	if s.path == "" {
		return fmt.Errorf("mesh: session has no path")
	}
	return s.WriteFile(s.path)
}

func (s *Session) check() error {
	if s.closed {
		return ErrClosed
	}
	return nil
}

func checkDim(dim int) error {
	if dim < 0 || dim > 3 {
		return fmt.Errorf("mesh: invalid dimension %d", dim)
	}
	return nil
}

func (s *Session) entity(dim, tag int) (*entity, error) {
	if err := checkDim(dim); err != nil {
		return nil, err
	}
	e, ok := s.entities[dim][tag]
	if !ok {
		return nil, fmt.Errorf("%w: (%d, %d)", ErrNoEntity, dim, tag)
	}
	return e, nil
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// Entities returns the entities of dimension dim sorted by tag, or of all
// dimensions when dim is negative.
func (s *Session) Entities(dim int) []Entity {
	if s.closed {
		return nil
	}
	var out []Entity
	for d := 0; d < 4; d++ {
		if dim >= 0 && d != dim {
			continue
		}
		for _, tag := range sortedKeys(s.entities[d]) {
			out = append(out, Entity{Dim: d, Tag: tag})
		}
	}
	return out
}

// HasEntity reports whether entity (dim, tag) exists.
func (s *Session) HasEntity(dim, tag int) bool {
	_, err := s.entity(dim, tag)
	return err == nil && !s.closed
}

// AddDiscreteEntity creates an entity of dimension dim. A tag of zero or
// less picks the next free tag in that dimension.
func (s *Session) AddDiscreteEntity(dim, tag int) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	if err := checkDim(dim); err != nil {
		return 0, err
	}
	if tag <= 0 {
		tag = 1
		for t := range s.entities[dim] {
			if t >= tag {
				tag = t + 1
			}
		}
	}
	if _, ok := s.entities[dim][tag]; ok {
		return 0, fmt.Errorf("mesh: entity (%d, %d) already exists", dim, tag)
	}
	s.entities[dim][tag] = &entity{dim: dim, tag: tag}
	return tag, nil
}

// MaxNodeTag returns the largest node tag in use, or 0.
func (s *Session) MaxNodeTag() int {
	m := 0
	for t := range s.coords {
		m = max(m, t)
	}
	return m
}

// MaxElementTag returns the largest element tag in use, or 0.
func (s *Session) MaxElementTag() int {
	m := 0
	for d := range s.entities {
		for _, e := range s.entities[d] {
			for _, b := range e.blocks {
				for _, t := range b.tags {
					m = max(m, t)
				}
			}
		}
	}
	return m
}

// NumNodes returns the number of nodes in the model.
func (s *Session) NumNodes() int { return len(s.coords) }

// NumElements returns the number of elements of dimension dim, or of all
// dimensions when dim is negative.
func (s *Session) NumElements(dim int) int {
	n := 0
	for d := range s.entities {
		if dim >= 0 && d != dim {
			continue
		}
		for _, e := range s.entities[d] {
			for _, b := range e.blocks {
				n += len(b.tags)
			}
		}
	}
	return n
}

// NodeCoord returns the coordinates of node tag.
func (s *Session) NodeCoord(tag int) (r3.Vec, bool) {
	p, ok := s.coords[tag]
	return p, ok
}

// AddNodes defines nodes on entity (dim, tag). Node tags must be unused.
func (s *Session) AddNodes(dim, tag int, nodeTags []int, coords []r3.Vec) error {
	if err := s.check(); err != nil {
		return err
	}
	e, err := s.entity(dim, tag)
	if err != nil {
		return err
	}
	if len(nodeTags) != len(coords) {
		return fmt.Errorf("mesh: %d node tags for %d coordinates", len(nodeTags), len(coords))
	}
	for _, n := range nodeTags {
		if n <= 0 {
			return fmt.Errorf("mesh: invalid node tag %d", n)
		}
		if _, ok := s.coords[n]; ok {
			return fmt.Errorf("mesh: node %d already exists", n)
		}
	}
	for i, n := range nodeTags {
		s.coords[n] = coords[i]
	}
	e.nodes = append(e.nodes, nodeTags...)
	return nil
}

// AddElementsByType adds elements of one gmsh type to entity (dim, tag).
// nodeTags holds the nodes of each element in turn. When elementTags is
// empty new tags are allocated after the current maximum.
func (s *Session) AddElementsByType(dim, tag, gmshType int, elementTags, nodeTags []int) ([]int, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	e, err := s.entity(dim, tag)
	if err != nil {
		return nil, err
	}
	nn := element.NodesPerGmshType(gmshType)
	if nn == 0 || element.DimensionOfGmshType(gmshType) != dim {
		return nil, fmt.Errorf("mesh: element type %d cannot be added to a %dD entity", gmshType, dim)
	}
	if len(nodeTags)%nn != 0 {
		return nil, fmt.Errorf("mesh: %d node tags is not a multiple of %d", len(nodeTags), nn)
	}
	ne := len(nodeTags) / nn
	for _, n := range nodeTags {
		if _, ok := s.coords[n]; !ok {
			return nil, fmt.Errorf("mesh: element references unknown node %d", n)
		}
	}
	if len(elementTags) == 0 {
		next := s.MaxElementTag() + 1
		elementTags = make([]int, ne)
		for i := range elementTags {
			elementTags[i] = next + i
		}
	} else if len(elementTags) != ne {
		return nil, fmt.Errorf("mesh: %d element tags for %d elements", len(elementTags), ne)
	}
	b := e.block(gmshType)
	b.tags = append(b.tags, elementTags...)
	b.nodes = append(b.nodes, nodeTags...)
	return elementTags, nil
}

// Nodes returns the nodes used by the elements of entity (dim, tag), in the
// order they are first referenced, with their coordinates.
func (s *Session) Nodes(dim, tag int) ([]int, []r3.Vec, error) {
	if err := s.check(); err != nil {
		return nil, nil, err
	}
	e, err := s.entity(dim, tag)
	if err != nil {
		return nil, nil, err
	}
	seen := make(map[int]struct{})
	var tags []int
	for _, b := range e.blocks {
		for _, n := range b.nodes {
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			tags = append(tags, n)
		}
	}
	// Entities without elements still expose the nodes defined on them.
	for _, n := range e.nodes {
		if _, ok := seen[n]; !ok {
			seen[n] = struct{}{}
			tags = append(tags, n)
		}
	}
	coords := make([]r3.Vec, len(tags))
	for i, n := range tags {
		coords[i] = s.coords[n]
	}
	return tags, coords, nil
}

// Elements returns the element tags of entity (dim, tag) and their node
// tags, across all element types of the entity.
func (s *Session) Elements(dim, tag int) ([]int, [][]int, error) {
	if err := s.check(); err != nil {
		return nil, nil, err
	}
	e, err := s.entity(dim, tag)
	if err != nil {
		return nil, nil, err
	}
	var (
		tags  []int
		nodes [][]int
	)
	for _, b := range e.blocks {
		nn := element.NodesPerGmshType(b.gmshType)
		for i, t := range b.tags {
			tags = append(tags, t)
			nodes = append(nodes, b.nodes[i*nn:(i+1)*nn])
		}
	}
	return tags, nodes, nil
}

// Barycenters returns the element tags of entity (dim, tag) and the
// centroid of each element.
func (s *Session) Barycenters(dim, tag int) ([]int, []r3.Vec, error) {
	tags, nodes, err := s.Elements(dim, tag)
	if err != nil {
		return nil, nil, err
	}
	centers := make([]r3.Vec, len(tags))
	verts := make([]r3.Vec, 0, 4)
	for i, en := range nodes {
		verts = verts[:0]
		for _, n := range en {
			verts = append(verts, s.coords[n])
		}
		centers[i] = element.Barycenter(verts)
	}
	return tags, centers, nil
}
