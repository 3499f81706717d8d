package mesh

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// PhysicalGroups returns the groups of dimension dim, or of every dimension
// when dim is negative, sorted by dimension then tag.
func (s *Session) PhysicalGroups(dim int) []Group {
	var out []Group
	for _, g := range s.groups {
		if dim >= 0 && g.Dim != dim {
			continue
		}
		c := *g
		c.Entities = append([]int(nil), g.Entities...)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Dim != out[j].Dim {
			return out[i].Dim < out[j].Dim
		}
		return out[i].Tag < out[j].Tag
	})
	return out
}

// MaxPhysicalTag returns the largest group tag over all dimensions, or 0.
func (s *Session) MaxPhysicalTag() int {
	m := 0
	for _, g := range s.groups {
		m = max(m, g.Tag)
	}
	return m
}

func (s *Session) group(dim, tag int) *Group {
	for _, g := range s.groups {
		if g.Dim == dim && g.Tag == tag {
			return g
		}
	}
	return nil
}

// AddPhysicalGroup groups existing entities of dimension dim. A tag of zero
// or less takes the largest tag in use across all dimensions plus one.
func (s *Session) AddPhysicalGroup(dim int, entities []int, tag int) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	if err := checkDim(dim); err != nil {
		return 0, err
	}
	for _, e := range entities {
		if _, ok := s.entities[dim][e]; !ok {
			return 0, fmt.Errorf("%w: (%d, %d)", ErrNoEntity, dim, e)
		}
	}
	if tag <= 0 {
		tag = s.MaxPhysicalTag() + 1
	}
	if s.group(dim, tag) != nil {
		return 0, fmt.Errorf("mesh: physical group (%d, %d) already exists", dim, tag)
	}
	s.groups = append(s.groups, &Group{
		Dim:      dim,
		Tag:      tag,
		Entities: append([]int(nil), entities...),
	})
	return tag, nil
}

// SetPhysicalName names the group (dim, tag).
func (s *Session) SetPhysicalName(dim, tag int, name string) error {
	if err := s.check(); err != nil {
		return err
	}
	g := s.group(dim, tag)
	if g == nil {
		return fmt.Errorf("%w: (%d, %d)", ErrNoGroup, dim, tag)
	}
	g.Name = name
	return nil
}

// PhysicalName returns the name of group (dim, tag).
func (s *Session) PhysicalName(dim, tag int) (string, error) {
	g := s.group(dim, tag)
	if g == nil {
		return "", fmt.Errorf("%w: (%d, %d)", ErrNoGroup, dim, tag)
	}
	return g.Name, nil
}

func (s *Session) physicalTagsOf(dim, tag int) []int {
	var tags []int
	for _, g := range s.groups {
		if g.Dim != dim {
			continue
		}
		for _, e := range g.Entities {
			if e == tag {
				tags = append(tags, g.Tag)
				break
			}
		}
	}
	sort.Ints(tags)
	return tags
}

// Transform maps every node p to lin·p + shift, lin being a 3×3 matrix.
func (s *Session) Transform(lin mat.Matrix, shift r3.Vec) error {
	if err := s.check(); err != nil {
		return err
	}
	if r, c := lin.Dims(); r != 3 || c != 3 {
		return fmt.Errorf("mesh: transform needs a 3×3 matrix, got %d×%d", r, c)
	}
	m := r3.NewMat(nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m.Set(i, j, lin.At(i, j))
		}
	}
	for n, p := range s.coords {
		s.coords[n] = r3.Add(m.MulVec(p), shift)
	}
	return nil
}

// RemoveDuplicateNodes merges nodes closer than tol to each other into the
// node with the lowest tag and rewrites element connectivity. It returns
// the number of nodes removed.
func (s *Session) RemoveDuplicateNodes(tol float64) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	tags := make([]int, 0, len(s.coords))
	for n := range s.coords {
		tags = append(tags, n)
	}
	sort.Slice(tags, func(i, j int) bool {
		pi, pj := s.coords[tags[i]], s.coords[tags[j]]
		if pi.X != pj.X {
			return pi.X < pj.X
		}
		return tags[i] < tags[j]
	})

	// Cluster nodes around the first node of each run of close points, then
	// map every member onto the lowest tag of its cluster.
	clusters := make(map[int][]int)
	rep := make(map[int]int)
	for i, a := range tags {
		if _, ok := rep[a]; ok {
			continue
		}
		rep[a] = a
		clusters[a] = []int{a}
		pa := s.coords[a]
		for _, b := range tags[i+1:] {
			pb := s.coords[b]
			if pb.X-pa.X > tol {
				break
			}
			if _, ok := rep[b]; ok {
				continue
			}
			if math.Abs(pb.Y-pa.Y) <= tol && math.Abs(pb.Z-pa.Z) <= tol {
				rep[b] = a
				clusters[a] = append(clusters[a], b)
			}
		}
	}
	target := make(map[int]int)
	for _, members := range clusters {
		if len(members) < 2 {
			continue
		}
		low := slices.Min(members)
		for _, n := range members {
			if n != low {
				target[n] = low
			}
		}
	}
	if len(target) == 0 {
		return 0, nil
	}
	for dup := range target {
		delete(s.coords, dup)
	}
	for d := range s.entities {
		for _, e := range s.entities[d] {
			kept := e.nodes[:0]
			for _, n := range e.nodes {
				if _, dup := target[n]; !dup {
					kept = append(kept, n)
				}
			}
			e.nodes = kept
			for _, b := range e.blocks {
				for i, n := range b.nodes {
					if t, ok := target[n]; ok {
						b.nodes[i] = t
					}
				}
			}
		}
	}
	return len(target), nil
}
