package fem

import (
	"fmt"
	"sort"

	"github.com/notargets/femodel/affine"
	"github.com/notargets/femodel/element"
	"github.com/notargets/femodel/mesh"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

func (m *Model) entitiesOf(name string, dim element.Dimension) ([]int, error) {
	t, err := m.tissue(name)
	if err != nil {
		return nil, err
	}
	switch dim {
	case element.Surface:
		return t.Surf.Entities, nil
	case element.Volume:
		return t.Vol.Entities, nil
	}
	return nil, fmt.Errorf("%w: dimension %d is neither surface nor volume", ErrInvalidValue, dim)
}

func tissueNodes(s *mesh.Session, entities []int, dim element.Dimension) ([]int, []r3.Vec, error) {
	var (
		tags   []int
		coords []r3.Vec
	)
	for _, e := range entities {
		t, c, err := s.Nodes(int(dim), e)
		if err != nil {
			return nil, nil, err
		}
		tags = append(tags, t...)
		coords = append(coords, c...)
	}
	return tags, coords, nil
}

// Nodes returns the tags and coordinates of the nodes of a tissue's surface
// or volume. A node shared by two entities of the tissue is listed once per
// entity.
func (m *Model) Nodes(tissue string, dim element.Dimension) ([]int, []r3.Vec, error) {
	entities, err := m.entitiesOf(tissue, dim)
	if err != nil {
		return nil, nil, err
	}
	var (
		tags   []int
		coords []r3.Vec
	)
	err = mesh.WithSession(m.MeshPath(), func(s *mesh.Session) error {
		tags, coords, err = tissueNodes(s, entities, dim)
		return err
	})
	return tags, coords, err
}

// nearest returns the index of the point closest to p. Ties go to the
// first point.
func nearest(points []r3.Vec, p r3.Vec) int {
	d := make([]float64, len(points))
	for i, q := range points {
		d[i] = r3.Norm(r3.Sub(q, p))
	}
	return floats.MinIdx(d)
}

func sensorCoords(name string, coords []float64) (r3.Vec, error) {
	if len(coords) != 3 {
		return r3.Vec{}, fmt.Errorf("%w: sensor %q has %d coordinates, expected 3", ErrInvalidValue, name, len(coords))
	}
	// Millimetres to metres
	return r3.Scale(affine.MillimetersToMeters, r3.Vec{X: coords[0], Y: coords[1], Z: coords[2]}), nil
}

// AddPointSensor places a sensor on the node of the tissue closest to
// coords, given in millimetres.
func (m *Model) AddPointSensor(name string, coords []float64, tissue string, dim element.Dimension) error {
	return m.AddPointSensors(map[string][]float64{name: coords}, tissue, dim)
}

// AddPointSensors places several sensors in one pass over the mesh. Every
// sensor is checked before the mesh is touched; sensors are placed in name
// order.
func (m *Model) AddPointSensors(coords map[string][]float64, tissue string, dim element.Dimension) error {
	names := make([]string, 0, len(coords))
	wanted := make(map[string]r3.Vec, len(coords))
	for name, c := range coords {
		if err := checkName("sensor", name); err != nil {
			return err
		}
		if _, ok := m.Sensors[name]; ok {
			return fmt.Errorf("%w: sensor %q", ErrDuplicateName, name)
		}
		p, err := sensorCoords(name, c)
		if err != nil {
			return err
		}
		names = append(names, name)
		wanted[name] = p
	}
	sort.Strings(names)
	entities, err := m.entitiesOf(tissue, dim)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return nil
	}

	placed := make(map[string]*PointSensor, len(names))
	err = mesh.WithSession(m.MeshPath(), func(s *mesh.Session) error {
		tags, nodes, err := tissueNodes(s, entities, dim)
		if err != nil {
			return err
		}
		if len(tags) == 0 {
			return fmt.Errorf("%w: tissue %q has no %s nodes", ErrInvalidValue, tissue, dim)
		}
		for _, name := range names {
			i := nearest(nodes, wanted[name])
			g, err := addPointOnNode(s, name, nodes[i])
			if err != nil {
				return fmt.Errorf("sensor %q: %w", name, err)
			}
			p := wanted[name]
			placed[name] = &PointSensor{
				Tissue:     tissue,
				RealCoords: [3]float64{p.X, p.Y, p.Z},
				MeshCoords: [3]float64{nodes[i].X, nodes[i].Y, nodes[i].Z},
				Point:      g,
				Node:       tags[i],
			}
			m.log.Debugf("Sensor %q snapped to node %d, %.3g m away", name, tags[i], placed[name].Offset())
		}
		// The sensor nodes collapse onto the tissue nodes they copy.
		merged, err := s.RemoveDuplicateNodes(m.mergeTol)
		if err != nil {
			return err
		}
		m.log.Debugf("%d duplicate nodes merged", merged)
		return s.Save()
	})
	if err != nil {
		return err
	}
	for name, p := range placed {
		m.Sensors[name] = p
	}
	if err := m.Save(); err != nil {
		return err
	}
	for _, name := range names {
		m.log.Infof("Sensor %q added %s tissue %q", name, dim.Preposition(), tissue)
	}
	return nil
}

// addPointOnNode adds a 0D entity with a copy of the node at p and a point
// element on it, grouped under the next free tag and named after the
// sensor.
func addPointOnNode(s *mesh.Session, name string, p r3.Vec) (Group, error) {
	entity, err := s.AddDiscreteEntity(element.Point, 0)
	if err != nil {
		return Group{}, err
	}
	node := s.MaxNodeTag() + 1
	if err := s.AddNodes(element.Point, entity, []int{node}, []r3.Vec{p}); err != nil {
		return Group{}, err
	}
	if _, err := s.AddElementsByType(element.Point, entity, element.GmshPoint, nil, []int{node}); err != nil {
		return Group{}, err
	}
	tag, err := s.AddPhysicalGroup(element.Point, []int{entity}, 0)
	if err != nil {
		return Group{}, err
	}
	if err := s.SetPhysicalName(element.Point, tag, name); err != nil {
		return Group{}, err
	}
	return Group{Dim: element.Point, Entities: []int{entity}, Tag: tag}, nil
}

// AddPointSensorOn places a sensor on the surface of a tissue.
func (m *Model) AddPointSensorOn(name string, coords []float64, tissue string) error {
	return m.AddPointSensor(name, coords, tissue, element.Surface)
}

// AddPointSensorIn places a sensor in the volume of a tissue.
func (m *Model) AddPointSensorIn(name string, coords []float64, tissue string) error {
	return m.AddPointSensor(name, coords, tissue, element.Volume)
}

// AddPointSensorsOn places a batch of sensors on the surface of a tissue.
func (m *Model) AddPointSensorsOn(coords map[string][]float64, tissue string) error {
	return m.AddPointSensors(coords, tissue, element.Surface)
}

// AddPointSensorsIn places a batch of sensors in the volume of a tissue.
func (m *Model) AddPointSensorsIn(coords map[string][]float64, tissue string) error {
	return m.AddPointSensors(coords, tissue, element.Volume)
}
