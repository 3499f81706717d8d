package fem

import (
	"encoding/json"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// Group is a physical group of the mesh: entities of one dimension under a
// tag that is unique across the whole mesh.
type Group struct {
	Dim      int   `json:"dim"`
	Entities []int `json:"entities"`
	Tag      int   `json:"group"`
}

// Tissue is a named region with its bounding surface, its volume and the
// fields defined on its volume elements.
type Tissue struct {
	Surf   Group            `json:"surf"`
	Vol    Group            `json:"vol"`
	Fields map[string]Field `json:"fields"`
}

// FieldType is the kind of value a field holds per element.
type FieldType string

const (
	Scalar FieldType = "scalar"
	Vector FieldType = "vector"
	Tensor FieldType = "tensor"
)

// NComp is the number of values per element.
func (t FieldType) NComp() int {
	switch t {
	case Scalar:
		return 1
	case Vector:
		return 3
	case Tensor:
		return 9
	}
	return 0
}

// fieldTypeOf returns the field type holding n values per element.
func fieldTypeOf(n int) (FieldType, bool) {
	switch n {
	case 1:
		return Scalar, true
	case 3:
		return Vector, true
	case 9:
		return Tensor, true
	}
	return "", false
}

// Field is element data stored as a view in the mesh file.
type Field struct {
	Type    FieldType `json:"field_type"`
	View    int       `json:"view"`
	Formula string    `json:"formula"`
}

// Sensor is a measurement site attached to the mesh. PointSensor is the
// only implementation.
type Sensor interface {
	SensorType() string
	TissueName() string
	sensor()
}

// PointSensor is a sensor on a single mesh node. Coordinates are in
// metres.
type PointSensor struct {
	Tissue     string     `json:"tissue"`
	RealCoords [3]float64 `json:"real_coords"` // Requested position
	MeshCoords [3]float64 `json:"mesh_coords"` // Position of Node
	Point      Group      `json:"point"`
	Node       int        `json:"node"`
}

func (*PointSensor) sensor() {}

func (*PointSensor) SensorType() string { return "point" }

func (s *PointSensor) TissueName() string { return s.Tissue }

// Real returns the requested position.
func (s *PointSensor) Real() r3.Vec {
	return r3.Vec{X: s.RealCoords[0], Y: s.RealCoords[1], Z: s.RealCoords[2]}
}

// Mesh returns the position of the node the sensor sits on.
func (s *PointSensor) Mesh() r3.Vec {
	return r3.Vec{X: s.MeshCoords[0], Y: s.MeshCoords[1], Z: s.MeshCoords[2]}
}

// Offset is the distance between the requested and the mesh position.
func (s *PointSensor) Offset() float64 {
	return r3.Norm(r3.Sub(s.Mesh(), s.Real()))
}

func (s *PointSensor) MarshalJSON() ([]byte, error) {
	type plain PointSensor
	return json.Marshal(struct {
		SensorType string `json:"sensor_type"`
		*plain
	}{s.SensorType(), (*plain)(s)})
}

func unmarshalSensor(data json.RawMessage) (Sensor, error) {
	var head struct {
		SensorType string `json:"sensor_type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}
	switch head.SensorType {
	case "point":
		type plain PointSensor
		var p plain
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		s := PointSensor(p)
		return &s, nil
	}
	return nil, fmt.Errorf("%w: unknown sensor type %q", ErrInvalidValue, head.SensorType)
}
