// Package dist describes the random parameters of a parametric problem.
// Only the degenerate, constant case is provided.
package dist

import (
	"encoding/json"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat/distuv"
)

var ErrUnknownKind = errors.New("dist: unknown distribution kind")

// Distribution is a random parameter.
type Distribution interface {
	// Kind names the distribution in serialized form.
	Kind() string
	// Expect is the expected value.
	Expect() float64
	// Dist is the sampler, nil when the parameter is not random.
	Dist() distuv.Rander
}

// Constant is a parameter whose value is known.
type Constant struct {
	Val float64
}

func NewConstant(val float64) Constant { return Constant{Val: val} }

func (Constant) Kind() string { return "constant" }

func (c Constant) Expect() float64 { return c.Val }

func (Constant) Dist() distuv.Rander { return nil }

func (c Constant) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type string  `json:"dist_type"`
		Val  float64 `json:"val"`
	}{c.Kind(), c.Val})
}

// Unmarshal decodes a distribution written by MarshalJSON.
func Unmarshal(data []byte) (Distribution, error) {
	var head struct {
		Type string   `json:"dist_type"`
		Val  *float64 `json:"val"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}
	switch head.Type {
	case "constant":
		if head.Val == nil {
			return nil, fmt.Errorf("dist: constant without a value")
		}
		return Constant{Val: *head.Val}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, head.Type)
}
