// Package fem builds finite element models of the head (or any labelled
// body) from segmented volumes: it meshes the labels, tags every label as a
// named tissue, places point sensors on mesh nodes and attaches per element
// fields to tissues. A model lives in its own directory holding the mesh
// (.msh), the cropped label volume (.nii) and a JSON description.
//
// Inputs are in millimetres; the mesh and everything stored with it is in
// metres.
package fem

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/notargets/femodel/mesher"
	"github.com/notargets/femodel/nifti"
	"gonum.org/v1/gonum/mat"
)

// Model is a finite element model stored in Dir(). It is not safe for
// concurrent use; callers serialize access to a model.
type Model struct {
	ID         uuid.UUID
	Name       string
	Tissues    map[string]*Tissue
	Sensors    map[string]Sensor
	MeshParams mesher.Params

	dir      string
	log      *logger
	mesher   mesher.Mesher
	mergeTol float64
}

type metadata struct {
	ID         uuid.UUID                  `json:"id"`
	Name       string                     `json:"name"`
	Tissues    map[string]*Tissue         `json:"tissues"`
	Sensors    map[string]json.RawMessage `json:"sensors"`
	MeshParams mesher.Params              `json:"mesh_params"`
}

func checkName(kind, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: %s name is empty", ErrInvalidValue, kind)
	}
	return nil
}

func newModel(name, parent string, opts []Option) (*Model, error) {
	if err := checkName("model", name); err != nil {
		return nil, err
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil, fmt.Errorf("%w: model name %q is not a directory name", ErrInvalidValue, name)
	}
	m := &Model{
		Name:     name,
		Tissues:  make(map[string]*Tissue),
		Sensors:  make(map[string]Sensor),
		dir:      filepath.Join(parent, name),
		log:      newLogger(),
		mesher:   mesher.VoxelMesher{},
		mergeTol: DefaultMergeTolerance,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// New creates an empty model in parent/name and writes its description.
func New(name, parent string, opts ...Option) (*Model, error) {
	m, err := newModel(name, parent, opts)
	if err != nil {
		return nil, err
	}
	m.ID = uuid.New()
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, err
	}
	if err := m.Save(); err != nil {
		return nil, err
	}
	m.log.Infof("Model %q created in %s", name, m.dir)
	return m, nil
}

// Load reads the model stored in parent/name.
func Load(name, parent string, opts ...Option) (*Model, error) {
	m, err := newModel(name, parent, opts)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(m.MetadataPath())
	if err != nil {
		return nil, err
	}
	var md metadata
	if err := json.Unmarshal(b, &md); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArgumentType, m.MetadataPath(), err)
		}
		return nil, fmt.Errorf("%s: %w", m.MetadataPath(), err)
	}
	if md.Name != "" && md.Name != name {
		m.log.Warnf("Model directory %q holds model %q", name, md.Name)
	}
	m.ID = md.ID
	m.MeshParams = md.MeshParams
	for t, tissue := range md.Tissues {
		if tissue == nil {
			return nil, fmt.Errorf("%w: tissue %q has no description", ErrInvalidValue, t)
		}
		if tissue.Fields == nil {
			tissue.Fields = make(map[string]Field)
		}
		m.Tissues[t] = tissue
	}
	for s, raw := range md.Sensors {
		sensor, err := unmarshalSensor(raw)
		if err != nil {
			return nil, fmt.Errorf("sensor %q: %w", s, err)
		}
		m.Sensors[s] = sensor
	}
	return m, nil
}

// Dir is the model directory.
func (m *Model) Dir() string { return m.dir }

// MeshPath is the path of the MSH file.
func (m *Model) MeshPath() string { return filepath.Join(m.dir, m.Name+".msh") }

// NiiPath is the path of the cropped label volume.
func (m *Model) NiiPath() string { return filepath.Join(m.dir, m.Name+".nii") }

// MetadataPath is the path of the JSON description.
func (m *Model) MetadataPath() string { return filepath.Join(m.dir, m.Name+".json") }

// Save writes the JSON description through a temporary file so a crash
// never leaves a truncated description behind.
func (m *Model) Save() error {
	md := metadata{
		ID:         m.ID,
		Name:       m.Name,
		Tissues:    m.Tissues,
		Sensors:    make(map[string]json.RawMessage, len(m.Sensors)),
		MeshParams: m.MeshParams,
	}
	for name, s := range m.Sensors {
		b, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("sensor %q: %w", name, err)
		}
		md.Sensors[name] = b
	}
	b, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return err
	}
	return writeFile(m.MetadataPath(), b, 0o644)
}

func writeFile(path string, b []byte, mode os.FileMode) error {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Chmod(mode); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// TissueNames returns the tissue names in label order.
func (m *Model) TissueNames() []string {
	names := make([]string, 0, len(m.Tissues))
	for n := range m.Tissues {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := m.Tissues[names[i]], m.Tissues[names[j]]
		if a.Vol.Tag != b.Vol.Tag {
			return a.Vol.Tag < b.Vol.Tag
		}
		return names[i] < names[j]
	})
	return names
}

// SensorNames returns the sensor names sorted.
func (m *Model) SensorNames() []string {
	names := make([]string, 0, len(m.Sensors))
	for n := range m.Sensors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Affine returns the voxel to world (metres) affine of the label volume.
// It is read back from the .nii sform and so carries float32 precision;
// the mesh itself was transformed with the full float64 affine.
func (m *Model) Affine() (*mat.Dense, error) {
	img, err := nifti.Load(m.NiiPath())
	if err != nil {
		return nil, err
	}
	return img.Affine, nil
}

// Shape returns the shape of the label volume.
func (m *Model) Shape() ([]int, error) {
	img, err := nifti.Load(m.NiiPath())
	if err != nil {
		return nil, err
	}
	return img.Shape, nil
}

func (m *Model) tissue(name string) (*Tissue, error) {
	t, ok := m.Tissues[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTissue, name)
	}
	return t, nil
}

// Sensor returns the sensor called name.
func (m *Model) Sensor(name string) (Sensor, error) {
	s, ok := m.Sensors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSensor, name)
	}
	return s, nil
}
