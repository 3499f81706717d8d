package fem

import (
	"context"
	"errors"
	"fmt"

	"github.com/notargets/femodel/affine"
	"github.com/notargets/femodel/mesh"
	"github.com/notargets/femodel/mesher"
	"github.com/notargets/femodel/nifti"
	"github.com/notargets/femodel/volume"
	"gonum.org/v1/gonum/mat"
)

// cropPadding is the number of background voxels kept around the labels so
// that the outer surface is closed.
const cropPadding = 1

// MeshFromArray meshes a label volume and tags label k as tissues[k-1].
// The affine maps voxel indices to millimetres and may be 3×4 or 4×4.
func (m *Model) MeshFromArray(labels *volume.Labels, a mat.Matrix, tissues []string, params mesher.Params) error {
	return m.MeshFromArrayContext(context.Background(), labels, a, tissues, params)
}

// MeshFromArrayContext is MeshFromArray with a context handed to the
// mesher.
func (m *Model) MeshFromArrayContext(ctx context.Context, labels *volume.Labels, a mat.Matrix, tissues []string, params mesher.Params) error {
	if labels == nil || len(labels.Data) != labels.Shape[0]*labels.Shape[1]*labels.Shape[2] || len(labels.Data) == 0 {
		return fmt.Errorf("%w: labels must be a non-empty 3D array", ErrInvalidShape)
	}
	am, err := affine.NormalizeToMeters(a)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidShape, err)
	}
	if err := checkTissueNames(labels, tissues); err != nil {
		return err
	}

	cropped, origin, err := labels.Crop(cropPadding)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	am = affine.Translate(am, origin)
	m.log.Debugf("Labels cropped from %v to %v at %v", labels.Shape, cropped.Shape, origin)
	if err := nifti.Save(cropped.Image(am), m.NiiPath()); err != nil {
		return err
	}

	m.log.Infof("Meshing %d tissues with %T", len(tissues), m.mesher)
	raw, err := m.mesher.Generate(ctx, cropped, [3]float64{1, 1, 1}, params)
	if err != nil {
		return fmt.Errorf("mesh generation: %w", err)
	}
	s, err := mesh.FromRaw(raw)
	if err != nil {
		return fmt.Errorf("mesh generation: %w", err)
	}
	defer s.Close()
	if err := s.Transform(affine.Linear(am), affine.Translation(am)); err != nil {
		return err
	}
	result, err := tagTissues(s, tissues)
	if err != nil {
		return err
	}
	if err := s.WriteFile(m.MeshPath()); err != nil {
		return err
	}

	m.Tissues = result
	m.Sensors = make(map[string]Sensor)
	m.MeshParams = params
	if err := m.Save(); err != nil {
		return err
	}
	m.log.Infof("Mesh written to %s (%d nodes, %d tetrahedra)", m.MeshPath(), s.NumNodes(), s.NumElements(3))
	return nil
}

// checkTissueNames verifies that labels 1..len(tissues) are all present
// and that the names can key the tissue map.
func checkTissueNames(labels *volume.Labels, tissues []string) error {
	top := int(labels.Max())
	if top == 0 {
		return fmt.Errorf("%w: the labels hold no tissue", ErrInvalidValue)
	}
	if len(tissues) != top {
		return fmt.Errorf("%w: %d names for %d labels", ErrTissueCountMismatch, len(tissues), top)
	}
	seen := make(map[string]struct{}, len(tissues))
	for _, t := range tissues {
		if err := checkName("tissue", t); err != nil {
			return err
		}
		if _, ok := seen[t]; ok {
			return fmt.Errorf("%w: tissue %q is listed twice", ErrInvalidValue, t)
		}
		seen[t] = struct{}{}
	}
	if err := labels.CheckContiguous(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return nil
}

// tagTissues creates a named surface and volume group on entity k for the
// tissue of label k. Group tags follow the largest tag already present.
func tagTissues(s *mesh.Session, tissues []string) (map[string]*Tissue, error) {
	out := make(map[string]*Tissue, len(tissues))
	for i, name := range tissues {
		k := i + 1
		var groups [2]Group
		for g, dim := range []int{2, 3} {
			if !s.HasEntity(dim, k) {
				return nil, fmt.Errorf("%w: the mesh has no %dD entity for tissue %q", ErrInvalidValue, dim, name)
			}
			tag, err := s.AddPhysicalGroup(dim, []int{k}, 0)
			if err != nil {
				return nil, err
			}
			if err := s.SetPhysicalName(dim, tag, name); err != nil {
				return nil, err
			}
			groups[g] = Group{Dim: dim, Entities: []int{k}, Tag: tag}
		}
		out[name] = &Tissue{Surf: groups[0], Vol: groups[1], Fields: make(map[string]Field)}
	}
	return out, nil
}

// MeshFromImage meshes the labels stored in a NIfTI file.
func (m *Model) MeshFromImage(path string, tissues []string, params mesher.Params) error {
	img, err := nifti.Load(path)
	if err != nil {
		return err
	}
	labels, err := volume.LabelsFromImage(img)
	if err != nil {
		return imageError(err)
	}
	return m.MeshFromArray(labels, img.Affine, tissues, params)
}

// MeshFromMasks meshes binary masks, one per tissue. Mask k becomes label
// k+1 and overrides the masks before it where they overlap.
func (m *Model) MeshFromMasks(masks []volume.NamedMask, a mat.Matrix, params mesher.Params) error {
	for _, nm := range masks {
		if err := checkName("tissue", nm.Name); err != nil {
			return err
		}
		if nm.Mask == nil {
			return fmt.Errorf("%w: mask %q is missing", ErrInvalidValue, nm.Name)
		}
	}
	labels, names, err := volume.FromMasks(masks)
	if err != nil {
		return imageError(err)
	}
	return m.MeshFromArray(labels, a, names, params)
}

// MeshFromImages meshes binary masks stored in NIfTI files. The affine of
// the first image is used for all of them.
func (m *Model) MeshFromImages(paths []volume.NamedPath, params mesher.Params) error {
	if len(paths) == 0 {
		return fmt.Errorf("%w: no mask given", ErrInvalidValue)
	}
	masks := make([]volume.NamedMask, 0, len(paths))
	var a *mat.Dense
	for _, np := range paths {
		img, err := nifti.Load(np.Path)
		if err != nil {
			return err
		}
		if a == nil {
			a = img.Affine
		}
		mask, err := volume.LabelsFromImage(img)
		if err != nil {
			return imageError(err)
		}
		masks = append(masks, volume.NamedMask{Name: np.Name, Mask: mask})
	}
	return m.MeshFromMasks(masks, a, params)
}

func imageError(err error) error {
	if errors.Is(err, volume.ErrShape) {
		return fmt.Errorf("%w: %v", ErrInvalidShape, err)
	}
	return fmt.Errorf("%w: %v", ErrInvalidValue, err)
}
