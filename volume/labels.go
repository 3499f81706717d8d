package volume

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/notargets/femodel/nifti"
	"gonum.org/v1/gonum/mat"
)

// ErrShape is returned when an array does not have the expected
// dimensionality or when arrays that must agree in shape do not.
var ErrShape = errors.New("volume: invalid shape")

// Labels is a 3D segmentation. Label 0 is background; tissues are numbered
// from 1. The first axis varies fastest in Data, as in NIfTI files.
type Labels struct {
	Shape [3]int
	Data  []uint16
}

// NewLabels allocates an all-background volume.
func NewLabels(nx, ny, nz int) *Labels {
	return &Labels{
		Shape: [3]int{nx, ny, nz},
		Data:  make([]uint16, nx*ny*nz),
	}
}

// Index returns the flat offset of voxel (i, j, k).
func (l *Labels) Index(i, j, k int) int {
	return i + l.Shape[0]*(j+l.Shape[1]*k)
}

func (l *Labels) At(i, j, k int) uint16 { return l.Data[l.Index(i, j, k)] }

func (l *Labels) Set(i, j, k int, v uint16) { l.Data[l.Index(i, j, k)] = v }

// Max returns the largest label value.
func (l *Labels) Max() uint16 {
	var m uint16
	for _, v := range l.Data {
		if v > m {
			m = v
		}
	}
	return m
}

// Present returns the sorted, distinct non-zero labels in the volume.
func (l *Labels) Present() []uint16 {
	seen := make(map[uint16]struct{})
	for _, v := range l.Data {
		if v != 0 {
			seen[v] = struct{}{}
		}
	}
	out := make([]uint16, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CheckContiguous verifies that the non-zero labels are exactly 1..Max().
func (l *Labels) CheckContiguous() error {
	present := l.Present()
	if len(present) == 0 {
		return fmt.Errorf("volume contains no labelled voxels")
	}
	for i, v := range present {
		if int(v) != i+1 {
			return fmt.Errorf("labels must be contiguous from 1, label %d is missing", i+1)
		}
	}
	return nil
}

// BoundingBox returns the inclusive index bounds of the non-zero voxels.
func (l *Labels) BoundingBox() (lo, hi [3]int, ok bool) {
	lo = l.Shape
	hi = [3]int{-1, -1, -1}
	for k := 0; k < l.Shape[2]; k++ {
		for j := 0; j < l.Shape[1]; j++ {
			for i := 0; i < l.Shape[0]; i++ {
				if l.At(i, j, k) == 0 {
					continue
				}
				ok = true
				idx := [3]int{i, j, k}
				for a := 0; a < 3; a++ {
					if idx[a] < lo[a] {
						lo[a] = idx[a]
					}
					if idx[a] > hi[a] {
						hi[a] = idx[a]
					}
				}
			}
		}
	}
	return lo, hi, ok
}

// Crop returns the sub-volume spanning the non-zero bounding box grown by
// pad voxels on each side (clamped to the array) and the index of its
// origin in the original volume.
func (l *Labels) Crop(pad int) (*Labels, [3]int, error) {
	lo, hi, ok := l.BoundingBox()
	if !ok {
		return nil, [3]int{}, fmt.Errorf("cannot crop a volume without labelled voxels")
	}
	for a := 0; a < 3; a++ {
		lo[a] = max(lo[a]-pad, 0)
		hi[a] = min(hi[a]+pad, l.Shape[a]-1)
	}
	out := NewLabels(hi[0]-lo[0]+1, hi[1]-lo[1]+1, hi[2]-lo[2]+1)
	for k := 0; k < out.Shape[2]; k++ {
		for j := 0; j < out.Shape[1]; j++ {
			for i := 0; i < out.Shape[0]; i++ {
				out.Set(i, j, k, l.At(i+lo[0], j+lo[1], k+lo[2]))
			}
		}
	}
	return out, lo, nil
}

// LabelsFromImage converts a 3D image into labels. Values are rounded and
// must fit in 0..65535.
func LabelsFromImage(img *nifti.Image) (*Labels, error) {
	if len(img.Shape) != 3 {
		return nil, fmt.Errorf("%w: labels must be a 3D array, got %dD", ErrShape, len(img.Shape))
	}
	l := NewLabels(img.Shape[0], img.Shape[1], img.Shape[2])
	for i, v := range img.Data {
		r := math.Round(v)
		if r < 0 || r > math.MaxUint16 || math.IsNaN(v) {
			return nil, fmt.Errorf("label value %v at voxel %d is out of range", v, i)
		}
		l.Data[i] = uint16(r)
	}
	return l, nil
}

// Image wraps the labels as an unsigned 16-bit image with the given affine.
func (l *Labels) Image(affine *mat.Dense) *nifti.Image {
	img := nifti.NewImage(l.Shape[:], affine, nifti.DTUint16)
	for i, v := range l.Data {
		img.Data[i] = float64(v)
	}
	return img
}

// NamedMask is one tissue's binary mask.
type NamedMask struct {
	Name string
	Mask *Labels // Non-zero voxels belong to the tissue
}

// NamedPath is one tissue's mask stored as an image file.
type NamedPath struct {
	Name string
	Path string
}

// FromMasks stacks binary masks into one label volume. Mask k becomes label
// k+1; where masks overlap the later one wins.
func FromMasks(masks []NamedMask) (*Labels, []string, error) {
	if len(masks) == 0 {
		return nil, nil, fmt.Errorf("at least one mask is required")
	}
	shape := masks[0].Mask.Shape
	out := NewLabels(shape[0], shape[1], shape[2])
	names := make([]string, 0, len(masks))
	for k, m := range masks {
		if m.Mask.Shape != shape {
			return nil, nil, fmt.Errorf("%w: mask %q has shape %v, expected %v", ErrShape, m.Name, m.Mask.Shape, shape)
		}
		for i, v := range m.Mask.Data {
			if v != 0 {
				out.Data[i] = uint16(k + 1)
			}
		}
		names = append(names, m.Name)
	}
	return out, names, nil
}
