package volume

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/notargets/femodel/nifti"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelsIndexing(t *testing.T) {
	l := NewLabels(3, 4, 5)
	l.Set(2, 1, 3, 7)
	assert.Equal(t, uint16(7), l.At(2, 1, 3))
	assert.Equal(t, 2+3*(1+4*3), l.Index(2, 1, 3))
	assert.Equal(t, uint16(7), l.Max())
}

func TestCheckContiguous(t *testing.T) {
	l := NewLabels(2, 2, 2)
	assert.Error(t, l.CheckContiguous(), "empty volume")

	l.Set(0, 0, 0, 1)
	l.Set(1, 1, 1, 3)
	err := l.CheckContiguous()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "label 2")

	l.Set(1, 0, 0, 2)
	assert.NoError(t, l.CheckContiguous())
	assert.Equal(t, []uint16{1, 2, 3}, l.Present())
}

func TestCropPadsAndClamps(t *testing.T) {
	l := NewLabels(6, 5, 4)
	l.Set(2, 2, 1, 1)
	l.Set(3, 2, 2, 2)

	out, origin, err := l.Crop(1)
	require.NoError(t, err)
	assert.Equal(t, [3]int{1, 1, 0}, origin)
	assert.Equal(t, [3]int{4, 3, 4}, out.Shape)
	assert.Equal(t, uint16(1), out.At(1, 1, 1))
	assert.Equal(t, uint16(2), out.At(2, 1, 2))

	// A voxel on the array edge clamps the padding
	l = NewLabels(3, 3, 3)
	l.Set(0, 0, 0, 1)
	out, origin, err = l.Crop(1)
	require.NoError(t, err)
	assert.Equal(t, [3]int{0, 0, 0}, origin)
	assert.Equal(t, [3]int{2, 2, 2}, out.Shape)

	_, _, err = NewLabels(2, 2, 2).Crop(1)
	assert.Error(t, err)
}

func TestLabelsImageRoundTrip(t *testing.T) {
	l := NewLabels(2, 2, 1)
	copy(l.Data, []uint16{0, 1, 2, 1})
	img := l.Image(nil)
	assert.Equal(t, nifti.DTUint16, img.Datatype)

	back, err := LabelsFromImage(img)
	require.NoError(t, err)
	if diff := cmp.Diff(l, back); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}

	img.Data[0] = -3
	_, err = LabelsFromImage(img)
	assert.Error(t, err)

	_, err = LabelsFromImage(nifti.NewImage([]int{2, 2, 1, 3}, nil, nifti.DTUint8))
	assert.ErrorIs(t, err, ErrShape)
}

func TestFromMasks(t *testing.T) {
	a := NewLabels(2, 1, 1)
	b := NewLabels(2, 1, 1)
	a.Data[0], a.Data[1] = 1, 1
	b.Data[1] = 1

	l, names, err := FromMasks([]NamedMask{{Name: "scalp", Mask: a}, {Name: "brain", Mask: b}})
	require.NoError(t, err)
	assert.Equal(t, []string{"scalp", "brain"}, names)
	assert.Equal(t, []uint16{1, 2}, l.Data)

	_, _, err = FromMasks([]NamedMask{{Name: "a", Mask: a}, {Name: "c", Mask: NewLabels(1, 1, 1)}})
	assert.ErrorIs(t, err, ErrShape)
	_, _, err = FromMasks(nil)
	assert.Error(t, err)
}

func TestGridFromImage(t *testing.T) {
	img := nifti.NewImage([]int{2, 1, 1, 3}, nil, nifti.DTFloat32)
	for i := range img.Data {
		img.Data[i] = float64(i)
	}
	g, err := GridFromImage(img)
	require.NoError(t, err)
	assert.Equal(t, 3, g.NComp)
	// Component axis is slowest
	assert.Equal(t, 3.0, g.At(1, 0, 0, 1))

	g, err = GridFromImage(nifti.NewImage([]int{2, 2, 2}, nil, nifti.DTFloat32))
	require.NoError(t, err)
	assert.Equal(t, 1, g.NComp)

	_, err = GridFromImage(nifti.NewImage([]int{2, 2, 2, 2}, nil, nifti.DTFloat32))
	assert.ErrorIs(t, err, ErrShape)
}

func TestGridValidate(t *testing.T) {
	g := NewGrid(2, 2, 2, 9)
	assert.NoError(t, g.Validate())
	g.Data = g.Data[1:]
	assert.ErrorIs(t, g.Validate(), ErrShape)
}
