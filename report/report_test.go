package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/notargets/femodel/affine"
	"github.com/notargets/femodel/element"
	"github.com/notargets/femodel/fem"
	"github.com/notargets/femodel/mesher"
	"github.com/notargets/femodel/volume"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func model(t *testing.T) *fem.Model {
	t.Helper()
	m, err := fem.New("qa", t.TempDir())
	require.NoError(t, err)
	l := volume.NewLabels(2, 2, 1)
	copy(l.Data, []uint16{1, 1, 1, 1})
	require.NoError(t, m.MeshFromArray(l, affine.Identity(), []string{"brain"}, mesher.Params{}))
	require.NoError(t, m.AddPointSensorsOn(map[string][]float64{
		"fz": {-0.5, -0.5, -0.5},
		"cz": {-0.5, -0.5, -1.5},
	}, "brain"))

	elems, err := m.Elements("brain", element.Volume)
	require.NoError(t, err)
	vals := make([]float64, 3*len(elems))
	for i := range vals {
		vals[i] = float64(i % 5)
	}
	_, err = m.FieldFromElements("v", "brain", elems, vals, []float64{0, 0, 0}, "")
	require.NoError(t, err)
	return m
}

func assertImage(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestSensorOffsets(t *testing.T) {
	m := model(t)
	names, offsets := SensorOffsets(m)
	assert.Equal(t, []string{"cz", "fz"}, names)
	assert.InDeltaSlice(t, []float64{1, 0}, offsets, 1e-9)

	path := filepath.Join(t.TempDir(), "sensors.png")
	require.NoError(t, SensorOffsetPlot(m, path))
	assertImage(t, path)

	empty, err := fem.New("empty", t.TempDir())
	require.NoError(t, err)
	assert.Error(t, SensorOffsetPlot(empty, path))
}

func TestFieldHistogram(t *testing.T) {
	m := model(t)
	values, err := FieldComponent(m, "brain", "v", 1)
	require.NoError(t, err)
	elems, err := m.Elements("brain", element.Volume)
	require.NoError(t, err)
	assert.Len(t, values, len(elems))
	assert.Equal(t, 1.0, values[0])

	path := filepath.Join(t.TempDir(), "v.png")
	s, err := FieldHistogram(m, "brain", "v", 0, 5, path)
	require.NoError(t, err)
	assertImage(t, path)
	assert.Equal(t, len(elems), s.N)
	assert.Equal(t, 0.0, s.Min)
	assert.Equal(t, 4.0, s.Max)

	_, err = FieldComponent(m, "brain", "v", 3)
	assert.Error(t, err)
	_, err = FieldHistogram(m, "brain", "missing", 0, 5, path)
	assert.ErrorIs(t, err, fem.ErrInvalidValue)
}

func TestSummarize(t *testing.T) {
	s := Summarize([]float64{1, 2, 3, 4})
	assert.Equal(t, 4, s.N)
	assert.Equal(t, 2.5, s.Mean)
	assert.InDelta(t, 1.2909944487, s.Std, 1e-9)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 4.0, s.Max)
	assert.Equal(t, FieldStats{}, Summarize(nil))
}
