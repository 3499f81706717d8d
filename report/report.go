// Package report draws quality plots of a model: how far each sensor moved
// when it was snapped to the mesh, and the distribution of a field's
// values.
package report

import (
	"fmt"

	"github.com/notargets/femodel/affine"
	"github.com/notargets/femodel/fem"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

const (
	width  = 8 * vg.Inch
	height = 5 * vg.Inch
)

// SensorOffsets returns the distance in millimetres between the requested
// and the mesh position of every point sensor, in sensor name order.
func SensorOffsets(m *fem.Model) ([]string, []float64) {
	var (
		names   []string
		offsets []float64
	)
	for _, name := range m.SensorNames() {
		p, ok := m.Sensors[name].(*fem.PointSensor)
		if !ok {
			continue
		}
		names = append(names, name)
		offsets = append(offsets, p.Offset()/affine.MillimetersToMeters)
	}
	return names, offsets
}

// SensorOffsetPlot writes a bar chart of SensorOffsets to path. The image
// format follows the extension (.png, .svg, .pdf).
func SensorOffsetPlot(m *fem.Model, path string) error {
	names, offsets := SensorOffsets(m)
	if len(names) == 0 {
		return fmt.Errorf("model %q has no point sensors", m.Name)
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s: sensor snap distance (mean %.3g mm)", m.Name, stat.Mean(offsets, nil))
	p.Y.Label.Text = "Distance (mm)"
	bars, err := plotter.NewBarChart(plotter.Values(offsets), vg.Points(12))
	if err != nil {
		return err
	}
	p.Add(bars, plotter.NewGrid())
	p.NominalX(names...)
	return p.Save(width, height, path)
}

// FieldStats summarizes one component of a field.
type FieldStats struct {
	N         int
	Mean, Std float64
	Min, Max  float64
}

// FieldComponent returns component c of every element value of a field.
func FieldComponent(m *fem.Model, tissue, field string, c int) ([]float64, error) {
	_, vals, ncomp, err := m.FieldValues(tissue, field)
	if err != nil {
		return nil, err
	}
	if c < 0 || c >= ncomp {
		return nil, fmt.Errorf("field %q has %d components, asked for %d", field, ncomp, c)
	}
	out := make([]float64, 0, len(vals)/ncomp)
	for i := c; i < len(vals); i += ncomp {
		out = append(out, vals[i])
	}
	return out, nil
}

// Summarize computes the statistics of values.
func Summarize(values []float64) FieldStats {
	s := FieldStats{N: len(values)}
	if len(values) == 0 {
		return s
	}
	s.Mean, s.Std = stat.MeanStdDev(values, nil)
	s.Min, s.Max = values[0], values[0]
	for _, v := range values[1:] {
		s.Min = min(s.Min, v)
		s.Max = max(s.Max, v)
	}
	return s
}

// FieldHistogram writes a histogram of component c of a field to path.
func FieldHistogram(m *fem.Model, tissue, field string, c, bins int, path string) (FieldStats, error) {
	values, err := FieldComponent(m, tissue, field, c)
	if err != nil {
		return FieldStats{}, err
	}
	s := Summarize(values)
	if bins < 1 {
		bins = 20
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s/%s[%d]: mean %.4g, std %.4g", tissue, field, c, s.Mean, s.Std)
	p.X.Label.Text = "Value"
	p.Y.Label.Text = "Elements"
	h, err := plotter.NewHist(plotter.Values(values), bins)
	if err != nil {
		return FieldStats{}, err
	}
	p.Add(h)
	return s, p.Save(width, height, path)
}
