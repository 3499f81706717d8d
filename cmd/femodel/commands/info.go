package commands

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/notargets/femodel/affine"
	"github.com/notargets/femodel/fem"
	"github.com/notargets/femodel/mesh"
)

func printModel(w io.Writer, m *fem.Model) error {
	fmt.Fprintf(w, "Model: %s\nID: %s\nDirectory: %s\n\n", m.Name, m.ID, m.Dir())

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TISSUE\tSURFACE\tVOLUME\tFIELDS")
	for _, name := range m.TissueNames() {
		t := m.Tissues[name]
		fields := make([]string, 0, len(t.Fields))
		for f, v := range t.Fields {
			fields = append(fields, fmt.Sprintf("%s(%s)", f, v.Type))
		}
		sort.Strings(fields)
		fmt.Fprintf(tw, "%s\t%d\t%d\t%v\n", name, t.Surf.Tag, t.Vol.Tag, fields)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(m.Sensors) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(tw, "SENSOR\tTISSUE\tGROUP\tNODE\tOFFSET (mm)")
		for _, name := range m.SensorNames() {
			p, ok := m.Sensors[name].(*fem.PointSensor)
			if !ok {
				continue
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%.3f\n", name, p.Tissue, p.Point.Tag, p.Node, p.Offset()/affine.MillimetersToMeters)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// info <model>: print the model metadata and a summary of its mesh.
func infoCmd() *cobra.Command {
	var noMesh bool
	cmd := &cobra.Command{
		Use:   "info <model>",
		Short: "Show tissues, sensors and a mesh summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadModel(args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if err := printModel(w, m); err != nil {
				return err
			}
			if noMesh || len(m.Tissues) == 0 {
				return nil
			}
			return mesh.WithSession(m.MeshPath(), func(s *mesh.Session) error {
				fmt.Fprintln(w)
				fmt.Fprint(w, s.String())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&noMesh, "no-mesh", false, "skip the mesh summary")
	return cmd
}
