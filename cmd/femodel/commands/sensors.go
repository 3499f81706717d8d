package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/notargets/femodel/element"
)

// parseSensor reads "name=x,y,z" with coordinates in millimetres.
func parseSensor(s string) (string, []float64, error) {
	name, list, ok := strings.Cut(s, "=")
	if !ok {
		return "", nil, fmt.Errorf("sensor %q is not of the form name=x,y,z", s)
	}
	var coords []float64
	for _, f := range strings.Split(list, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return "", nil, fmt.Errorf("sensor %q: %w", name, err)
		}
		coords = append(coords, v)
	}
	return name, coords, nil
}

// sensors <model> name=x,y,z...: snap point sensors to a tissue.
func sensorsCmd() *cobra.Command {
	var (
		tissue string
		dim    int
	)
	cmd := &cobra.Command{
		Use:   "sensors <model> <name=x,y,z>...",
		Short: "Add point sensors on the surface or in the volume of a tissue",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := element.ParseDimension(dim)
			if err != nil {
				return err
			}
			coords := make(map[string][]float64, len(args)-1)
			for _, a := range args[1:] {
				name, c, err := parseSensor(a)
				if err != nil {
					return err
				}
				if _, dup := coords[name]; dup {
					return fmt.Errorf("sensor %q is given twice", name)
				}
				coords[name] = c
			}
			m, err := loadModel(args[0])
			if err != nil {
				return err
			}
			if err := m.AddPointSensors(coords, tissue, d); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %d sensors %s tissue %s\n", len(coords), d.Preposition(), tissue)
			return nil
		},
	}
	cmd.Flags().StringVar(&tissue, "tissue", "", "tissue the sensors are placed on")
	cmd.Flags().IntVar(&dim, "dim", int(element.Surface), "2 for the tissue surface, 3 for its volume")
	_ = cmd.MarkFlagRequired("tissue")
	return cmd
}
