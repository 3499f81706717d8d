package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/notargets/femodel/report"
)

// report <model>: plot sensor snap distances or a field histogram.
func reportCmd() *cobra.Command {
	var (
		sensors   string
		field     string
		histogram string
		component int
		bins      int
	)
	cmd := &cobra.Command{
		Use:   "report <model>",
		Short: "Plot sensor snap distances and field histograms",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if sensors == "" && field == "" {
				return fmt.Errorf("nothing to report: give --sensors or --field")
			}
			m, err := loadModel(args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if sensors != "" {
				if err := report.SensorOffsetPlot(m, sensors); err != nil {
					return err
				}
				fmt.Fprintf(w, "Wrote %s\n", sensors)
			}
			if field != "" {
				tissue, name, ok := strings.Cut(field, "/")
				if !ok {
					return fmt.Errorf("field %q is not of the form tissue/name", field)
				}
				if histogram == "" {
					histogram = tissue + "_" + name + ".png"
				}
				s, err := report.FieldHistogram(m, tissue, name, component, bins, histogram)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s[%d]: n=%d mean=%g std=%g min=%g max=%g\nWrote %s\n",
					field, component, s.N, s.Mean, s.Std, s.Min, s.Max, histogram)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sensors, "sensors", "", "write the sensor offset chart to this image")
	cmd.Flags().StringVar(&field, "field", "", "field to summarize as tissue/name")
	cmd.Flags().StringVar(&histogram, "out", "", "histogram image (default <tissue>_<name>.png)")
	cmd.Flags().IntVar(&component, "component", 0, "field component")
	cmd.Flags().IntVar(&bins, "bins", 20, "histogram bins")
	return cmd
}
