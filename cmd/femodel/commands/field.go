package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// field <model> <name> <image.nii>: sample an image onto a tissue.
func fieldCmd() *cobra.Command {
	var (
		tissue  string
		fill    []float64
		formula string
		nearest bool
	)
	cmd := &cobra.Command{
		Use:   "field <model> <name> <image.nii>",
		Short: "Sample a 3D or 4D image at the element centroids of a tissue",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadModel(args[0])
			if err != nil {
				return err
			}
			f, err := m.FieldFromImage(args[1], args[2], tissue, fill, formula, nearest)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Field %s (%s) stored in view %d\n", args[1], f.Type, f.View)
			return nil
		},
	}
	cmd.Flags().StringVar(&tissue, "tissue", "", "tissue the field is defined on")
	cmd.Flags().Float64SliceVar(&fill, "fill", []float64{0}, "value of elements outside the image, one per component")
	cmd.Flags().StringVar(&formula, "formula", "", "formula recorded with the field")
	cmd.Flags().BoolVar(&nearest, "nearest", false, "nearest voxel instead of linear interpolation")
	_ = cmd.MarkFlagRequired("tissue")
	return cmd
}
