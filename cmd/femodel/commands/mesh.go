package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/notargets/femodel/fem"
	"github.com/notargets/femodel/volume"
)

// mesh <model> [labels.nii]: create a model and mesh it.
func meshCmd() *cobra.Command {
	var (
		tissues []string
		masks   []string
	)
	cmd := &cobra.Command{
		Use:   "mesh <model> [labels.nii]",
		Short: "Create a model from a label image or from per-tissue masks",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 2 && len(masks) > 0 {
				return fmt.Errorf("give either a label image or --mask, not both")
			}
			if len(args) == 1 && len(masks) == 0 {
				return fmt.Errorf("a label image or at least one --mask is required")
			}
			var paths []volume.NamedPath
			for _, m := range masks {
				name, path, ok := strings.Cut(m, "=")
				if !ok {
					return fmt.Errorf("mask %q is not of the form tissue=path", m)
				}
				paths = append(paths, volume.NamedPath{Name: name, Path: path})
			}

			m, err := fem.New(args[0], parent, opts...)
			if err != nil {
				return err
			}
			if len(paths) > 0 {
				err = m.MeshFromImages(paths, cfg.MeshParams)
			} else {
				err = m.MeshFromImage(args[1], tissues, cfg.MeshParams)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Model %s (%s) meshed with %d tissues\n", m.Name, m.ID, len(m.Tissues))
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&tissues, "tissues", "t", nil, "tissue names, one per label in label order")
	cmd.Flags().StringArrayVar(&masks, "mask", nil, "tissue mask as name=path (repeatable)")
	return cmd
}
