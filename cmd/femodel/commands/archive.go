package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/notargets/femodel/archive"
)

// publish <model>: upload the model files to the configured archive.
func publishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish <model>",
		Short: "Upload a model to the configured archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadModel(args[0])
			if err != nil {
				return err
			}
			store, err := archive.Open(cmd.Context(), cfg.Archive)
			if err != nil {
				return err
			}
			prefix, err := archive.Publish(cmd.Context(), store, m)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Published %s to %s:%s\n", m.Name, store.Driver(), prefix)
			return nil
		},
	}
}

// fetch <prefix> <dir>: download a published model.
func fetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <prefix> <dir>",
		Short: "Download a published model into a directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := archive.Open(cmd.Context(), cfg.Archive)
			if err != nil {
				return err
			}
			files, err := archive.Fetch(cmd.Context(), store, args[0], args[1])
			if err != nil {
				return err
			}
			for _, f := range files {
				fmt.Fprintln(cmd.OutOrStdout(), f)
			}
			return nil
		},
	}
}
