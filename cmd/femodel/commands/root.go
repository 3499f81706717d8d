package commands

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/notargets/femodel/config"
	"github.com/notargets/femodel/fem"
)

var (
	configPath string
	parent     string
	verbose    bool

	cfg  *config.Config
	opts []fem.Option
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "femodel",
		Short:         "Build finite element head models from labelled images",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg = config.Default()
			if configPath != "" {
				c, err := config.Load(configPath)
				if err != nil {
					return err
				}
				cfg = c
			}
			level, err := fem.ParseLevel(cfg.LogLevel)
			if err != nil {
				return err
			}
			opts = []fem.Option{
				fem.WithLogger(log.New(cmd.ErrOrStderr(), "", log.LstdFlags)),
				fem.WithLogLevel(level),
				fem.WithDebug(verbose),
				fem.WithMesher(cfg.NewMesher()),
				fem.WithMergeTolerance(cfg.MergeTolerance),
			}
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML run configuration")
	root.PersistentFlags().StringVarP(&parent, "dir", "d", ".", "directory that holds the model directories")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug messages")

	root.AddCommand(meshCmd(), sensorsCmd(), fieldCmd(), infoCmd(),
		publishCmd(), fetchCmd(), reportCmd())
	return root
}

func Execute() error {
	return newRootCmd().Execute()
}

func loadModel(name string) (*fem.Model, error) {
	return fem.Load(name, parent, opts...)
}
