package anonwiz

import (
	"github.com/spf13/cobra"

	"github.com/temirov/anonwiz/internal/engine"
)

// newEngineCommand serves the bundled anonymizer. Sessions run it as their
// service when no external command is configured.
func newEngineCommand(root *rootOptions, env environment) *cobra.Command {
	return &cobra.Command{
		Use:    engineCommandUse,
		Short:  engineCommandShort,
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rootConfiguration, err := loadRootConfiguration(root.configPath)
			if err != nil {
				return err
			}
			logger, err := newLogger(rootConfiguration, root.logLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return engine.New(env.filesystem, logger).Serve(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
