package anonwiz

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/temirov/anonwiz/internal/display"
	"github.com/temirov/anonwiz/internal/gateway"
)

type previewCommandOptions struct {
	query          queryOptions
	format         string
	showSuppressed bool
}

func newPreviewCommand(root *rootOptions, env environment) *cobra.Command {
	options := &previewCommandOptions{format: formatTable}

	command := &cobra.Command{
		Use:   previewCommandUse,
		Short: previewCommandShort,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreviewCommand(cmd, root, env, *options, args[0])
		},
	}
	registerQueryFlags(command, &options.query)
	command.Flags().StringVar(&options.format, formatFlagName, formatTable, formatFlagUsage)
	registerBoolChoice(command.Flags(), &options.showSuppressed, showSuppressedFlagName, showSuppressedFlagUsage)
	return command
}

func runPreviewCommand(command *cobra.Command, root *rootOptions, env environment, options previewCommandOptions, path string) (commandErr error) {
	if options.format != formatTable && options.format != formatMarkdown {
		return fmt.Errorf("unknown format %q", options.format)
	}
	current, err := openSession(command, root, env, gateway.DefaultPathSelector{})
	if err != nil {
		return err
	}
	defer func() { commandErr = closeSession(current, commandErr) }()

	if err := current.runQuery(command, options.query, path); err != nil {
		return err
	}
	result, err := current.anonymize(command.Context())
	if err != nil {
		return err
	}

	mode := displayMode(options.format)
	outputWriter := command.OutOrStdout()
	if err := display.Result(outputWriter, result, display.ResultOptions{Mode: mode, ShowSuppressed: options.showSuppressed}); err != nil {
		return err
	}
	return display.Summary(outputWriter, result.Summary, mode)
}
