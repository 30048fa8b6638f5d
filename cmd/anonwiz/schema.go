package anonwiz

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/temirov/anonwiz/internal/display"
	"github.com/temirov/anonwiz/internal/gateway"
)

type schemaCommandOptions struct {
	format string
}

func newSchemaCommand(root *rootOptions, env environment) *cobra.Command {
	options := &schemaCommandOptions{format: formatTable}

	command := &cobra.Command{
		Use:   schemaCommandUse,
		Short: schemaCommandShort,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchemaCommand(cmd, root, env, *options, args[0])
		},
	}
	command.Flags().StringVar(&options.format, formatFlagName, formatTable, formatFlagUsage)
	return command
}

func runSchemaCommand(command *cobra.Command, root *rootOptions, env environment, options schemaCommandOptions, path string) (commandErr error) {
	current, err := openSession(command, root, env, gateway.DefaultPathSelector{})
	if err != nil {
		return err
	}
	defer func() { commandErr = closeSession(current, commandErr) }()

	schema, err := current.loadSchema(command.Context(), path)
	if err != nil {
		return err
	}

	outputWriter := command.OutOrStdout()
	switch options.format {
	case formatYAML:
		encoder := yaml.NewEncoder(outputWriter)
		encoder.SetIndent(2)
		if err := encoder.Encode(schema); err != nil {
			return fmt.Errorf("write schema: %w", err)
		}
		return encoder.Close()
	case formatTable, formatMarkdown:
		return display.Schema(outputWriter, schema, displayMode(options.format))
	default:
		return fmt.Errorf("unknown format %q", options.format)
	}
}

func displayMode(format string) display.Mode {
	if format == formatMarkdown {
		return display.Markdown
	}
	return display.ASCII
}
