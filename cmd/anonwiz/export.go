package anonwiz

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/temirov/anonwiz/internal/gateway"
)

type exportCommandOptions struct {
	query      queryOptions
	outputPath string
}

func newExportCommand(root *rootOptions, env environment) *cobra.Command {
	options := &exportCommandOptions{}

	command := &cobra.Command{
		Use:   exportCommandUse,
		Short: exportCommandShort,
		Args:  cobra.ExactArgs(exportArgumentCount),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExportCommand(cmd, root, env, *options, args[0])
		},
	}
	registerQueryFlags(command, &options.query)
	command.Flags().StringVar(&options.outputPath, outputFlagName, "", outputFlagUsage)
	return command
}

// exportSelector picks the output path source: the flag, an interactive
// prompt, or the default sibling path.
func exportSelector(command *cobra.Command, env environment, outputPath string) gateway.PathSelector {
	switch {
	case outputPath != "":
		return gateway.FixedPathSelector{Path: outputPath}
	case env.isTerminal != nil && env.isTerminal():
		return gateway.PromptPathSelector{Input: command.InOrStdin(), Output: command.ErrOrStderr()}
	default:
		return gateway.DefaultPathSelector{}
	}
}

func runExportCommand(command *cobra.Command, root *rootOptions, env environment, options exportCommandOptions, path string) (commandErr error) {
	current, err := openSession(command, root, env, exportSelector(command, env, options.outputPath))
	if err != nil {
		return err
	}
	defer func() { commandErr = closeSession(current, commandErr) }()

	if err := current.runQuery(command, options.query, path); err != nil {
		return err
	}
	if _, err := current.anonymize(command.Context()); err != nil {
		return err
	}
	exportTask, err := current.wizard.Export()
	if err != nil {
		return err
	}
	outcome, err := exportTask.Wait(command.Context())
	if err != nil {
		return fmt.Errorf("export %s: %w", path, err)
	}

	outputWriter := command.OutOrStdout()
	if outcome.Cancelled {
		_, writeErr := fmt.Fprintln(outputWriter, "export cancelled")
		return writeErr
	}
	if _, writeErr := fmt.Fprintf(outputWriter, "exported %s\n", outcome.Path); writeErr != nil {
		return fmt.Errorf("write export result: %w", writeErr)
	}
	return nil
}
