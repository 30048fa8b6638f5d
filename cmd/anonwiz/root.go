// Package anonwiz wires the anonymization wizard into a cobra command tree.
package anonwiz

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/temirov/anonwiz/internal/fsops"
	"github.com/temirov/anonwiz/internal/gateway"
)

type rootOptions struct {
	configPath  string
	logLevel    string
	metricsFile string
}

// environment holds the process collaborators the commands use. Tests swap
// them to serve the anonymizer in-process from an in-memory filesystem.
type environment struct {
	runner     gateway.CommandRunner
	filesystem fsops.FS
	isTerminal func() bool
	executable func() (string, error)
}

func defaultEnvironment() environment {
	return environment{
		filesystem: fsops.NewOS(),
		isTerminal: func() bool {
			descriptor := os.Stdin.Fd()
			return isatty.IsTerminal(descriptor) || isatty.IsCygwinTerminal(descriptor)
		},
		executable: os.Executable,
	}
}

// NewRootCommand builds the anonwiz command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(defaultEnvironment())
}

func newRootCommand(env environment) *cobra.Command {
	options := &rootOptions{configPath: defaultConfigPath}

	command := &cobra.Command{
		Use:           rootCommandUse,
		Short:         rootCommandShort,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	command.PersistentFlags().StringVar(&options.configPath, configFlagName, defaultConfigPath, configFlagUsage)
	command.PersistentFlags().StringVar(&options.logLevel, logLevelFlagName, "", logLevelFlagUsage)
	command.PersistentFlags().StringVar(&options.metricsFile, metricsFileFlagName, "", metricsFileFlagUsage)

	command.AddCommand(
		newSchemaCommand(options, env),
		newPreviewCommand(options, env),
		newExportCommand(options, env),
		newEngineCommand(options, env),
	)
	return command
}

// Execute runs the command tree until it finishes or the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCommand().ExecuteContext(ctx)
}
