package anonwiz

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/anonwiz/internal/config"
	"github.com/temirov/anonwiz/internal/gateway"
	"github.com/temirov/anonwiz/internal/model"
	"github.com/temirov/anonwiz/internal/wizard"
	"github.com/temirov/anonwiz/steps"
)

// session is one wizard run backed by a process gateway.
type session struct {
	root        config.Root
	logger      *zap.Logger
	registry    *prometheus.Registry
	metricsFile string
	wizard      *wizard.Wizard
}

func openSession(command *cobra.Command, options *rootOptions, env environment, selector gateway.PathSelector) (*session, error) {
	rootConfiguration, err := loadRootConfiguration(options.configPath)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(rootConfiguration, options.logLevel)
	if err != nil {
		return nil, err
	}

	serviceCommand := rootConfiguration.Common.Service.Command
	serviceArgs := rootConfiguration.Common.Service.Args
	if serviceCommand == "" {
		executablePath, executableErr := env.executable()
		if executableErr != nil {
			return nil, fmt.Errorf("locate anonwiz executable: %w", executableErr)
		}
		serviceCommand = executablePath
		serviceArgs = []string{engineCommandUse}
	}

	var registry *prometheus.Registry
	if options.metricsFile != "" {
		registry = prometheus.NewRegistry()
	}
	var registerer prometheus.Registerer
	if registry != nil {
		registerer = registry
	}

	remote := gateway.NewProcessGateway(gateway.Options{
		Command:  serviceCommand,
		Args:     serviceArgs,
		Runner:   env.runner,
		FS:       env.filesystem,
		Selector: selector,
		Metrics:  gateway.NewMetrics(registerer),
		Logger:   logger,
	})
	service := steps.NewService(steps.Options{
		Gateway:      remote,
		Logger:       logger,
		PreviewRows:  rootConfiguration.Common.Preview.Rows,
		ExportSuffix: rootConfiguration.Export.Suffix,
	})
	logger.Debug("session opened", zap.String("service", serviceCommand), zap.Strings("args", serviceArgs))

	return &session{
		root:        rootConfiguration,
		logger:      logger,
		registry:    registry,
		metricsFile: options.metricsFile,
		wizard:      wizard.New(command.Context(), service, logger),
	}, nil
}

// close unmounts the wizard and flushes metrics and logs.
func (s *session) close() error {
	s.wizard.Close()
	var closeErr error
	if s.registry != nil {
		if err := prometheus.WriteToTextfile(s.metricsFile, s.registry); err != nil {
			closeErr = fmt.Errorf("write metrics %s: %w", s.metricsFile, err)
		}
	}
	_ = s.logger.Sync()
	return closeErr
}

func (s *session) loadSchema(ctx context.Context, path string) (model.TableSchema, error) {
	if err := s.wizard.Open(path); err != nil {
		return model.TableSchema{}, err
	}
	data, err := s.wizard.WaitSchema(ctx)
	if err != nil {
		return model.TableSchema{}, err
	}
	schema, ok := data.Get()
	if !ok {
		return model.TableSchema{}, fmt.Errorf(stepFailedErrorFormat, wizard.StepSchema, data.Err)
	}
	s.logger.Debug("wizard step reached", zap.Stringer("step", s.wizard.Step()), zap.Stringer("schema", s.wizard.Schema().State), zap.Int("columns", len(schema.Columns)))
	return schema, nil
}

func (s *session) selectAID(ctx context.Context, aidColumn string, allowMissing bool) error {
	if err := s.wizard.SelectAID(aidColumn); err != nil {
		return err
	}
	data, err := s.wizard.WaitMissingAID(ctx)
	if err != nil {
		return err
	}
	missing, ok := data.Get()
	if !ok {
		return fmt.Errorf(stepFailedErrorFormat, wizard.StepAID, data.Err)
	}
	if missing {
		if !allowMissing {
			return fmt.Errorf(missingAIDErrorFormat, aidColumn, allowMissingAIDFlagName)
		}
		s.logger.Warn("aid column has missing values", zap.String("aid", aidColumn))
	}
	s.logger.Debug("wizard step reached", zap.Stringer("step", s.wizard.Step()), zap.Stringer("missing_aid", s.wizard.MissingAID().State))
	return nil
}

func (s *session) anonymize(ctx context.Context) (model.AnonymizedResult, error) {
	data, err := s.wizard.WaitResult(ctx)
	if err != nil {
		return model.AnonymizedResult{}, err
	}
	result, ok := data.Get()
	if !ok {
		return model.AnonymizedResult{}, fmt.Errorf(stepFailedErrorFormat, wizard.StepResult, data.Err)
	}
	s.logger.Debug("wizard step reached", zap.Stringer("step", s.wizard.Step()), zap.Int("buckets", len(result.Rows)))
	return result, nil
}

// closeSession folds the close error into the command error.
func closeSession(current *session, commandErr error) error {
	return errors.Join(commandErr, current.close())
}
