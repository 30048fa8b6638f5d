package anonwiz

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/temirov/anonwiz/internal/config"
)

func loadRootConfiguration(configurationPath string) (config.Root, error) {
	configurationLoader, loaderErr := config.NewDefaultRootConfigurationLoader()
	if loaderErr != nil {
		return config.Root{}, fmt.Errorf(loaderInitializationErrorFormat, loaderErr)
	}
	configurationSource, sourceErr := configurationLoader.Load(configurationPath)
	if sourceErr != nil {
		if configurationPath == "" || configurationPath == defaultConfigPath {
			configurationSource, sourceErr = configurationLoader.Load("")
		}
		if sourceErr != nil {
			return config.Root{}, fmt.Errorf(configurationSourceResolutionErrorFormat, sourceErr)
		}
	}
	rootConfiguration, loadErr := config.LoadRoot(configurationSource)
	if loadErr != nil {
		return config.Root{}, fmt.Errorf(rootConfigurationLoadErrorFormat, configurationSource.Reference, loadErr)
	}
	return rootConfiguration, nil
}

// newLogger builds a stderr logger from the logging section. A non-empty
// levelOverride wins over the configured level.
func newLogger(root config.Root, levelOverride string) (*zap.Logger, error) {
	levelName := root.Common.Logging.Level
	if strings.TrimSpace(levelOverride) != "" {
		levelName = levelOverride
	}
	level, err := zapcore.ParseLevel(levelName)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	loggerConfiguration := zap.NewDevelopmentConfig()
	if root.Common.Logging.Format == loggingFormatJSON {
		loggerConfiguration = zap.NewProductionConfig()
	}
	loggerConfiguration.Level = zap.NewAtomicLevelAt(level)
	loggerConfiguration.OutputPaths = []string{"stderr"}
	loggerConfiguration.ErrorOutputPaths = []string{"stderr"}
	return loggerConfiguration.Build()
}
