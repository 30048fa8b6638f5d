package config

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/temirov/anonwiz/internal/model"
)

const (
	environmentPrefix                        = "ANONWIZ"
	configurationType                        = "yaml"
	rootConfigurationEmptyContentErrorFormat = "root configuration %s is empty"
	rootConfigurationDefaultsErrorFormat     = "read embedded defaults: %w"
	rootConfigurationUnmarshalErrorFormat    = "unmarshal root configuration %s: %w"
	rootConfigurationValidationErrorFormat   = "validate root configuration %s: %w"
)

type Root struct {
	Common        Common                    `yaml:"common" mapstructure:"common"`
	Anonymization model.AnonymizationParams `yaml:"anonymization" mapstructure:"anonymization"`
	Export        Export                    `yaml:"export" mapstructure:"export"`
}

type Common struct {
	Logging struct {
		Level  string `yaml:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" mapstructure:"format" validate:"oneof=console json"`
	} `yaml:"logging" mapstructure:"logging"`
	Service struct {
		// An empty command runs this binary's engine subcommand.
		Command string   `yaml:"command" mapstructure:"command"`
		Args    []string `yaml:"args" mapstructure:"args"`
	} `yaml:"service" mapstructure:"service"`
	Preview struct {
		Rows int `yaml:"rows" mapstructure:"rows" validate:"gte=1,lte=100000"`
	} `yaml:"preview" mapstructure:"preview"`
}

type Export struct {
	Suffix string `yaml:"suffix" mapstructure:"suffix" validate:"required"`
}

var rootValidate = validator.New()

// LoadRoot layers the provided source over the embedded defaults, applies
// ANONWIZ_* environment overrides and validates the result.
func LoadRoot(source RootConfigurationSource) (Root, error) {
	if len(source.Content) == 0 {
		return Root{}, fmt.Errorf(rootConfigurationEmptyContentErrorFormat, source.Reference)
	}

	configurationReader := viper.New()
	configurationReader.SetConfigType(configurationType)
	if err := configurationReader.ReadConfig(bytes.NewReader(embeddedRootConfigurationBytes)); err != nil {
		return Root{}, fmt.Errorf(rootConfigurationDefaultsErrorFormat, err)
	}
	if err := configurationReader.MergeConfig(bytes.NewReader(source.Content)); err != nil {
		return Root{}, fmt.Errorf(rootConfigurationUnmarshalErrorFormat, source.Reference, err)
	}
	configurationReader.SetEnvPrefix(environmentPrefix)
	configurationReader.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configurationReader.AutomaticEnv()

	var rootConfiguration Root
	if err := configurationReader.Unmarshal(&rootConfiguration); err != nil {
		return Root{}, fmt.Errorf(rootConfigurationUnmarshalErrorFormat, source.Reference, err)
	}
	if err := rootValidate.Struct(rootConfiguration); err != nil {
		return Root{}, fmt.Errorf(rootConfigurationValidationErrorFormat, source.Reference, err)
	}
	return rootConfiguration, nil
}
