package model

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// CountInput selects what the anonymized aggregate counts.
type CountInput string

const (
	CountRows     CountInput = "Rows"
	CountEntities CountInput = "Entities"
)

// ParseCountInput accepts the count input case-insensitively.
func ParseCountInput(value string) (CountInput, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "rows":
		return CountRows, nil
	case "entities":
		return CountEntities, nil
	default:
		return "", fmt.Errorf("unknown count input %q (expected rows or entities)", value)
	}
}

// Interval is an inclusive integer range.
type Interval struct {
	Lower int `json:"lower" yaml:"lower" mapstructure:"lower" validate:"gte=0"`
	Upper int `json:"upper" yaml:"upper" mapstructure:"upper" validate:"gtefield=Lower"`
}

type SuppressionParams struct {
	LowThreshold int     `json:"lowThreshold" yaml:"low_threshold" mapstructure:"low_threshold" validate:"gte=2"`
	LayerSD      float64 `json:"layerSD" yaml:"layer_sd" mapstructure:"layer_sd" validate:"gte=0"`
	LowMeanGap   float64 `json:"lowMeanGap" yaml:"low_mean_gap" mapstructure:"low_mean_gap" validate:"gte=0"`
}

// AnonymizationParams is passed through unmodified to the anonymizer.
type AnonymizationParams struct {
	Suppression  SuppressionParams `json:"suppression" yaml:"suppression" mapstructure:"suppression"`
	OutlierCount Interval          `json:"outlierCount" yaml:"outlier_count" mapstructure:"outlier_count"`
	TopCount     Interval          `json:"topCount" yaml:"top_count" mapstructure:"top_count"`
	LayerNoiseSD float64           `json:"layerNoiseSD" yaml:"layer_noise_sd" mapstructure:"layer_noise_sd" validate:"gte=0"`
}

// DefaultAnonymizationParams mirrors the anonymizer's built-in defaults.
func DefaultAnonymizationParams() AnonymizationParams {
	return AnonymizationParams{
		Suppression:  SuppressionParams{LowThreshold: 3, LayerSD: 1, LowMeanGap: 2},
		OutlierCount: Interval{Lower: 1, Upper: 2},
		TopCount:     Interval{Lower: 2, Upper: 3},
		LayerNoiseSD: 1,
	}
}

var paramsValidate = validator.New()

// Validate checks field ranges before the parameters leave the process.
func (params AnonymizationParams) Validate() error {
	if err := paramsValidate.Struct(params); err != nil {
		return fmt.Errorf("invalid anonymization parameters: %w", err)
	}
	return nil
}
