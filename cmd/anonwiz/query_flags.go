package anonwiz

import (
	"github.com/spf13/cobra"

	"github.com/temirov/anonwiz/internal/model"
	"github.com/temirov/anonwiz/internal/wizard"
)

// queryOptions are the flags shared by the commands that run a query.
type queryOptions struct {
	aidColumn       string
	buckets         []string
	countInput      string
	lowThreshold    int
	layerNoiseSD    float64
	allowMissingAID bool
}

func registerQueryFlags(command *cobra.Command, options *queryOptions) {
	flags := command.Flags()
	flags.StringVar(&options.aidColumn, aidFlagName, "", aidFlagUsage)
	flags.StringArrayVar(&options.buckets, bucketFlagName, nil, bucketFlagUsage)
	flags.StringVar(&options.countInput, countFlagName, "rows", countFlagUsage)
	flags.IntVar(&options.lowThreshold, lowThresholdFlagName, 0, lowThresholdFlagUsage)
	flags.Float64Var(&options.layerNoiseSD, layerNoiseFlagName, 0, layerNoiseFlagUsage)
	registerBoolChoice(flags, &options.allowMissingAID, allowMissingAIDFlagName, allowMissingAIDFlagUsage)
}

// selection resolves the bucket specs against schema and layers any changed
// parameter flags over the configured parameters.
func (options queryOptions) selection(command *cobra.Command, schema model.TableSchema, params model.AnonymizationParams) (wizard.Selection, error) {
	countInput, err := model.ParseCountInput(options.countInput)
	if err != nil {
		return wizard.Selection{}, err
	}
	buckets := make([]model.BucketColumn, 0, len(options.buckets))
	for _, spec := range options.buckets {
		bucket, parseErr := model.ParseBucketSpec(schema, spec)
		if parseErr != nil {
			return wizard.Selection{}, parseErr
		}
		buckets = append(buckets, bucket)
	}
	if command.Flags().Changed(lowThresholdFlagName) {
		params.Suppression.LowThreshold = options.lowThreshold
	}
	if command.Flags().Changed(layerNoiseFlagName) {
		params.LayerNoiseSD = options.layerNoiseSD
	}
	return wizard.Selection{Buckets: buckets, CountInput: countInput, Params: params}, nil
}

// runQuery drives the wizard from file to a configured query.
func (s *session) runQuery(command *cobra.Command, options queryOptions, path string) error {
	ctx := command.Context()
	schema, err := s.loadSchema(ctx, path)
	if err != nil {
		return err
	}
	if err := s.selectAID(ctx, options.aidColumn, options.allowMissingAID); err != nil {
		return err
	}
	selection, err := options.selection(command, schema, s.root.Anonymization)
	if err != nil {
		return err
	}
	return s.wizard.Configure(selection)
}
