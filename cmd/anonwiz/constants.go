package anonwiz

const (
	rootCommandUse                           = "anonwiz"
	rootCommandShort                         = "Anonymize CSV files through a remote anonymizer"
	defaultConfigPath                        = "./config.yaml"
	configFlagName                           = "config"
	configFlagUsage                          = "Path to config.yaml"
	logLevelFlagName                         = "log-level"
	logLevelFlagUsage                        = "Override logging level (debug, info, warn, error)"
	metricsFileFlagName                      = "metrics-file"
	metricsFileFlagUsage                     = "Write gateway metrics in Prometheus text format to this file"
	schemaCommandUse                         = "schema FILE"
	schemaCommandShort                       = "Load a CSV file and print its inferred schema"
	formatFlagName                           = "format"
	formatFlagUsage                          = "Output format: table, markdown or yaml"
	previewCommandUse                        = "preview FILE"
	previewCommandShort                      = "Anonymize a CSV file and print the bucketed result"
	exportCommandUse                         = "export FILE"
	exportCommandShort                       = "Anonymize a CSV file and write the result to disk"
	engineCommandUse                         = "engine"
	engineCommandShort                       = "Serve one anonymizer request from stdin"
	aidFlagName                              = "aid"
	aidFlagUsage                             = "Column identifying the protected entity (empty = one entity per row)"
	bucketFlagName                           = "bucket"
	bucketFlagUsage                          = "Bucket column as NAME, NAME:BIN_SIZE or NAME:START:LENGTH (repeatable)"
	countFlagName                            = "count"
	countFlagUsage                           = "Count rows or entities"
	lowThresholdFlagName                     = "low-threshold"
	lowThresholdFlagUsage                    = "Minimum entities per bucket before suppression"
	layerNoiseFlagName                       = "layer-noise-sd"
	layerNoiseFlagUsage                      = "Standard deviation of the per-layer noise"
	showSuppressedFlagName                   = "show-suppressed"
	showSuppressedFlagUsage                  = "Show suppressed buckets in the result"
	allowMissingAIDFlagName                  = "allow-missing-aid"
	allowMissingAIDFlagUsage                 = "Continue when the AID column has missing values"
	outputFlagName                           = "output"
	outputFlagUsage                          = "Export path (default: prompt on a terminal, FILE_anonymized.csv otherwise)"
	formatTable                              = "table"
	formatMarkdown                           = "markdown"
	formatYAML                               = "yaml"
	loggingFormatJSON                        = "json"
	exportArgumentCount                      = 1
	loaderInitializationErrorFormat          = "initialize configuration loader: %w"
	configurationSourceResolutionErrorFormat = "resolve configuration source: %w"
	rootConfigurationLoadErrorFormat         = "load root configuration %s: %w"
	stepFailedErrorFormat                    = "%s step failed: %s"
	missingAIDErrorFormat                    = "aid column %q has missing values (use --%s to continue)"
)
