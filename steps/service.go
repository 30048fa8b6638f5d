// Package steps implements the data hooks behind each wizard step: schema
// load, missing-AID check, anonymize and export.
package steps

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/temirov/anonwiz/internal/fsops"
	"github.com/temirov/anonwiz/internal/gateway"
	"github.com/temirov/anonwiz/internal/model"
)

const (
	DefaultPreviewRows  = 1000
	DefaultExportSuffix = "_anonymized.csv"
)

// ExportOutcome reports where an export went, or that it was cancelled.
type ExportOutcome struct {
	Path      string
	Cancelled bool
}

// Options configures a Service.
type Options struct {
	Gateway      gateway.Gateway
	Logger       *zap.Logger
	PreviewRows  int
	ExportSuffix string
}

// Service runs the step hooks against a gateway.
type Service struct {
	gateway      gateway.Gateway
	logger       *zap.Logger
	ops          fsops.Ops
	previewRows  int
	exportSuffix string
}

func NewService(options Options) *Service {
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	previewRows := options.PreviewRows
	if previewRows <= 0 {
		previewRows = DefaultPreviewRows
	}
	exportSuffix := options.ExportSuffix
	if exportSuffix == "" {
		exportSuffix = DefaultExportSuffix
	}
	return &Service{
		gateway:      options.Gateway,
		logger:       logger,
		ops:          fsops.NewOps(fsops.NewOS()),
		previewRows:  previewRows,
		exportSuffix: exportSuffix,
	}
}

// PreviewRows is the row limit used for schema inference and result previews.
func (s *Service) PreviewRows() int { return s.previewRows }

// LoadSchema parses the file and hashes it concurrently. Either failure fails
// the load.
func (s *Service) LoadSchema(ctx context.Context, path string) (model.TableSchema, error) {
	group, groupCtx := errgroup.WithContext(ctx)

	var header []string
	var rows [][]string
	group.Go(func() error {
		output, err := s.gateway.Call(groupCtx, gateway.LoadRequest{InputPath: path, Rows: s.previewRows})
		if err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		header, rows, err = gateway.DecodeLoad(output)
		if err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		return nil
	})

	var salt string
	group.Go(func() error {
		digest, err := s.gateway.HashFile(groupCtx, path)
		if err != nil {
			return fmt.Errorf("hash %s: %w", path, err)
		}
		salt = digest
		return nil
	})

	if err := group.Wait(); err != nil {
		return model.TableSchema{}, err
	}
	if len(rows) > s.previewRows {
		rows = rows[:s.previewRows]
	}
	schema := model.TableSchema{
		SourceFile:  path,
		Columns:     InferColumns(header, rows),
		RowsPreview: rows,
		Salt:        salt,
	}
	s.logger.Debug("schema loaded",
		zap.String("file", path),
		zap.Int("columns", len(schema.Columns)),
		zap.Int("preview_rows", len(rows)))
	return schema, nil
}

// HasMissingAID reports whether the AID column has empty values. Row-index
// mode never does, so no call is made for an empty aidColumn.
func (s *Service) HasMissingAID(ctx context.Context, schema model.TableSchema, aidColumn string) (bool, error) {
	if aidColumn == "" {
		return false, nil
	}
	if _, ok := schema.Column(aidColumn); !ok {
		return false, fmt.Errorf("aid column %q: %w", aidColumn, ErrUnknownColumn)
	}
	output, err := s.gateway.Call(ctx, gateway.HasMissingValuesRequest{
		InputPath: schema.SourceFile,
		AidColumn: QuoteIdentifier(aidColumn),
	})
	if err != nil {
		return false, fmt.Errorf("check missing values in %q: %w", aidColumn, err)
	}
	return gateway.DecodeBool(output)
}

// Anonymize runs the Preview query and decodes its rows.
func (s *Service) Anonymize(ctx context.Context, query Query) (model.AnonymizedResult, error) {
	if err := query.Validate(); err != nil {
		return model.AnonymizedResult{}, err
	}
	output, err := s.gateway.Call(ctx, PreviewRequest(query, s.previewRows))
	if err != nil {
		return model.AnonymizedResult{}, fmt.Errorf("anonymize: %w", err)
	}
	result, err := DecodeResult(output, query.Buckets)
	if err != nil {
		return model.AnonymizedResult{}, fmt.Errorf("anonymize: %w", err)
	}
	return result, nil
}

// ExportPath derives the default export path from the source file.
func (s *Service) ExportPath(source string) string {
	return s.ops.SiblingPath(source, s.exportSuffix)
}

// Export asks for an output path and runs the Export query into it.
func (s *Service) Export(ctx context.Context, query Query) (ExportOutcome, error) {
	if err := query.Validate(); err != nil {
		return ExportOutcome{}, err
	}
	path, ok, err := s.gateway.SelectExportPath(ctx, s.ExportPath(query.Schema.SourceFile))
	if err != nil {
		return ExportOutcome{}, fmt.Errorf("select export path: %w", err)
	}
	if !ok {
		return ExportOutcome{Cancelled: true}, nil
	}
	output, err := s.gateway.Call(ctx, ExportRequest(query, path))
	if err != nil {
		return ExportOutcome{}, fmt.Errorf("export to %s: %w", path, err)
	}
	written, err := gateway.DecodeBool(output)
	if err != nil {
		return ExportOutcome{}, fmt.Errorf("export to %s: %w", path, err)
	}
	if !written {
		return ExportOutcome{}, fmt.Errorf("export to %s: anonymizer did not confirm the write", path)
	}
	s.logger.Info("exported anonymized result", zap.String("path", path))
	return ExportOutcome{Path: path}, nil
}

// DefaultExportPath replaces the extension of source with "_anonymized.csv".
func DefaultExportPath(source string) string {
	return fsops.NewOps(fsops.NewOS()).SiblingPath(source, DefaultExportSuffix)
}
