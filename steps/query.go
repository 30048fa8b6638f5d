package steps

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/temirov/anonwiz/internal/gateway"
	"github.com/temirov/anonwiz/internal/model"
)

// RowIndexColumn is the implicit per-row identifier used when no AID column
// is selected.
const RowIndexColumn = "RowIndex"

var (
	// ErrUnknownColumn means a query names a column missing from the schema.
	ErrUnknownColumn = errors.New("unknown column")
	// ErrDuplicateBucket means a column is selected as a bucket more than once.
	ErrDuplicateBucket = errors.New("bucket column selected more than once")
)

// Query is the full dependency set of the anonymize and export steps.
type Query struct {
	Schema     model.TableSchema         `json:"schema"`
	AidColumn  string                    `json:"aidColumn"`
	Buckets    []model.BucketColumn      `json:"buckets"`
	CountInput model.CountInput          `json:"countInput"`
	Params     model.AnonymizationParams `json:"params"`
}

// Validate checks the query against its schema and the parameter ranges.
func (query Query) Validate() error {
	if query.AidColumn != "" {
		if _, ok := query.Schema.Column(query.AidColumn); !ok {
			return fmt.Errorf("aid column %q: %w", query.AidColumn, ErrUnknownColumn)
		}
	}
	selected := make(map[string]bool, len(query.Buckets))
	for _, bucket := range query.Buckets {
		if _, ok := query.Schema.Column(bucket.Name); !ok {
			return fmt.Errorf("bucket column %q: %w", bucket.Name, ErrUnknownColumn)
		}
		if selected[bucket.Name] {
			return fmt.Errorf("bucket column %q: %w", bucket.Name, ErrDuplicateBucket)
		}
		selected[bucket.Name] = true
		if err := bucket.Validate(); err != nil {
			return err
		}
	}
	if _, err := model.ParseCountInput(string(query.CountInput)); err != nil {
		return err
	}
	return query.Params.Validate()
}

// QuoteIdentifier quotes name as an SQL identifier.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// AidReference is the quoted AID column, or the row index when none is set.
func AidReference(aidColumn string) string {
	if aidColumn == "" {
		return RowIndexColumn
	}
	return QuoteIdentifier(aidColumn)
}

// BucketExpression renders the generalization SQL fragment for bucket.
func BucketExpression(bucket model.BucketColumn) string {
	reference := QuoteIdentifier(bucket.Name)
	generalization := bucket.Generalization
	switch {
	case generalization == nil || bucket.Type == model.ColumnBoolean:
		return reference
	case generalization.BinSize != nil && bucket.Type.Numeric():
		binSize := strconv.FormatFloat(*generalization.BinSize, 'f', -1, 64)
		return fmt.Sprintf("floor(%s / %s) * %s", reference, binSize, binSize)
	case generalization.Substring != nil && bucket.Type == model.ColumnText:
		return fmt.Sprintf("substring(%s, %d, %d)", reference, generalization.Substring.Start, generalization.Substring.Length)
	default:
		return reference
	}
}

// BucketExpressions renders every bucket in order.
func BucketExpressions(buckets []model.BucketColumn) []string {
	expressions := make([]string, len(buckets))
	for index, bucket := range buckets {
		expressions[index] = BucketExpression(bucket)
	}
	return expressions
}

// PreviewRequest builds the Preview request for query.
func PreviewRequest(query Query, rows int) gateway.PreviewRequest {
	return gateway.PreviewRequest{
		InputPath:  query.Schema.SourceFile,
		AidColumn:  AidReference(query.AidColumn),
		Salt:       query.Schema.Salt,
		AnonParams: query.Params,
		Buckets:    BucketExpressions(query.Buckets),
		CountInput: query.CountInput,
		Rows:       rows,
	}
}

// ExportRequest builds the Export request for query.
func ExportRequest(query Query, outputPath string) gateway.ExportRequest {
	return gateway.ExportRequest{
		InputPath:  query.Schema.SourceFile,
		AidColumn:  AidReference(query.AidColumn),
		Salt:       query.Schema.Salt,
		AnonParams: query.Params,
		Buckets:    BucketExpressions(query.Buckets),
		CountInput: query.CountInput,
		OutputPath: outputPath,
	}
}
