package steps

import (
	"regexp"
	"strings"

	"github.com/temirov/anonwiz/internal/model"
)

// Patterns are tried in order; the first one every non-blank value matches
// decides the column type.
var typePatterns = []struct {
	columnType model.ColumnType
	pattern    *regexp.Regexp
}{
	{model.ColumnBoolean, regexp.MustCompile(`^(?i:true|false|0|1)$`)},
	{model.ColumnInteger, regexp.MustCompile(`^[-+]?\d+$`)},
	{model.ColumnReal, regexp.MustCompile(`^[-+]?(?:\d+\.?\d*|\.\d+)(?:[eE][-+]?\d+)?$`)},
}

// InferColumnType returns the narrowest type matching every non-blank value.
// Columns with no non-blank values are text.
func InferColumnType(values []string) model.ColumnType {
	nonBlank := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			nonBlank = append(nonBlank, trimmed)
		}
	}
	if len(nonBlank) == 0 {
		return model.ColumnText
	}
	for _, candidate := range typePatterns {
		if allMatch(candidate.pattern, nonBlank) {
			return candidate.columnType
		}
	}
	return model.ColumnText
}

// InferColumns types every header column from the preview rows.
func InferColumns(header []string, rows [][]string) []model.TableColumn {
	columns := make([]model.TableColumn, len(header))
	values := make([]string, 0, len(rows))
	for index, name := range header {
		values = values[:0]
		for _, row := range rows {
			if index < len(row) {
				values = append(values, row[index])
			}
		}
		columns[index] = model.TableColumn{Name: name, Type: InferColumnType(values)}
	}
	return columns
}

func allMatch(pattern *regexp.Regexp, values []string) bool {
	for _, value := range values {
		if !pattern.MatchString(value) {
			return false
		}
	}
	return true
}
