package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// PreviewSchemaVersion is the only Preview envelope version understood.
const PreviewSchemaVersion = 1

// ErrSchemaDrift means a response no longer matches the positional contract.
var ErrSchemaDrift = errors.New("anonymizer response schema drift")

// PreviewFixedColumns lead every Preview row, followed by one cell per
// requested bucket expression.
var PreviewFixedColumns = []string{"lowCount", "count", "anonCount"}

// PreviewResponse is the versioned Preview envelope.
type PreviewResponse struct {
	SchemaVersion int      `json:"schemaVersion"`
	Columns       []string `json:"columns"`
	Rows          [][]any  `json:"rows"`
}

// DecodePreview parses a Preview envelope and checks its version and shape
// against the bucket expressions that were requested.
func DecodePreview(data []byte, buckets []string) (PreviewResponse, error) {
	var response PreviewResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return PreviewResponse{}, fmt.Errorf("decode preview response: %w", err)
	}
	if response.SchemaVersion != PreviewSchemaVersion {
		return PreviewResponse{}, fmt.Errorf("%w: schema version %d, expected %d", ErrSchemaDrift, response.SchemaVersion, PreviewSchemaVersion)
	}
	width := len(PreviewFixedColumns) + len(buckets)
	if len(response.Columns) != width {
		return PreviewResponse{}, fmt.Errorf("%w: %d columns, expected %d", ErrSchemaDrift, len(response.Columns), width)
	}
	for index, name := range PreviewFixedColumns {
		if response.Columns[index] != name {
			return PreviewResponse{}, fmt.Errorf("%w: column %d is %q, expected %q", ErrSchemaDrift, index, response.Columns[index], name)
		}
	}
	for index, row := range response.Rows {
		if len(row) != width {
			return PreviewResponse{}, fmt.Errorf("%w: row %d has %d cells, expected %d", ErrSchemaDrift, index, len(row), width)
		}
	}
	return response, nil
}

// DecodeLoad parses a Load response into a header and string rows, dropping
// the leading row-index column.
func DecodeLoad(data []byte) ([]string, [][]string, error) {
	var table [][]any
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, nil, fmt.Errorf("decode load response: %w", err)
	}
	if len(table) == 0 {
		return nil, nil, fmt.Errorf("%w: load response has no header", ErrSchemaDrift)
	}
	header := stringifyRow(table[0])
	rows := make([][]string, 0, len(table)-1)
	for index, row := range table[1:] {
		if len(row) != len(table[0]) {
			return nil, nil, fmt.Errorf("%w: load row %d has %d cells, expected %d", ErrSchemaDrift, index, len(row), len(table[0]))
		}
		rows = append(rows, stringifyRow(row))
	}
	return header, rows, nil
}

// DecodeBool parses a boolean response such as HasMissingValues or Export.
func DecodeBool(data []byte) (bool, error) {
	var value bool
	if err := json.Unmarshal(data, &value); err != nil {
		return false, fmt.Errorf("decode boolean response: %w", err)
	}
	return value, nil
}

func stringifyRow(row []any) []string {
	if len(row) == 0 {
		return nil
	}
	cells := make([]string, 0, len(row)-1)
	for _, cell := range row[1:] {
		cells = append(cells, Stringify(cell))
	}
	return cells
}

// Stringify renders a decoded JSON scalar the way it appeared in the CSV.
func Stringify(cell any) string {
	switch value := cell.(type) {
	case nil:
		return ""
	case string:
		return value
	case bool:
		return strconv.FormatBool(value)
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	default:
		return fmt.Sprint(value)
	}
}
