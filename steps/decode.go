package steps

import (
	"fmt"
	"math"

	"github.com/temirov/anonwiz/internal/gateway"
	"github.com/temirov/anonwiz/internal/model"
)

const (
	cellLowCount = iota
	cellCount
	cellAnonCount
	firstBucketCell
)

// DecodeResult maps a Preview response onto typed rows. Bucket values are
// keyed by bucket column name in request order.
func DecodeResult(data []byte, buckets []model.BucketColumn) (model.AnonymizedResult, error) {
	expressions := BucketExpressions(buckets)
	response, err := gateway.DecodePreview(data, expressions)
	if err != nil {
		return model.AnonymizedResult{}, err
	}
	columns := make([]string, 0, len(buckets)+2)
	for _, bucket := range buckets {
		columns = append(columns, bucket.Name)
	}
	columns = append(columns, "count", "anonCount")

	rows := make([]model.ResultRow, 0, len(response.Rows))
	for index, cells := range response.Rows {
		row, err := decodeRow(cells, buckets)
		if err != nil {
			return model.AnonymizedResult{}, fmt.Errorf("row %d: %w", index, err)
		}
		rows = append(rows, row)
	}
	return model.AnonymizedResult{Columns: columns, Rows: rows, Summary: model.Summarize(rows)}, nil
}

func decodeRow(cells []any, buckets []model.BucketColumn) (model.ResultRow, error) {
	lowCount, ok := cells[cellLowCount].(bool)
	if !ok {
		return model.ResultRow{}, fmt.Errorf("%w: lowCount is %T, expected boolean", gateway.ErrSchemaDrift, cells[cellLowCount])
	}
	count, err := integerCell(cells[cellCount], "count")
	if err != nil {
		return model.ResultRow{}, err
	}
	row := model.ResultRow{
		LowCount:     lowCount,
		Count:        count,
		BucketValues: make(map[string]any, len(buckets)),
	}
	if cells[cellAnonCount] != nil && !lowCount {
		anonCount, err := integerCell(cells[cellAnonCount], "anonCount")
		if err != nil {
			return model.ResultRow{}, err
		}
		row.DiffixCount = &anonCount
	}
	for index, bucket := range buckets {
		row.BucketValues[bucket.Name] = cells[firstBucketCell+index]
	}
	return row, nil
}

func integerCell(cell any, name string) (int64, error) {
	number, ok := cell.(float64)
	if !ok {
		return 0, fmt.Errorf("%w: %s is %T, expected number", gateway.ErrSchemaDrift, name, cell)
	}
	return int64(math.Round(number)), nil
}
