package model

import (
	"fmt"
	"strconv"
	"strings"
)

// SubstringWindow keeps Length characters starting at the 1-based Start.
type SubstringWindow struct {
	Start  int `json:"start"`
	Length int `json:"length"`
}

// Generalization coarsens a bucket column. At most one field is set.
type Generalization struct {
	BinSize   *float64         `json:"binSize,omitempty"`
	Substring *SubstringWindow `json:"substring,omitempty"`
}

// BucketColumn is a schema column selected as a GROUP BY dimension.
type BucketColumn struct {
	TableColumn
	Generalization *Generalization `json:"generalization,omitempty"`
}

// Validate checks that the generalization fits the column type.
func (bucket BucketColumn) Validate() error {
	if bucket.Generalization == nil {
		return nil
	}
	generalization := bucket.Generalization
	if generalization.BinSize != nil && generalization.Substring != nil {
		return fmt.Errorf("bucket %q: bin size and substring are mutually exclusive", bucket.Name)
	}
	if generalization.BinSize != nil {
		if !bucket.Type.Numeric() {
			return fmt.Errorf("bucket %q: bin size requires a numeric column, got %s", bucket.Name, bucket.Type)
		}
		if *generalization.BinSize <= 0 {
			return fmt.Errorf("bucket %q: bin size must be positive", bucket.Name)
		}
	}
	if generalization.Substring != nil {
		if bucket.Type != ColumnText {
			return fmt.Errorf("bucket %q: substring requires a text column, got %s", bucket.Name, bucket.Type)
		}
		if generalization.Substring.Start < 1 || generalization.Substring.Length < 1 {
			return fmt.Errorf("bucket %q: substring start and length must be at least 1", bucket.Name)
		}
	}
	return nil
}

// ParseBucketSpec parses "name", "name:BIN" or "name:START:LENGTH" against
// schema.
func ParseBucketSpec(schema TableSchema, spec string) (BucketColumn, error) {
	parts := strings.Split(strings.TrimSpace(spec), ":")
	column, ok := schema.Column(parts[0])
	if !ok {
		return BucketColumn{}, fmt.Errorf("bucket %q: unknown column (have %s)", parts[0], strings.Join(schema.ColumnNames(), ", "))
	}
	bucket := BucketColumn{TableColumn: column}
	switch len(parts) {
	case 1:
	case 2:
		binSize, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return BucketColumn{}, fmt.Errorf("bucket %q: parse bin size: %w", parts[0], err)
		}
		bucket.Generalization = &Generalization{BinSize: &binSize}
	case 3:
		start, startErr := strconv.Atoi(parts[1])
		length, lengthErr := strconv.Atoi(parts[2])
		if startErr != nil || lengthErr != nil {
			return BucketColumn{}, fmt.Errorf("bucket %q: substring window must be START:LENGTH integers", parts[0])
		}
		bucket.Generalization = &Generalization{Substring: &SubstringWindow{Start: start, Length: length}}
	default:
		return BucketColumn{}, fmt.Errorf("bucket %q: too many ':' separated parts", spec)
	}
	if err := bucket.Validate(); err != nil {
		return BucketColumn{}, err
	}
	return bucket, nil
}
