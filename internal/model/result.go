package model

import "math"

// ResultRow is one bucket of an anonymized query.
type ResultRow struct {
	LowCount     bool           `json:"lowCount"`
	Count        int64          `json:"count"`
	DiffixCount  *int64         `json:"diffixCount"`
	BucketValues map[string]any `json:"bucketValues"`
}

// Summary describes how much the anonymizer suppressed and distorted.
type Summary struct {
	TotalBuckets          int     `json:"totalBuckets"`
	SuppressedBuckets     int     `json:"suppressedBuckets"`
	TotalCount            int64   `json:"totalCount"`
	SuppressedCount       int64   `json:"suppressedCount"`
	SuppressedCountRatio  float64 `json:"suppressedCountRatio"`
	SuppressedBucketRatio float64 `json:"suppressedBucketRatio"`
	AvgDistortion         float64 `json:"avgDistortion"`
	MaxDistortion         float64 `json:"maxDistortion"`
}

// AnonymizedResult is produced fresh by every anonymize call and never
// mutated afterwards.
type AnonymizedResult struct {
	Columns []string    `json:"columns"`
	Rows    []ResultRow `json:"rows"`
	Summary Summary     `json:"summary"`
}

// Distortion is the relative difference between the anonymized and real
// count. It is zero for suppressed rows and rows with a zero real count.
func (row ResultRow) Distortion() float64 {
	if row.LowCount || row.DiffixCount == nil || row.Count == 0 {
		return 0
	}
	return math.Abs(float64(*row.DiffixCount-row.Count)) / float64(row.Count)
}

// Summarize computes suppression and distortion statistics over rows.
func Summarize(rows []ResultRow) Summary {
	summary := Summary{TotalBuckets: len(rows)}
	var distortionSum float64
	var distorted int
	for _, row := range rows {
		summary.TotalCount += row.Count
		if row.LowCount {
			summary.SuppressedBuckets++
			summary.SuppressedCount += row.Count
			continue
		}
		distortion := row.Distortion()
		distortionSum += distortion
		distorted++
		if distortion > summary.MaxDistortion {
			summary.MaxDistortion = distortion
		}
	}
	if summary.TotalCount > 0 {
		summary.SuppressedCountRatio = float64(summary.SuppressedCount) / float64(summary.TotalCount)
	}
	if summary.TotalBuckets > 0 {
		summary.SuppressedBucketRatio = float64(summary.SuppressedBuckets) / float64(summary.TotalBuckets)
	}
	if distorted > 0 {
		summary.AvgDistortion = distortionSum / float64(distorted)
	}
	return summary
}
