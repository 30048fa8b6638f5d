// Package display renders schemas and anonymized results as terminal tables.
package display

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/temirov/anonwiz/internal/gateway"
	"github.com/temirov/anonwiz/internal/model"
)

const (
	countColumn      = "count"
	anonCountColumn  = "anonCount"
	suppressedMarker = "*"
	writeErrorFormat = "write %s table: %w"
)

// Mode selects the table renderer.
type Mode int

const (
	ASCII Mode = iota
	Markdown
)

// ResultOptions controls which result rows are rendered.
type ResultOptions struct {
	Mode           Mode
	ShowSuppressed bool
}

func newWriter(mode Mode) table.Writer {
	writer := table.NewWriter()
	if mode == ASCII {
		writer.SetStyle(table.StyleLight)
	}
	return writer
}

func render(writer table.Writer, mode Mode) string {
	if mode == Markdown {
		return writer.RenderMarkdown()
	}
	return writer.Render()
}

func emit(output io.Writer, name string, rendered string) error {
	if _, err := fmt.Fprintln(output, rendered); err != nil {
		return fmt.Errorf(writeErrorFormat, name, err)
	}
	return nil
}

// Schema prints one row per column with its inferred type, followed by the
// salt and the number of preview rows the types were inferred from.
func Schema(output io.Writer, schema model.TableSchema, mode Mode) error {
	writer := newWriter(mode)
	writer.AppendHeader(table.Row{"#", "column", "type"})
	for index, column := range schema.Columns {
		writer.AppendRow(table.Row{index + 1, column.Name, string(column.Type)})
	}
	writer.SetColumnConfigs([]table.ColumnConfig{{Number: 1, Align: text.AlignRight}})
	if err := emit(output, "schema", render(writer, mode)); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(output, "salt: %s\npreview rows: %d\n", schema.Salt, len(schema.RowsPreview)); err != nil {
		return fmt.Errorf(writeErrorFormat, "schema", err)
	}
	return nil
}

// BucketNames returns the result columns that hold bucket values.
func BucketNames(result model.AnonymizedResult) []string {
	names := make([]string, 0, len(result.Columns))
	for _, column := range result.Columns {
		if column == countColumn || column == anonCountColumn {
			continue
		}
		names = append(names, column)
	}
	return names
}

// Result prints the anonymized buckets. Suppressed buckets are hidden unless
// requested, in which case their anonymized count shows as "*".
func Result(output io.Writer, result model.AnonymizedResult, options ResultOptions) error {
	buckets := BucketNames(result)
	writer := newWriter(options.Mode)

	header := make(table.Row, 0, len(buckets)+2)
	for _, name := range buckets {
		header = append(header, name)
	}
	header = append(header, countColumn, anonCountColumn)
	writer.AppendHeader(header)

	for _, row := range result.Rows {
		if row.LowCount && !options.ShowSuppressed {
			continue
		}
		cells := make(table.Row, 0, len(buckets)+2)
		for _, name := range buckets {
			cells = append(cells, gateway.Stringify(row.BucketValues[name]))
		}
		anonCount := suppressedMarker
		if !row.LowCount && row.DiffixCount != nil {
			anonCount = fmt.Sprint(*row.DiffixCount)
		}
		cells = append(cells, row.Count, anonCount)
		writer.AppendRow(cells)
	}
	writer.SetColumnConfigs([]table.ColumnConfig{
		{Number: len(buckets) + 1, Align: text.AlignRight},
		{Number: len(buckets) + 2, Align: text.AlignRight},
	})
	return emit(output, "result", render(writer, options.Mode))
}

// Summary prints suppression and distortion statistics.
func Summary(output io.Writer, summary model.Summary, mode Mode) error {
	writer := newWriter(mode)
	writer.AppendHeader(table.Row{"metric", "value"})
	writer.AppendRows([]table.Row{
		{"buckets", summary.TotalBuckets},
		{"suppressed buckets", fmt.Sprintf("%d (%s)", summary.SuppressedBuckets, percent(summary.SuppressedBucketRatio))},
		{"rows", summary.TotalCount},
		{"suppressed rows", fmt.Sprintf("%d (%s)", summary.SuppressedCount, percent(summary.SuppressedCountRatio))},
		{"average distortion", percent(summary.AvgDistortion)},
		{"maximum distortion", percent(summary.MaxDistortion)},
	})
	writer.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
	return emit(output, "summary", render(writer, mode))
}

func percent(ratio float64) string {
	return fmt.Sprintf("%.1f%%", ratio*100)
}
