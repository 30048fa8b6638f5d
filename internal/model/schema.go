// Package model holds the data passed between wizard steps.
package model

// ColumnType is the inferred type of a CSV column.
type ColumnType string

const (
	ColumnBoolean ColumnType = "boolean"
	ColumnInteger ColumnType = "integer"
	ColumnReal    ColumnType = "real"
	ColumnText    ColumnType = "text"
)

// Numeric reports whether values of the type can be binned.
func (columnType ColumnType) Numeric() bool {
	return columnType == ColumnInteger || columnType == ColumnReal
}

type TableColumn struct {
	Name string     `json:"name" yaml:"name"`
	Type ColumnType `json:"type" yaml:"type"`
}

// TableSchema describes one loaded file. It is immutable once built.
type TableSchema struct {
	SourceFile  string        `json:"sourceFile" yaml:"source_file"`
	Columns     []TableColumn `json:"columns" yaml:"columns"`
	RowsPreview [][]string    `json:"-" yaml:"-"`
	Salt        string        `json:"salt" yaml:"salt"`
}

// Column looks a column up by name.
func (schema TableSchema) Column(name string) (TableColumn, bool) {
	for _, column := range schema.Columns {
		if column.Name == name {
			return column, true
		}
	}
	return TableColumn{}, false
}

// ColumnNames lists column names in schema order.
func (schema TableSchema) ColumnNames() []string {
	names := make([]string, 0, len(schema.Columns))
	for _, column := range schema.Columns {
		names = append(names, column.Name)
	}
	return names
}
