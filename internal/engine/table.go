package engine

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/temirov/anonwiz/internal/model"
	"github.com/temirov/anonwiz/steps"
)

const (
	tableName = "data"

	errFormatOpenInput  = "open input %s: %w"
	errFormatReadInput  = "read input %s: %w"
	errFormatEmptyInput = "input %s has no header row"
	errFormatUnknown    = "unknown column %q"
)

var quotedIdentifier = regexp.MustCompile(`"((?:[^"]|"")*)"`)

type table struct {
	header []string
	rows   [][]string
}

// checkColumns fails when an expression quotes a name that is not a column
// of data. SQLite would otherwise read it as a string literal.
func (data table) checkColumns(expressions ...string) error {
	known := map[string]bool{steps.RowIndexColumn: true}
	for _, name := range data.header {
		known[name] = true
	}
	for _, expression := range expressions {
		for _, match := range quotedIdentifier.FindAllStringSubmatch(expression, -1) {
			name := strings.ReplaceAll(match[1], `""`, `"`)
			if !known[name] {
				return fmt.Errorf(errFormatUnknown, name)
			}
		}
	}
	return nil
}

func (e *Engine) readTable(path string, limit int) (table, error) {
	file, err := e.fs.Open(path)
	if err != nil {
		return table{}, fmt.Errorf(errFormatOpenInput, path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return table{}, fmt.Errorf(errFormatEmptyInput, path)
	}
	if err != nil {
		return table{}, fmt.Errorf(errFormatReadInput, path, err)
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	var rows [][]string
	for limit <= 0 || len(rows) < limit {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return table{}, fmt.Errorf(errFormatReadInput, path, err)
		}
		rows = append(rows, record)
	}
	return table{header: header, rows: rows}, nil
}

func sqlType(columnType model.ColumnType) string {
	switch columnType {
	case model.ColumnInteger:
		return "INTEGER"
	case model.ColumnReal:
		return "REAL"
	default:
		return "TEXT"
	}
}

// openDatabase loads the table into a private in-memory SQLite database with
// an extra RowIndex column. Empty cells become NULL.
func openDatabase(ctx context.Context, data table) (*sql.DB, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	columns := steps.InferColumns(data.header, data.rows)
	definitions := []string{steps.RowIndexColumn + " INTEGER"}
	placeholders := []string{"?"}
	for _, column := range columns {
		definitions = append(definitions, steps.QuoteIdentifier(column.Name)+" "+sqlType(column.Type))
		placeholders = append(placeholders, "?")
	}
	createSQL := fmt.Sprintf("CREATE TABLE %s (%s)", tableName, strings.Join(definitions, ", "))
	if _, err := db.ExecContext(ctx, createSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if err := insertRows(ctx, db, placeholders, data); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func insertRows(ctx context.Context, db *sql.DB, placeholders []string, data table) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	insertSQL := fmt.Sprintf("INSERT INTO %s VALUES (%s)", tableName, strings.Join(placeholders, ", "))
	statement, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer statement.Close()

	values := make([]any, len(placeholders))
	for index, row := range data.rows {
		values[0] = index + 1
		for column := range data.header {
			values[column+1] = nil
			if column < len(row) && strings.TrimSpace(row[column]) != "" {
				values[column+1] = row[column]
			}
		}
		if _, err := statement.ExecContext(ctx, values...); err != nil {
			return fmt.Errorf("insert row %d: %w", index+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert: %w", err)
	}
	return nil
}
